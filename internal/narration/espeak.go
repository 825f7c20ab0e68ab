// Cross-platform eSpeak implementation
package narration

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/sirupsen/logrus"
)

// ESpeakEngine renders WAV files with eSpeak or eSpeak-NG.
type ESpeakEngine struct {
	path   string
	config Config
	log    *logrus.Entry
}

func newESpeakEngine(config Config, log *logrus.Entry) (*ESpeakEngine, error) {
	espeakPath, err := findESpeakExecutable()
	if err != nil {
		return nil, fmt.Errorf("eSpeak not found: %w", err)
	}
	return &ESpeakEngine{path: espeakPath, config: config, log: log}, nil
}

func findESpeakExecutable() (string, error) {
	for _, candidate := range []string{"espeak-ng", "espeak"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("eSpeak executable not found in PATH")
}

func (e *ESpeakEngine) Name() string { return EngineTypeESpeak.String() }

func (e *ESpeakEngine) Synthesize(ctx context.Context, text, outPath string) (string, error) {
	outPath = withExt(outPath, ".wav")

	cmd := exec.CommandContext(ctx, e.path, e.args(text, outPath)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("espeak failed: %w: %s", err, output)
	}

	e.log.WithField("file", outPath).Info("Narration written")
	return outPath, nil
}

func (e *ESpeakEngine) args(text, outPath string) []string {
	args := []string{"-w", outPath}

	if e.config.Voice != "" && e.config.Voice != "default" {
		args = append(args, "-v", e.config.Voice)
	}

	// words per minute, eSpeak's default is 175
	speed := e.config.Speed
	if speed <= 0 {
		speed = 1.0
	}
	args = append(args, "-s", strconv.Itoa(int(175*speed)))

	// "--" keeps text starting with a dash from being read as a flag
	return append(args, "--", text)
}
