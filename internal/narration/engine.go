package narration

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// ErrUnsupportedEngine is returned by NewEngine for unknown engine types.
var ErrUnsupportedEngine = errors.New("unsupported TTS engine type")

type EngineType string

const (
	EngineTypeMock   EngineType = "mock"
	EngineTypeESpeak EngineType = "espeak"
	EngineTypeGoogle EngineType = "google"
	EngineTypeAuto   EngineType = "auto" // google when credentials are present, else espeak
)

func (e EngineType) String() string {
	return string(e)
}

type Config struct {
	Type     string
	Voice    string
	Language string
	Speed    float64
	CacheDir string
}

// Engine renders text to an audio file.
type Engine interface {
	Name() string
	// Synthesize writes the narration for text and returns the path of the
	// file it wrote. The extension of outPath may be replaced to match the
	// engine's audio format.
	Synthesize(ctx context.Context, text, outPath string) (string, error)
}

// NewEngine creates the engine named by config.Type.
func NewEngine(ctx context.Context, config Config, log *logrus.Entry) (Engine, error) {
	if log == nil {
		log = logrus.WithField("component", "narration")
	}

	if config.Type == EngineTypeAuto.String() || config.Type == "" {
		config.Type = bestEngine().String()
		log.WithField("engine", config.Type).Info("Selected TTS engine")
	}

	switch config.Type {
	case EngineTypeMock.String():
		return NewMockEngine(), nil

	case EngineTypeGoogle.String():
		return newGoogleEngine(ctx, config, log)

	case EngineTypeESpeak.String():
		return newESpeakEngine(config, log)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEngine, config.Type)
	}
}

func bestEngine() EngineType {
	if hasGoogleCredentials() {
		return EngineTypeGoogle
	}
	return EngineTypeESpeak
}

func hasGoogleCredentials() bool {
	_, ok := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS")
	return ok
}
