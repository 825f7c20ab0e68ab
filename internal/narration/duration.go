package narration

import (
	"fmt"
	"os"
	"time"

	"github.com/faiface/beep/mp3"
)

// Duration reports the playing time of an MP3 file.
func Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to decode MP3 %s: %w", path, err)
	}
	defer streamer.Close()

	return format.SampleRate.D(streamer.Len()), nil
}
