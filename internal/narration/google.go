package narration

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/sirupsen/logrus"
)

// a little under the 5000 byte request limit
const chunkRunes = 4800

type speechClient interface {
	Synthesize(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) ([]byte, error)
}

type cloudClient struct {
	c *texttospeech.Client
}

func (c cloudClient) Synthesize(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) ([]byte, error) {
	resp, err := c.c.SynthesizeSpeech(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.AudioContent, nil
}

// GoogleEngine narrates through Google Cloud Text-to-Speech. Chunks are
// cached on disk by content hash so re-narrating a book is free.
type GoogleEngine struct {
	client   speechClient
	voice    string
	language string
	speed    float64
	cacheDir string
	log      *logrus.Entry
}

func newGoogleEngine(ctx context.Context, config Config, log *logrus.Entry) (*GoogleEngine, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS client: %w", err)
	}
	return newGoogleEngineWithClient(cloudClient{c: client}, config, log)
}

func newGoogleEngineWithClient(client speechClient, config Config, log *logrus.Entry) (*GoogleEngine, error) {
	if config.CacheDir != "" {
		if err := os.MkdirAll(config.CacheDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
	}
	if config.Voice == "" {
		config.Voice = "en-US-Chirp3-HD-Charon"
	}
	if config.Language == "" {
		config.Language = "en-US"
	}
	return &GoogleEngine{
		client:   client,
		voice:    config.Voice,
		language: config.Language,
		speed:    config.Speed,
		cacheDir: config.CacheDir,
		log:      log,
	}, nil
}

func (g *GoogleEngine) Name() string { return EngineTypeGoogle.String() }

func (g *GoogleEngine) Synthesize(ctx context.Context, text, outPath string) (string, error) {
	outPath = withExt(outPath, ".mp3")
	contentHash := md5Sum(text + g.voice)[:8]
	chunks := splitIntoChunks(text, chunkRunes)

	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", outPath, err)
	}
	defer out.Close()

	for i, chunk := range chunks {
		audio, err := g.chunk(ctx, chunk, fmt.Sprintf("%s_%d.mp3", contentHash, i))
		if err != nil {
			return "", fmt.Errorf("failed to synthesize chunk %d: %w", i, err)
		}
		// MP3 frames are self-delimiting, so chunks concatenate into one
		// playable file.
		if _, err := out.Write(audio); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", outPath, err)
		}
	}

	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", outPath, err)
	}

	g.log.WithFields(logrus.Fields{
		"chunks": len(chunks),
		"file":   outPath,
	}).Info("Narration written")
	return outPath, nil
}

func (g *GoogleEngine) chunk(ctx context.Context, text, cacheName string) ([]byte, error) {
	var cachePath string
	if g.cacheDir != "" {
		cachePath = filepath.Join(g.cacheDir, cacheName)
		if data, err := os.ReadFile(cachePath); err == nil {
			g.log.WithField("file", cachePath).Debug("Using cached audio chunk")
			return data, nil
		}
	}

	audioCfg := &texttospeechpb.AudioConfig{
		AudioEncoding: texttospeechpb.AudioEncoding_MP3,
	}
	// Chirp voices reject speakingRate
	if g.speed > 0 && !strings.Contains(strings.ToLower(g.voice), "chirp") {
		audioCfg.SpeakingRate = g.speed
	}

	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: g.language,
			Name:         g.voice,
		},
		AudioConfig: audioCfg,
	}

	data, err := g.client.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}

	if cachePath != "" {
		if err := os.WriteFile(cachePath, data, 0644); err != nil {
			g.log.WithError(err).Warn("Failed to cache audio chunk")
		}
	}
	return data, nil
}

func md5Sum(s string) string {
	h := md5.New()
	io.WriteString(h, s)
	return fmt.Sprintf("%x", h.Sum(nil))
}

func splitIntoChunks(text string, limit int) []string {
	var chunks []string
	runes := []rune(text) // safe for UTF-8
	for i := 0; i < len(runes); i += limit {
		end := i + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

func withExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
