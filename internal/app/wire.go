package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"storyreel/internal/analysis"
	"storyreel/internal/config"
	"storyreel/internal/domain/library"
	"storyreel/internal/domain/library/guten"
	"storyreel/internal/narration"
	"storyreel/internal/visuals"
	"storyreel/internal/visuals/fetch"
	"storyreel/internal/visuals/ratelimit"
)

// Build assembles a Service from configuration. The image pipeline gets a
// single Clock and Gate shared by every job in the process.
func Build(ctx context.Context, cfg *config.Config) (*Service, error) {
	for _, dir := range []string{cfg.Library.UploadDir, cfg.Library.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	store, err := library.Open(cfg.Library.UploadDir, cfg.Library.DBFile)
	if err != nil {
		return nil, err
	}

	cacheDir := cfg.Catalog.CacheDir
	if cacheDir == "" {
		cacheDir = getCacheDirectory()
	}
	catalog := guten.NewGutenCache(cfg.Catalog.BaseURL, cacheDir, cfg.Catalog.CacheMaxAge, nil)

	var primary analysis.Analyzer
	var questions analysis.Questioner = analysis.HeuristicAnalyzer{}
	if cfg.Gemini.APIKey != "" {
		model, err := analysis.NewGeminiModel(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			logrus.WithError(err).Warn("Gemini unavailable, using heuristic analysis only")
		} else {
			gemini := analysis.NewGeminiAnalyzer(model, cfg.Gemini.MaxChars, nil)
			primary, questions = gemini, gemini
		}
	} else {
		logrus.Warn("GEMINI_API_KEY is not set, using heuristic analysis only")
	}

	// Each image component tags its own entries with a component field.
	base := logrus.NewEntry(logrus.StandardLogger())
	imgCfg := cfg.Images
	clock := ratelimit.NewClock(imgCfg.SafetyMargin, base)
	gate := ratelimit.NewGate(imgCfg.Concurrency)
	fetcher := fetch.New(&http.Client{}, clock, gate, fetch.Config{
		MaxAttempts:    imgCfg.MaxAttempts,
		AttemptTimeout: imgCfg.AttemptTimeout,
		Cooldown:       imgCfg.Cooldown,
		BackoffBase:    imgCfg.BackoffBase,
		MaxJitter:      imgCfg.MaxJitter,
	}, base)

	images := visuals.NewGenerator(fetcher, visuals.Config{
		Endpoint:        imgCfg.Endpoint,
		Style:           imgCfg.Style,
		TopEntities:     imgCfg.TopEntities,
		SceneSeedOffset: imgCfg.SceneSeedOffset,
	}, base)

	ttsCfg := narration.Config{
		Type:     cfg.TTS.Type,
		Voice:    cfg.TTS.Voice,
		Language: cfg.TTS.Language,
		Speed:    cfg.TTS.Speed,
		CacheDir: filepath.Join(cacheDir, "tts"),
	}

	return NewService(Components{
		Store:     store,
		Catalog:   catalog,
		Analyzer:  analysis.Fallback(primary, analysis.HeuristicAnalyzer{}),
		Questions: questions,
		Images:    images,
		NewEngine: func(ctx context.Context) (narration.Engine, error) {
			return narration.NewEngine(ctx, ttsCfg, logrus.WithField("component", "narration"))
		},
		OutputDir:      cfg.Library.OutputDir,
		NarrationChars: cfg.TTS.MaxChars,
	}), nil
}

// getCacheDirectory returns the appropriate cache directory
func getCacheDirectory() string {
	if cacheDir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cacheDir, "storyreel")
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".storyreel", "cache")
	}

	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, "cache")
	}

	return "cache"
}
