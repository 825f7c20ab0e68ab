package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyreel/internal/analysis"
	"storyreel/internal/config"
)

func TestBuild(t *testing.T) {
	t.Setenv("STORYREEL_GEMINI_API_KEY", "")
	env := newCLIEnv(t)

	cfg, err := config.Load(env.configPath)
	require.NoError(t, err)

	svc, err := Build(context.Background(), cfg)
	require.NoError(t, err)

	assert.DirExists(t, cfg.Library.UploadDir)
	assert.DirExists(t, cfg.Library.OutputDir)
	assert.NotNil(t, svc.Images)
	assert.NotNil(t, svc.Catalog)
	assert.IsType(t, analysis.HeuristicAnalyzer{}, svc.Questions)

	engine, err := svc.narrator(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mock", engine.Name())
}
