package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"storyreel/internal/domain/story"
)

// ErrNoEntities is returned when an analysis finds nobody to draw.
var ErrNoEntities = errors.New("analysis found no entities")

// Analyzer turns book text into a semantic map.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*story.SemanticMap, error)
}

type fallback struct {
	primary   Analyzer
	secondary Analyzer
	log       *logrus.Entry
}

// Fallback returns an Analyzer that uses secondary whenever primary fails or
// comes back without entities. A nil primary goes straight to secondary.
func Fallback(primary, secondary Analyzer) Analyzer {
	return &fallback{
		primary:   primary,
		secondary: secondary,
		log:       logrus.WithField("component", "analysis"),
	}
}

func (f *fallback) Analyze(ctx context.Context, text string) (*story.SemanticMap, error) {
	if f.primary != nil {
		m, err := f.primary.Analyze(ctx, text)
		if err == nil && len(m.Entities) > 0 {
			f.log.WithField("entities", len(m.Entities)).Info("Semantic analysis succeeded")
			return m, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err == nil {
			err = ErrNoEntities
		}
		f.log.WithError(err).Warn("Primary analysis failed, falling back to heuristics")
	}

	return f.secondary.Analyze(ctx, text)
}

// SaveMap writes m to path as indented JSON.
func SaveMap(path string, m *story.SemanticMap) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode semantic map: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write semantic map: %w", err)
	}
	return nil
}

// LoadMap reads a semantic map written by SaveMap.
func LoadMap(path string) (*story.SemanticMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m story.SemanticMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode semantic map %s: %w", path, err)
	}
	return &m, nil
}
