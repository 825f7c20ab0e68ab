package analysis

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyreel/internal/domain/story"
)

type stubModel struct {
	response string
	err      error
	prompts  []string
}

func (s *stubModel) GenerateJSON(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.response, s.err
}

type stubAnalyzer struct {
	m     *story.SemanticMap
	err   error
	calls int
}

func (s *stubAnalyzer) Analyze(context.Context, string) (*story.SemanticMap, error) {
	s.calls++
	return s.m, s.err
}

func TestHeuristicAnalyzer(t *testing.T) {
	text := "Toad drove the car. Mole and Rat watched. Then Toad laughed. " +
		"Rat sighed. The Badger slept. Toad again. Mr Rat? Ox ran."

	m, err := HeuristicAnalyzer{}.Analyze(context.Background(), text)
	require.NoError(t, err)

	names := make([]string, 0, len(m.Entities))
	for _, e := range m.Entities {
		names = append(names, e.Name)
		assert.Equal(t, "Character", e.Role)
		assert.Empty(t, e.Description)
	}
	// Toad 3, Rat 3 (Toad seen first), Mole 1, Badger 1. "The", "Then", "Mr" are
	// stop words and "Ox" is too short.
	assert.Equal(t, []string{"Toad", "Rat", "Mole", "Badger"}, names)
	assert.Equal(t, []string{heuristicScene}, m.Scenes)
	assert.Equal(t, text+"...", m.Summary)
}

func TestHeuristicAnalyzer_LimitsAndTruncation(t *testing.T) {
	text := "Alpha Bravo Charlie Delta Echo Foxtrot Golf " + strings.Repeat("x", 300)

	m, err := HeuristicAnalyzer{}.Analyze(context.Background(), text)
	require.NoError(t, err)

	assert.Len(t, m.Entities, heuristicTop)
	assert.Equal(t, "Alpha", m.Entities[0].Name)
	assert.Equal(t, summaryLimit+3, len([]rune(m.Summary)))
}

func TestHeuristicAnalyzer_OnlyScansPrefix(t *testing.T) {
	text := strings.Repeat("a ", scanLimit/2) + "Zebedee"

	m, err := HeuristicAnalyzer{}.Analyze(context.Background(), text)
	require.NoError(t, err)
	assert.Empty(t, m.Entities)
}

func TestGeminiAnalyzer(t *testing.T) {
	model := &stubModel{response: "```json\n" +
		`{"summary":"A toad learns.","entities":[["Toad","protagonist","green, goggles"],["Rat"]],"keywords":["friendship"],"scenes":["Toad crashes a car."]}` +
		"\n```"}
	a := NewGeminiAnalyzer(model, 10, nil)

	m, err := a.Analyze(context.Background(), "0123456789ABCDEF")
	require.NoError(t, err)

	require.Len(t, m.Entities, 2)
	assert.Equal(t, story.Entity{Name: "Toad", Role: "protagonist", Description: "green, goggles"}, m.Entities[0])
	assert.Equal(t, story.Entity{Name: "Rat", Role: "Character"}, m.Entities[1])
	assert.Equal(t, []string{"Toad crashes a car."}, m.Scenes)

	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "0123456789")
	assert.NotContains(t, model.prompts[0], "ABCDEF")
}

func TestGeminiAnalyzer_Errors(t *testing.T) {
	_, err := NewGeminiAnalyzer(&stubModel{err: errors.New("quota")}, 0, nil).Analyze(context.Background(), "x")
	assert.ErrorContains(t, err, "quota")

	_, err = NewGeminiAnalyzer(&stubModel{response: "not json"}, 0, nil).Analyze(context.Background(), "x")
	assert.Error(t, err)

	_, err = NewGeminiAnalyzer(&stubModel{response: `{"summary":"s","entities":[]}`}, 0, nil).Analyze(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoEntities)
}

func TestFallback(t *testing.T) {
	good := &story.SemanticMap{Entities: []story.Entity{{Name: "Toad"}}}
	backup := &story.SemanticMap{Summary: "backup"}

	tests := []struct {
		name       string
		primary    *stubAnalyzer
		wantBackup bool
	}{
		{"primary ok", &stubAnalyzer{m: good}, false},
		{"primary error", &stubAnalyzer{err: errors.New("boom")}, true},
		{"primary empty", &stubAnalyzer{m: &story.SemanticMap{}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secondary := &stubAnalyzer{m: backup}
			m, err := Fallback(tt.primary, secondary).Analyze(context.Background(), "text")
			require.NoError(t, err)
			if tt.wantBackup {
				assert.Same(t, backup, m)
				assert.Equal(t, 1, secondary.calls)
			} else {
				assert.Same(t, good, m)
				assert.Zero(t, secondary.calls)
			}
		})
	}
}

func TestFallback_NilPrimary(t *testing.T) {
	secondary := &stubAnalyzer{m: &story.SemanticMap{}}
	_, err := Fallback(nil, secondary).Analyze(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, 1, secondary.calls)
}

func TestSaveLoadMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis.json")
	m := &story.SemanticMap{
		Title:    "Willows",
		Summary:  "s",
		Entities: []story.Entity{{Name: "Toad", Role: "hero", Description: "green"}},
		Scenes:   []string{"river"},
	}

	require.NoError(t, SaveMap(path, m))
	got, err := LoadMap(path)
	require.NoError(t, err)
	assert.Equal(t, m.Entities, got.Entities)
	assert.Equal(t, "Willows", got.Title)

	_, err = LoadMap(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
