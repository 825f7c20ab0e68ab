package narration

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// MockEngine writes the text itself instead of audio. It backs offline runs
// and tests.
type MockEngine struct {
	mu    sync.Mutex
	calls []string
}

func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

func (m *MockEngine) Name() string { return EngineTypeMock.String() }

func (m *MockEngine) Synthesize(ctx context.Context, text, outPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.WriteFile(outPath, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", outPath, err)
	}

	m.mu.Lock()
	m.calls = append(m.calls, text)
	m.mu.Unlock()
	return outPath, nil
}

// Calls returns the texts synthesized so far.
func (m *MockEngine) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
