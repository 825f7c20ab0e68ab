package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiAnalyzer_Answer(t *testing.T) {
	model := &stubModel{response: "```json\n{\"answer\": \" Toad wrecks the car. \"}\n```"}
	a := NewGeminiAnalyzer(model, 0, nil)

	text := strings.Repeat("x", answerContextChars) + "TAIL"
	answer, err := a.Answer(context.Background(), text, "What happens to the car?")
	require.NoError(t, err)
	assert.Equal(t, "Toad wrecks the car.", answer)

	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "Question: What happens to the car?")
	assert.NotContains(t, model.prompts[0], "TAIL")
}

func TestGeminiAnalyzer_AnswerErrors(t *testing.T) {
	a := NewGeminiAnalyzer(&stubModel{err: errors.New("quota")}, 0, nil)
	_, err := a.Answer(context.Background(), "text", "why?")
	assert.ErrorContains(t, err, "quota")

	a = NewGeminiAnalyzer(&stubModel{response: "not json"}, 0, nil)
	_, err = a.Answer(context.Background(), "text", "why?")
	assert.Error(t, err)
}

func TestGeminiAnalyzer_SuggestQuestions(t *testing.T) {
	model := &stubModel{response: `["Why does Toad love cars?", "  ", "Who is Badger?"]`}
	a := NewGeminiAnalyzer(model, 0, nil)

	text := strings.Repeat("y", suggestContextChars) + "TAIL"
	questions, err := a.SuggestQuestions(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, []string{"Why does Toad love cars?", "Who is Badger?"}, questions)
	assert.NotContains(t, model.prompts[0], "TAIL")
}

func TestHeuristicAnalyzer_Questions(t *testing.T) {
	_, err := HeuristicAnalyzer{}.Answer(context.Background(), "text", "why?")
	assert.ErrorIs(t, err, ErrNoModel)

	questions, err := HeuristicAnalyzer{}.SuggestQuestions(context.Background(), "text")
	require.NoError(t, err)
	assert.NotNil(t, questions)
	assert.Empty(t, questions)
}
