package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
)

const (
	answerContextChars  = 10000
	suggestContextChars = 5000
)

// ErrNoModel is returned for questions when no language model is configured.
var ErrNoModel = errors.New("no language model available for questions")

var answerPrompt = template.Must(template.New("answer").Parse(`You are an assistant helping a reader understand a book.
Answer the question based ONLY on the provided context, in at most 3 sentences.
Respond with exactly one JSON object: {"answer": "..."}

Context (may be truncated):

{{.Context}}

Question: {{.Question}}
`))

var suggestPrompt = template.Must(template.New("suggest").Parse(`Generate 2 interesting questions a reader might ask about this book.
Respond with ONLY a JSON array of strings, for example ["Question 1?", "Question 2?"]

Context (may be truncated):

{{.Context}}
`))

// Questioner answers reader questions about a book.
type Questioner interface {
	Answer(ctx context.Context, text, question string) (string, error)
	SuggestQuestions(ctx context.Context, text string) ([]string, error)
}

type questionData struct {
	Context  string
	Question string
}

// Answer replies to question using the opening of text as context.
func (g *GeminiAnalyzer) Answer(ctx context.Context, text, question string) (string, error) {
	raw, err := g.ask(ctx, answerPrompt, questionData{
		Context:  truncate(text, answerContextChars),
		Question: question,
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return "", fmt.Errorf("failed to parse answer: %w", err)
	}
	return strings.TrimSpace(resp.Answer), nil
}

// SuggestQuestions proposes questions a reader might ask about text.
func (g *GeminiAnalyzer) SuggestQuestions(ctx context.Context, text string) ([]string, error) {
	raw, err := g.ask(ctx, suggestPrompt, questionData{Context: truncate(text, suggestContextChars)})
	if err != nil {
		return nil, err
	}

	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("failed to parse suggested questions: %w", err)
	}

	questions := make([]string, 0, len(list))
	for _, q := range list {
		if q = strings.TrimSpace(q); q != "" {
			questions = append(questions, q)
		}
	}
	return questions, nil
}

func (g *GeminiAnalyzer) ask(ctx context.Context, tmpl *template.Template, data questionData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", tmpl.Name(), err)
	}

	raw, err := g.model.GenerateJSON(ctx, buf.String())
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", tmpl.Name(), err)
	}
	return stripFences(raw), nil
}

// Answer always fails: heuristics cannot read a book.
func (HeuristicAnalyzer) Answer(context.Context, string, string) (string, error) {
	return "", ErrNoModel
}

// SuggestQuestions has nothing to suggest without a model.
func (HeuristicAnalyzer) SuggestQuestions(context.Context, string) ([]string, error) {
	return []string{}, nil
}
