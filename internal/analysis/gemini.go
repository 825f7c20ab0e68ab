package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"storyreel/internal/domain/story"
)

const defaultMaxChars = 5000

var analysisPrompt = template.Must(template.New("analysis").Parse(`You are an expert literary analyst and visual storytelling assistant.
Analyze the following book text and respond with exactly one JSON object, no markdown and no commentary.

Rules:
- "summary": a plot summary of at most 3 sentences.
- "entities": the 3 to 10 main characters, sentient beings only (people, animals, robots), most important first.
  Each is ["Character Name", "Role", "Visual Description"] where the description is concrete and visual.
- "keywords": 5 to 10 themes of 1 to 3 words each.
- "scenes": 3 to 5 key scenes, each one descriptive sentence suitable for image generation.

Schema:
{"summary": "...", "entities": [["Name", "Role", "Visual description"]], "keywords": ["theme"], "scenes": ["scene"]}

Text (may be truncated):

{{.}}
`))

// TextModel is the slice of a generative model the analyzer needs.
type TextModel interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// GeminiAnalyzer asks a language model for the semantic map.
type GeminiAnalyzer struct {
	model    TextModel
	maxChars int
	log      *logrus.Entry
}

func NewGeminiAnalyzer(model TextModel, maxChars int, log *logrus.Entry) *GeminiAnalyzer {
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	if log == nil {
		log = logrus.WithField("component", "gemini")
	}
	return &GeminiAnalyzer{model: model, maxChars: maxChars, log: log}
}

func (g *GeminiAnalyzer) Analyze(ctx context.Context, text string) (*story.SemanticMap, error) {
	var buf bytes.Buffer
	if err := analysisPrompt.Execute(&buf, truncate(text, g.maxChars)); err != nil {
		return nil, fmt.Errorf("failed to render analysis prompt: %w", err)
	}

	raw, err := g.model.GenerateJSON(ctx, buf.String())
	if err != nil {
		return nil, fmt.Errorf("semantic analysis request failed: %w", err)
	}
	g.log.WithField("response_length", len(raw)).Debug("Received analysis response")

	var m story.SemanticMap
	if err := json.Unmarshal([]byte(stripFences(raw)), &m); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}
	if len(m.Entities) == 0 {
		return &m, ErrNoEntities
	}
	return &m, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// GeminiModel implements TextModel on the Gemini API.
type GeminiModel struct {
	client *genai.Client
	model  string
}

func NewGeminiModel(ctx context.Context, apiKey, model string) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key cannot be empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiModel{client: client, model: model}, nil
}

func (g *GeminiModel) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("no content generated")
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", errors.New("content blocked by safety filters")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}
