package visuals

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"storyreel/internal/domain/story"
)

// DefaultEndpoint is the public text-to-image service.
const DefaultEndpoint = "https://image.pollinations.ai"

// Downloader fetches one URL into one file. fetch.Fetcher is the
// production implementation.
type Downloader interface {
	FetchAndSave(ctx context.Context, url, path, description string) (string, error)
}

// Config describes the batch layout.
type Config struct {
	Endpoint        string
	Style           string
	TopEntities     int
	SceneSeedOffset int
}

func DefaultConfig() Config {
	return Config{
		Endpoint:        DefaultEndpoint,
		Style:           "storybook",
		TopEntities:     3,
		SceneSeedOffset: 200,
	}
}

// Kind is the category of an image slot.
type Kind string

const (
	KindTitle    Kind = "title"
	KindScene    Kind = "scene"
	KindEntity   Kind = "entity"
	KindPortrait Kind = "portrait"
)

// Slot is one planned image: what to ask for and where to put it.
type Slot struct {
	Kind        Kind
	Index       int
	Seed        int
	Prompt      string
	URL         string
	Path        string
	Description string
}

// Generator turns a SemanticMap into a set of illustrations.
type Generator struct {
	dl  Downloader
	cfg Config
	log *logrus.Entry
}

func NewGenerator(dl Downloader, cfg Config, log *logrus.Entry) *Generator {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.TopEntities < 0 {
		cfg.TopEntities = 0
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Generator{dl: dl, cfg: cfg, log: log.WithField("component", "visuals")}
}

// RandomSeed picks a base seed when the caller has none.
func RandomSeed() int {
	return rand.IntN(10001)
}

func (g *Generator) style(requested string, m *story.SemanticMap) string {
	switch {
	case requested != "":
		return requested
	case m != nil && m.Style != "":
		return m.Style
	default:
		return g.cfg.Style
	}
}

// Plan lays out every image for a book without touching the network.
// Seeds are derived from seed per slot: the title uses seed, scene i uses
// seed+SceneSeedOffset+i and entity i uses seed+i+1.
func (g *Generator) Plan(m *story.SemanticMap, outputDir, style string, seed int) []Slot {
	style = g.style(style, m)
	var slots []Slot

	if m.Title != "" {
		prompt := render(titlePrompt, promptData{Title: m.Title, Style: style})
		slots = append(slots, Slot{
			Kind:        KindTitle,
			Seed:        seed,
			Prompt:      prompt,
			URL:         imageURL(g.cfg.Endpoint, prompt, seed, 1280, 720),
			Path:        filepath.Join(outputDir, titleFilename(m.Title)),
			Description: "Title Page",
		})
	}

	characters := characterContext(m.Entities)
	for i, scene := range m.Scenes {
		s := seed + g.cfg.SceneSeedOffset + i
		prompt := render(scenePrompt, promptData{Scene: scene, Characters: characters, Style: style})
		slots = append(slots, Slot{
			Kind:        KindScene,
			Index:       i,
			Seed:        s,
			Prompt:      prompt,
			URL:         imageURL(g.cfg.Endpoint, prompt, s, 1280, 720),
			Path:        filepath.Join(outputDir, sceneFilename(i)),
			Description: fmt.Sprintf("Scene %d", i+1),
		})
	}

	entities := m.TopEntities(g.cfg.TopEntities)
	filenames := entityFilenames(entities)
	for i, ent := range entities {
		s := seed + i + 1
		prompt := render(entityPrompt, promptData{Name: ent.Name, Role: ent.Role, Style: style})
		slots = append(slots, Slot{
			Kind:        KindEntity,
			Index:       i,
			Seed:        s,
			Prompt:      prompt,
			URL:         imageURL(g.cfg.Endpoint, prompt, s, 1280, 720),
			Path:        filepath.Join(outputDir, filenames[i]),
			Description: "Entity: " + ent.Name,
		})
	}

	return slots
}

// Generate downloads every planned image concurrently and returns the
// paths that were written, sorted by file name. Individual failures are
// logged and left out; the error is only for setup problems.
func (g *Generator) Generate(ctx context.Context, m *story.SemanticMap, outputDir, style string, seed int) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	slots := g.Plan(m, outputDir, style, seed)
	g.log.WithFields(logrus.Fields{
		"images": len(slots),
		"style":  g.style(style, m),
		"seed":   seed,
	}).Info("Starting image generation")

	p := pool.NewWithResults[string]()
	for _, slot := range slots {
		p.Go(func() string {
			path, err := g.dl.FetchAndSave(ctx, slot.URL, slot.Path, slot.Description)
			if err != nil {
				g.log.WithError(err).WithField("image", slot.Description).Warn("Image skipped")
				return ""
			}
			return path
		})
	}

	images := slices.DeleteFunc(p.Wait(), func(path string) bool { return path == "" })
	slices.SortFunc(images, func(a, b string) int {
		return strings.Compare(filepath.Base(a), filepath.Base(b))
	})

	g.log.WithFields(logrus.Fields{
		"requested": len(slots),
		"generated": len(images),
	}).Info("Image generation finished")

	return images, nil
}

// PortraitSlot plans a single avatar for a named entity.
func (g *Generator) PortraitSlot(name, role, outputDir, style string, seed int) Slot {
	if role == "" {
		role = "Character"
	}
	style = g.style(style, nil)
	prompt := render(portraitPrompt, promptData{Name: name, Role: role, Style: style})
	return Slot{
		Kind:        KindPortrait,
		Seed:        seed,
		Prompt:      prompt,
		URL:         imageURL(g.cfg.Endpoint, prompt, seed, 512, 512),
		Path:        filepath.Join(outputDir, PortraitFilename(name)),
		Description: "Entity: " + name,
	}
}

// Portrait generates one avatar on demand, outside of any batch.
func (g *Generator) Portrait(ctx context.Context, name, role, outputDir, style string, seed int) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}
	slot := g.PortraitSlot(name, role, outputDir, style, seed)
	return g.dl.FetchAndSave(ctx, slot.URL, slot.Path, slot.Description)
}

func characterContext(entities []story.Entity) string {
	parts := make([]string, 0, len(entities))
	for _, ent := range entities {
		if ent.Description != "" {
			parts = append(parts, fmt.Sprintf("%s (%s)", ent.Name, ent.Description))
		} else {
			parts = append(parts, ent.Name)
		}
	}
	return strings.Join(parts, ", ")
}
