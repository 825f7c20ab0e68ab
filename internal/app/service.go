package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"storyreel/internal/analysis"
	"storyreel/internal/domain/library"
	"storyreel/internal/domain/library/guten"
	"storyreel/internal/domain/story"
	"storyreel/internal/ingest"
	"storyreel/internal/narration"
	"storyreel/internal/visuals"
)

const (
	analysisFile     = "analysis.json"
	audioFile        = "audiobook.mp3"
	portraitDir      = "portraits"
	assetsPrefix     = "/api/assets/"
	defaultNarration = 2000
)

// ErrEmptyQuestion is returned by Ask for a blank question.
var ErrEmptyQuestion = errors.New("question must not be empty")

// RandomSeed asks Visualize and Portrait to pick a seed themselves.
const RandomSeed = -1

// EngineFactory builds the narration engine on first use, so a missing
// TTS backend only matters to commands that narrate.
type EngineFactory func(ctx context.Context) (narration.Engine, error)

// Components are the collaborators a Service drives.
type Components struct {
	Store     *library.Store
	Catalog   *guten.GutenCache
	Analyzer  analysis.Analyzer
	Questions analysis.Questioner
	Images    *visuals.Generator
	NewEngine EngineFactory
	OutputDir string
	// NarrationChars caps how much of a book is narrated.
	NarrationChars int
}

// Service runs the book pipeline: import, analyze, illustrate, narrate.
type Service struct {
	Components

	log       *logrus.Entry
	portraits singleflight.Group

	engineMu sync.Mutex
	engine   narration.Engine
}

func NewService(c Components) *Service {
	if c.NarrationChars <= 0 {
		c.NarrationChars = defaultNarration
	}
	if c.Questions == nil {
		c.Questions = analysis.HeuristicAnalyzer{}
	}
	return &Service{
		Components: c,
		log:        logrus.WithField("component", "service"),
	}
}

// Import copies a book file into the library and registers it.
func (s *Service) Import(path string) (library.Book, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".txt", ".pdf", ".epub":
	default:
		return library.Book{}, fmt.Errorf("%s: %w", ext, ingest.ErrUnsupportedFormat)
	}

	name := filepath.Base(path)
	dest := filepath.Join(s.Store.UploadDir(), name)
	if err := copyFile(path, dest); err != nil {
		return library.Book{}, err
	}

	title, author := name, "Unknown"
	if doc, err := ingest.Load(dest); err == nil {
		title, author = doc.Title, doc.Author
	}

	b, err := s.Store.Add(title, author, name)
	if err != nil {
		return library.Book{}, err
	}
	s.log.WithFields(logrus.Fields{
		"book":  b.ID,
		"title": b.Title,
	}).Info("Imported book")
	return b, nil
}

// Analyze extracts the semantic map of a book and stores it next to its
// other outputs.
func (s *Service) Analyze(ctx context.Context, bookID string) (*story.SemanticMap, error) {
	b, doc, err := s.document(bookID)
	if err != nil {
		return nil, err
	}

	m, err := s.Analyzer.Analyze(ctx, doc.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze %s: %w", b.Title, err)
	}
	if m.Title == "" {
		m.Title = doc.Title
	}

	dir, err := s.bookDir(bookID)
	if err != nil {
		return nil, err
	}
	if err := analysis.SaveMap(filepath.Join(dir, analysisFile), m); err != nil {
		return nil, err
	}
	return m, nil
}

// SemanticMap returns the stored analysis of a book, running the analysis
// first when there is none.
func (s *Service) SemanticMap(ctx context.Context, bookID string) (*story.SemanticMap, error) {
	m, err := analysis.LoadMap(filepath.Join(s.OutputDir, bookID, analysisFile))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		s.log.WithError(err).Warn("Stored analysis unreadable, analyzing again")
	}
	return s.Analyze(ctx, bookID)
}

// Ask answers a reader's question from the text of a book.
func (s *Service) Ask(ctx context.Context, bookID, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	b, doc, err := s.document(bookID)
	if err != nil {
		return "", err
	}

	answer, err := s.Questions.Answer(ctx, doc.Body, question)
	if err != nil {
		return "", fmt.Errorf("failed to answer question about %s: %w", b.Title, err)
	}
	return answer, nil
}

// SuggestQuestions proposes questions about a book. A failing model yields
// an empty list rather than an error.
func (s *Service) SuggestQuestions(ctx context.Context, bookID string) ([]string, error) {
	_, doc, err := s.document(bookID)
	if err != nil {
		return nil, err
	}

	questions, err := s.Questions.SuggestQuestions(ctx, doc.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.WithError(err).WithField("book", bookID).Warn("Question suggestions failed")
		return []string{}, nil
	}
	return questions, nil
}

// Visualize generates the illustration set for a book and records it. The
// title image, when produced, becomes the book's thumbnail.
func (s *Service) Visualize(ctx context.Context, bookID, style string, seed int) ([]string, error) {
	m, err := s.SemanticMap(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if seed < 0 {
		seed = visuals.RandomSeed()
	}

	images, err := s.Images.Generate(ctx, m, filepath.Join(s.OutputDir, bookID), style, seed)
	if err != nil {
		return nil, err
	}

	if len(images) == 0 {
		s.log.WithField("book", bookID).Warn("No images generated, keeping previous assets")
		return images, nil
	}
	if err := s.Store.SetAssets(bookID, images, ""); err != nil {
		return images, err
	}
	for _, img := range images {
		if strings.HasPrefix(filepath.Base(img), "image_00_title_") {
			if err := s.Store.SetThumbnail(bookID, s.AssetURL(img)); err != nil {
				return images, err
			}
			break
		}
	}
	return images, nil
}

// Portrait returns the avatar of a named entity, generating it the first
// time it is asked for. Concurrent requests for one name share a download.
func (s *Service) Portrait(ctx context.Context, name, role, style string, seed int) (string, error) {
	dir := filepath.Join(s.OutputDir, portraitDir)
	path := filepath.Join(dir, visuals.PortraitFilename(name))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	// The shared download is detached from whichever caller started it, so
	// one caller giving up does not fail the others waiting on it.
	flight := s.portraits.DoChan(path, func() (any, error) {
		if seed < 0 {
			seed = visuals.RandomSeed()
		}
		return s.Images.Portrait(context.WithoutCancel(ctx), name, role, dir, style, seed)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Narrate renders the opening of a book to audio.
func (s *Service) Narrate(ctx context.Context, bookID string) (string, error) {
	_, doc, err := s.document(bookID)
	if err != nil {
		return "", err
	}

	engine, err := s.narrator(ctx)
	if err != nil {
		return "", err
	}

	dir, err := s.bookDir(bookID)
	if err != nil {
		return "", err
	}

	text := doc.Body
	if r := []rune(text); len(r) > s.NarrationChars {
		text = string(r[:s.NarrationChars])
	}

	out, err := engine.Synthesize(ctx, text, filepath.Join(dir, audioFile))
	if err != nil {
		return "", fmt.Errorf("narration with %s failed: %w", engine.Name(), err)
	}
	if err := s.Store.SetAssets(bookID, nil, out); err != nil {
		return out, err
	}
	return out, nil
}

// FetchFromCatalog downloads a catalog entry into the library.
func (s *Service) FetchFromCatalog(ctx context.Context, entry story.OnlineResource) (library.Book, error) {
	path, err := s.Catalog.Download(ctx, entry, s.Store.UploadDir())
	if err != nil {
		return library.Book{}, err
	}
	title, author := entry.Name, entry.Author
	if doc, err := ingest.Load(path); err == nil && doc.Author != "Unknown" {
		title, author = doc.Title, doc.Author
	}
	return s.Store.Add(title, author, filepath.Base(path))
}

// AssetURL maps a file under the output directory to its public URL.
func (s *Service) AssetURL(path string) string {
	rel, err := filepath.Rel(s.OutputDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	return assetsPrefix + filepath.ToSlash(rel)
}

// narrator returns the shared engine, building it on first success. A
// failed build is retried by the next caller.
func (s *Service) narrator(ctx context.Context) (narration.Engine, error) {
	s.engineMu.Lock()
	defer s.engineMu.Unlock()

	if s.engine != nil {
		return s.engine, nil
	}
	if s.NewEngine == nil {
		return nil, errors.New("no narration engine configured")
	}

	// The engine outlives the request that first needs it.
	engine, err := s.NewEngine(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}
	s.engine = engine
	return engine, nil
}

func (s *Service) document(bookID string) (library.Book, *story.Document, error) {
	b, err := s.Store.Get(bookID)
	if err != nil {
		return library.Book{}, nil, err
	}
	doc, err := ingest.Load(s.Store.Path(b))
	if err != nil {
		return b, nil, fmt.Errorf("failed to read %s: %w", b.Filename, err)
	}
	if doc.Title == strings.TrimSuffix(b.Filename, filepath.Ext(b.Filename)) {
		doc.Title = b.Title
	}
	return b, doc, nil
}

func (s *Service) bookDir(bookID string) (string, error) {
	dir := filepath.Join(s.OutputDir, bookID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return dir, nil
}

func copyFile(src, dst string) error {
	srcAbs, _ := filepath.Abs(src)
	dstAbs, _ := filepath.Abs(dst)
	if srcAbs == dstAbs {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
