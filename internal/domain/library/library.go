package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when no book has the requested ID.
var ErrNotFound = errors.New("book not found")

var allowedExtensions = map[string]bool{".pdf": true, ".epub": true, ".txt": true}

// Book is a stored book and the media generated from it.
type Book struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Author     string   `json:"author"`
	Filename   string   `json:"filename"`
	UploadDate int64    `json:"upload_date"`
	FileSize   int64    `json:"file_size"`
	Thumbnail  *string  `json:"thumbnail"`
	Images     []string `json:"images,omitempty"`
	Audio      string   `json:"audio,omitempty"`
}

// Store is the JSON-file book registry. Book files live in uploadDir.
type Store struct {
	mu        sync.RWMutex
	uploadDir string
	dbPath    string
	books     []Book
	now       func() time.Time
	log       *logrus.Entry
}

// Open loads the registry at dbPath and registers any book file in
// uploadDir it does not know yet. An unreadable registry starts empty.
func Open(uploadDir, dbPath string) (*Store, error) {
	s := &Store{
		uploadDir: uploadDir,
		dbPath:    dbPath,
		now:       time.Now,
		log:       logrus.WithField("component", "library"),
	}

	if err := s.load(); err != nil {
		s.log.WithError(err).Warn("Failed to load library, starting empty")
		s.books = nil
	}

	if err := s.backfill(); err != nil {
		return nil, err
	}
	return s, nil
}

// UploadDir is where book files are kept.
func (s *Store) UploadDir() string {
	return s.uploadDir
}

// Path returns the on-disk location of a book's file.
func (s *Store) Path(b Book) string {
	return filepath.Join(s.uploadDir, b.Filename)
}

// Add registers a file already placed in the upload directory. A previous
// entry for the same filename is replaced.
func (s *Store) Add(title, author, filename string) (Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.newBook(title, author, filename)
	s.insert(b)
	if err := s.save(); err != nil {
		return Book{}, err
	}
	return b, nil
}

// List returns all books newest first, forgetting those whose file is gone.
func (s *Store) List() ([]Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	valid := s.books[:0:0]
	for _, b := range s.books {
		if _, err := os.Stat(s.Path(b)); err == nil {
			valid = append(valid, b)
		}
	}
	if len(valid) != len(s.books) {
		s.log.WithField("pruned", len(s.books)-len(valid)).Info("Removed books with missing files")
		s.books = valid
		if err := s.save(); err != nil {
			return nil, err
		}
	}

	out := append([]Book(nil), s.books...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UploadDate > out[j].UploadDate
	})
	return out, nil
}

func (s *Store) Get(id string) (Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.index(id); i >= 0 {
		return s.books[i], nil
	}
	return Book{}, fmt.Errorf("%s: %w", id, ErrNotFound)
}

// Delete removes the book and its file.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}

	path := s.Path(s.books[i])
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.WithError(err).WithField("file", path).Warn("Failed to delete book file")
	}

	s.books = append(s.books[:i], s.books[i+1:]...)
	return s.save()
}

func (s *Store) SetThumbnail(id, thumbnail string) error {
	return s.update(id, func(b *Book) {
		b.Thumbnail = &thumbnail
	})
}

// SetAssets records generated media. A nil images slice or empty audio
// leaves the existing value alone.
func (s *Store) SetAssets(id string, images []string, audio string) error {
	return s.update(id, func(b *Book) {
		if images != nil {
			b.Images = images
		}
		if audio != "" {
			b.Audio = audio
		}
	})
}

func (s *Store) update(id string, fn func(*Book)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	fn(&s.books[i])
	return s.save()
}

func (s *Store) newBook(title, author, filename string) Book {
	if title == "" {
		title = "Unknown Title"
	}
	if author == "" {
		author = "Unknown Author"
	}

	var size int64
	if info, err := os.Stat(filepath.Join(s.uploadDir, filename)); err == nil {
		size = info.Size()
	}

	return Book{
		ID:         uuid.NewString(),
		Title:      title,
		Author:     author,
		Filename:   filename,
		UploadDate: s.now().Unix(),
		FileSize:   size,
	}
}

// insert puts b first, dropping any entry with the same filename.
func (s *Store) insert(b Book) {
	kept := make([]Book, 0, len(s.books)+1)
	kept = append(kept, b)
	for _, existing := range s.books {
		if existing.Filename != b.Filename {
			kept = append(kept, existing)
		}
	}
	s.books = kept
}

func (s *Store) index(id string) int {
	for i, b := range s.books {
		if b.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.dbPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &s.books); err != nil {
		return fmt.Errorf("failed to decode %s: %w", s.dbPath, err)
	}
	s.log.WithField("books", len(s.books)).Info("Library loaded")
	return nil
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.books, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode library: %w", err)
	}
	if err := os.WriteFile(s.dbPath, data, 0644); err != nil {
		return fmt.Errorf("failed to save library: %w", err)
	}
	return nil
}

func (s *Store) backfill() error {
	entries, err := os.ReadDir(s.uploadDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", s.uploadDir, err)
	}

	known := make(map[string]bool, len(s.books))
	for _, b := range s.books {
		known[b.Filename] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || known[name] || !allowedExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		s.log.WithField("file", name).Info("Found unlisted book")
		s.insert(s.newBook(name, "Unknown", name))
		count++
	}

	if count == 0 {
		return nil
	}
	s.log.WithField("count", count).Info("Backfilled books into library")
	return s.save()
}
