package library

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	uploads := filepath.Join(dir, "uploads")
	require.NoError(t, os.MkdirAll(uploads, 0755))
	return uploads, filepath.Join(dir, "library.json")
}

func placeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestOpen_Backfill(t *testing.T) {
	uploads, db := setup(t)
	placeFile(t, uploads, "a.txt", "hello")
	placeFile(t, uploads, "b.epub", "x")
	placeFile(t, uploads, "notes.md", "ignored")

	s, err := Open(uploads, db)
	require.NoError(t, err)

	books, err := s.List()
	require.NoError(t, err)
	require.Len(t, books, 2)
	names := []string{books[0].Filename, books[1].Filename}
	assert.ElementsMatch(t, []string{"a.txt", "b.epub"}, names)
	for _, b := range books {
		assert.Equal(t, "Unknown", b.Author)
		assert.Equal(t, b.Filename, b.Title)
		assert.NotEmpty(t, b.ID)
	}
	assert.FileExists(t, db)

	// reopening does not duplicate
	s2, err := Open(uploads, db)
	require.NoError(t, err)
	books2, err := s2.List()
	require.NoError(t, err)
	assert.Len(t, books2, 2)
}

func TestOpen_MissingUploadDir(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "nope"), filepath.Join(dir, "library.json"))
	require.NoError(t, err)
	books, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestOpen_CorruptRegistry(t *testing.T) {
	uploads, db := setup(t)
	require.NoError(t, os.WriteFile(db, []byte("{not json"), 0644))

	s, err := Open(uploads, db)
	require.NoError(t, err)
	books, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestAdd_ReplacesSameFilenameNewestFirst(t *testing.T) {
	uploads, db := setup(t)
	s, err := Open(uploads, db)
	require.NoError(t, err)

	clock := time.Unix(1000, 0)
	s.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	placeFile(t, uploads, "one.txt", "12345")
	placeFile(t, uploads, "two.txt", "x")

	first, err := s.Add("One", "A", "one.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), first.FileSize)

	_, err = s.Add("Two", "", "two.txt")
	require.NoError(t, err)
	again, err := s.Add("One v2", "A", "one.txt")
	require.NoError(t, err)

	books, err := s.List()
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, again.ID, books[0].ID)
	assert.Equal(t, "One v2", books[0].Title)
	assert.Equal(t, "Unknown Author", books[1].Author)

	_, err = s.Get(first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_PrunesMissingFiles(t *testing.T) {
	uploads, db := setup(t)
	placeFile(t, uploads, "keep.txt", "x")
	placeFile(t, uploads, "gone.txt", "x")
	s, err := Open(uploads, db)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(uploads, "gone.txt")))

	books, err := s.List()
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "keep.txt", books[0].Filename)
}

func TestDelete(t *testing.T) {
	uploads, db := setup(t)
	placeFile(t, uploads, "a.txt", "x")
	s, err := Open(uploads, db)
	require.NoError(t, err)
	books, err := s.List()
	require.NoError(t, err)
	require.Len(t, books, 1)

	require.NoError(t, s.Delete(books[0].ID))
	assert.NoFileExists(t, filepath.Join(uploads, "a.txt"))
	assert.ErrorIs(t, s.Delete(books[0].ID), ErrNotFound)
}

func TestSetThumbnailAndAssets(t *testing.T) {
	uploads, db := setup(t)
	placeFile(t, uploads, "a.txt", "x")
	s, err := Open(uploads, db)
	require.NoError(t, err)
	books, err := s.List()
	require.NoError(t, err)
	id := books[0].ID

	require.NoError(t, s.SetThumbnail(id, "/api/assets/x/image_00_title_A.jpg"))
	require.NoError(t, s.SetAssets(id, []string{"i1.jpg", "i2.jpg"}, ""))
	require.NoError(t, s.SetAssets(id, nil, "audio.mp3"))

	// persisted
	s2, err := Open(uploads, db)
	require.NoError(t, err)
	b, err := s2.Get(id)
	require.NoError(t, err)
	require.NotNil(t, b.Thumbnail)
	assert.Equal(t, "/api/assets/x/image_00_title_A.jpg", *b.Thumbnail)
	assert.Equal(t, []string{"i1.jpg", "i2.jpg"}, b.Images)
	assert.Equal(t, "audio.mp3", b.Audio)

	assert.ErrorIs(t, s.SetThumbnail("missing", "x"), ErrNotFound)
	assert.ErrorIs(t, s.SetAssets("missing", nil, "x"), ErrNotFound)
}
