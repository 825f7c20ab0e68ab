package guten

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyreel/internal/domain/story"
)

type gutendexStub struct {
	srv      *httptest.Server
	searches atomic.Int32
	fail     atomic.Bool
}

func newGutendexStub(t *testing.T) *gutendexStub {
	t.Helper()
	g := &gutendexStub{}
	mux := http.NewServeMux()
	mux.HandleFunc("/books/", func(w http.ResponseWriter, r *http.Request) {
		g.searches.Add(1)
		if g.fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "en", r.URL.Query().Get("languages"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"count":3,"next":null,"previous":null,"results":[
			{"id":27805,"title":"The Wind in the Willows (English)","authors":[{"name":"Grahame, Kenneth","birth_year":1859,"death_year":1932}],
			 "subjects":["Animals -- Fiction"],"languages":["en"],"download_count":900,
			 "formats":{"text/plain; charset=utf-8":"%[1]s/files/27805.txt","application/epub+zip":"%[1]s/x.epub"}},
			{"id":1,"title":"Only Zipped","authors":[],"formats":{"text/plain":"%[1]s/files/1.zip"}},
			{"id":2,"title":"No   Text","authors":[],"formats":{"text/plain":"%[1]s/files/2.txt"}}
		]}`, g.srv.URL)
	})
	mux.HandleFunc("/files/27805.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Title: The Wind in the Willows\n\nThe Mole had been working very hard.")
	})
	g.srv = httptest.NewServer(mux)
	t.Cleanup(g.srv.Close)
	return g
}

func TestSearch_ConvertsAndCaches(t *testing.T) {
	stub := newGutendexStub(t)
	gc := NewGutenCache(stub.srv.URL, t.TempDir(), time.Hour, stub.srv.Client())

	results, err := gc.Search(context.Background(), "Willows")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "gutenberg-27805", results[0].ID)
	assert.Equal(t, "The Wind in the Willows", results[0].Name)
	assert.Equal(t, "Grahame, Kenneth", results[0].Author)
	assert.Equal(t, Provider, results[0].Provider)
	assert.Equal(t, "900", results[0].Metadata["downloads"])
	assert.Equal(t, "Animals -- Fiction", results[0].Metadata["subject"])
	assert.Equal(t, "No Text", results[1].Name)
	assert.Equal(t, "Unknown", results[1].Author)

	again, err := gc.Search(context.Background(), "willows ")
	require.NoError(t, err)
	assert.Equal(t, results, again)
	assert.Equal(t, int32(1), stub.searches.Load())
}

func TestSearch_StaleCacheOnFailure(t *testing.T) {
	stub := newGutendexStub(t)
	gc := NewGutenCache(stub.srv.URL, t.TempDir(), time.Minute, stub.srv.Client())

	_, err := gc.Search(context.Background(), "willows")
	require.NoError(t, err)

	gc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	stub.fail.Store(true)

	results, err := gc.Search(context.Background(), "willows")
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, int32(2), stub.searches.Load())

	_, err = gc.Search(context.Background(), "uncached")
	assert.Error(t, err)
}

func TestDownload(t *testing.T) {
	stub := newGutendexStub(t)
	gc := NewGutenCache(stub.srv.URL, t.TempDir(), time.Hour, stub.srv.Client())
	results, err := gc.Search(context.Background(), "willows")
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := gc.Download(context.Background(), results[0], dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "gutenberg-27805.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "The Mole")

	_, err = gc.Download(context.Background(), results[1], dir)
	assert.Error(t, err)

	_, err = gc.Download(context.Background(), story.OnlineResource{ID: "gutenberg-9"}, dir)
	assert.Error(t, err)
}

func TestCacheInfoAndClear(t *testing.T) {
	stub := newGutendexStub(t)
	gc := NewGutenCache(stub.srv.URL, t.TempDir(), time.Hour, stub.srv.Client())

	assert.False(t, gc.CacheInfo().Exists)

	_, err := gc.Search(context.Background(), "willows")
	require.NoError(t, err)

	info := gc.CacheInfo()
	assert.True(t, info.Exists)
	assert.Equal(t, 1, info.Queries)
	assert.Positive(t, info.Size)
	assert.Equal(t, "1h0m0s", info.MaxAge)

	require.NoError(t, gc.ClearCache())
	assert.False(t, gc.CacheInfo().Exists)
	require.NoError(t, gc.ClearCache())
}
