package guten

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"storyreel/internal/domain/story"
)

const (
	DefaultBaseURL = "https://gutendex.com"
	Provider       = "gutenberg"
)

// GutendexResponse represents the API response structure
type GutendexResponse struct {
	Count    int            `json:"count"`
	Next     *string        `json:"next"`
	Previous *string        `json:"previous"`
	Results  []GutendexBook `json:"results"`
}

// GutendexBook represents a book from the Gutendex API
type GutendexBook struct {
	ID            int               `json:"id"`
	Title         string            `json:"title"`
	Authors       []Author          `json:"authors"`
	Subjects      []string          `json:"subjects"`
	Languages     []string          `json:"languages"`
	Formats       map[string]string `json:"formats"`
	DownloadCount int               `json:"download_count"`
}

// Author represents an author from the API
type Author struct {
	Name      string `json:"name"`
	BirthYear *int   `json:"birth_year"`
	DeathYear *int   `json:"death_year"`
}

type cachedSearch struct {
	Results     []story.OnlineResource `json:"results"`
	LastUpdated time.Time              `json:"last_updated"`
}

// CacheInfo describes the search cache file.
type CacheInfo struct {
	Exists       bool      `json:"exists"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	Queries      int       `json:"queries"`
	MaxAge       string    `json:"max_age"`
}

// GutenCache searches Project Gutenberg through Gutendex and keeps the
// results of each query on disk.
type GutenCache struct {
	mu         sync.Mutex
	baseURL    string
	cacheFile  string
	maxAge     time.Duration
	httpClient *http.Client
	now        func() time.Time
}

// NewGutenCache creates a catalog client caching into cacheDir.
func NewGutenCache(baseURL, cacheDir string, maxAge time.Duration, client *http.Client) *GutenCache {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		logrus.WithError(err).Warn("Failed to create cache directory")
	}

	return &GutenCache{
		baseURL:    strings.TrimRight(baseURL, "/"),
		cacheFile:  filepath.Join(cacheDir, "gutenberg_cache.json"),
		maxAge:     maxAge,
		httpClient: client,
		now:        time.Now,
	}
}

// Search returns English books matching query. Fresh cached results are
// served without a request; stale ones only when the API fails.
func (gc *GutenCache) Search(ctx context.Context, query string) ([]story.OnlineResource, error) {
	key := strings.ToLower(strings.TrimSpace(query))

	gc.mu.Lock()
	cache, _ := gc.loadCache()
	gc.mu.Unlock()

	cached, ok := cache[key]
	if ok && gc.now().Sub(cached.LastUpdated) < gc.maxAge {
		logrus.WithField("query", key).Info("Loading Gutenberg results from cache")
		return cached.Results, nil
	}

	logrus.WithField("query", key).Info("Fetching Gutenberg results from API")
	results, err := gc.fetchFromAPI(ctx, key)
	if err != nil {
		if ok {
			logrus.WithError(err).Warn("API fetch failed, using stale cache")
			return cached.Results, nil
		}
		return nil, fmt.Errorf("failed to fetch from API and no cache available: %w", err)
	}

	gc.mu.Lock()
	defer gc.mu.Unlock()
	cache, _ = gc.loadCache()
	if cache == nil {
		cache = make(map[string]cachedSearch)
	}
	cache[key] = cachedSearch{Results: results, LastUpdated: gc.now()}
	if err := gc.saveCache(cache); err != nil {
		logrus.WithError(err).Warn("Failed to save to cache")
	}

	return results, nil
}

// Download saves the plain text of r into dir as gutenberg-<id>.txt.
func (gc *GutenCache) Download(ctx context.Context, r story.OnlineResource, dir string) (string, error) {
	if r.URL == "" {
		return "", fmt.Errorf("%s has no plain text format", r.ID)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := gc.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", r.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download of %s returned status %d", r.ID, resp.StatusCode)
	}

	path := filepath.Join(dir, r.ID+".txt")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to save %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"book": r.ID,
		"file": path,
	}).Info("Downloaded Gutenberg book")
	return path, nil
}

// ClearCache removes the cache file
func (gc *GutenCache) ClearCache() error {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	if err := os.Remove(gc.cacheFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	logrus.Info("Cleared Gutenberg cache")
	return nil
}

// CacheInfo returns information about the cache
func (gc *GutenCache) CacheInfo() CacheInfo {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	info := CacheInfo{Path: gc.cacheFile, MaxAge: gc.maxAge.String()}
	stat, err := os.Stat(gc.cacheFile)
	if err != nil {
		return info
	}
	info.Exists = true
	info.Size = stat.Size()
	info.LastModified = stat.ModTime()
	if cache, err := gc.loadCache(); err == nil {
		info.Queries = len(cache)
	}
	return info
}

func (gc *GutenCache) loadCache() (map[string]cachedSearch, error) {
	data, err := os.ReadFile(gc.cacheFile)
	if err != nil {
		return nil, err
	}
	var cache map[string]cachedSearch
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("failed to decode cache file: %w", err)
	}
	return cache, nil
}

func (gc *GutenCache) saveCache(cache map[string]cachedSearch) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache data: %w", err)
	}
	return os.WriteFile(gc.cacheFile, data, 0644)
}

func (gc *GutenCache) fetchFromAPI(ctx context.Context, query string) ([]story.OnlineResource, error) {
	params := url.Values{}
	params.Set("search", query)
	params.Set("languages", "en")
	endpoint := gc.baseURL + "/books/?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := gc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d for URL %s", resp.StatusCode, endpoint)
	}

	var response GutendexResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	results := convertBooks(response.Results)
	logrus.WithField("count", len(results)).Info("Fetched Gutenberg results from API")
	return results, nil
}

// convertBooks keeps books that offer plain text.
func convertBooks(books []GutendexBook) []story.OnlineResource {
	results := make([]story.OnlineResource, 0, len(books))
	for _, book := range books {
		textURL := bestTextFormat(book.Formats)
		if textURL == "" {
			continue
		}

		authorName := "Unknown"
		if len(book.Authors) > 0 {
			authorName = book.Authors[0].Name
		}

		meta := map[string]string{
			"downloads": strconv.Itoa(book.DownloadCount),
		}
		if len(book.Subjects) > 0 {
			meta["subject"] = book.Subjects[0]
		}

		results = append(results, story.OnlineResource{
			ID:       fmt.Sprintf("%s-%d", Provider, book.ID),
			Name:     cleanTitle(book.Title),
			Author:   authorName,
			Provider: Provider,
			Metadata: meta,
			URL:      textURL,
		})
	}
	return results
}

func bestTextFormat(formats map[string]string) string {
	for _, format := range []string{"text/plain; charset=utf-8", "text/plain; charset=us-ascii", "text/plain"} {
		if u, ok := formats[format]; ok && !strings.HasSuffix(u, ".zip") {
			return u
		}
	}
	return ""
}

func cleanTitle(title string) string {
	title = strings.Replace(title, "(English)", "", 1)
	return strings.Join(strings.Fields(title), " ")
}
