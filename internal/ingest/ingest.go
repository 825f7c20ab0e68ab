package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"storyreel/internal/domain/story"
)

// ErrUnsupportedFormat is returned for files whose text cannot be extracted.
var ErrUnsupportedFormat = errors.New("unsupported file format")

const headerScanLines = 60

var (
	blankRuns  = regexp.MustCompile(`\n{3,}`)
	startMark  = regexp.MustCompile(`(?m)^\*\*\* ?START OF (THE|THIS) PROJECT GUTENBERG.*$`)
	endMark    = regexp.MustCompile(`(?m)^\*\*\* ?END OF (THE|THIS) PROJECT GUTENBERG.*$`)
	titleLine  = regexp.MustCompile(`(?m)^Title:\s*(.+)$`)
	authorLine = regexp.MustCompile(`(?m)^Author:\s*(.+)$`)
)

// Load reads a book from disk. Only plain text is supported.
func Load(path string) (*story.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".txt" {
		return nil, fmt.Errorf("%s: %w", ext, ErrUnsupportedFormat)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	text := normalise(string(raw))
	base := filepath.Base(path)
	doc := &story.Document{
		Title:    strings.TrimSuffix(base, filepath.Ext(base)),
		Author:   "Unknown",
		Filename: base,
	}

	header := firstLines(text, headerScanLines)
	if m := titleLine.FindStringSubmatch(header); m != nil {
		doc.Title = strings.TrimSpace(m[1])
	}
	if m := authorLine.FindStringSubmatch(header); m != nil {
		doc.Author = strings.TrimSpace(m[1])
	}

	doc.Body = Clean(text)
	return doc, nil
}

// Clean strips Gutenberg boilerplate, trailing whitespace and runs of
// blank lines.
func Clean(text string) string {
	text = normalise(text)

	if loc := startMark.FindStringIndex(text); loc != nil {
		text = text[loc[1]:]
	}
	if loc := endMark.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

func normalise(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

func firstLines(text string, n int) string {
	idx := 0
	for i := 0; i < n; i++ {
		next := strings.IndexByte(text[idx:], '\n')
		if next < 0 {
			return text
		}
		idx += next + 1
	}
	return text[:idx]
}
