// Package docs serves the AITuberKit documentation tree: an index.json
// describing the files and the markdown files themselves.
package docs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/aituberkit/mcp-proxy/internal/core/domain"
)

// IndexFile is the index location relative to the docs root.
const IndexFile = "index.json"

// Store reads documents from an fs.FS. The index is parsed once at
// construction; file contents are read on every Load.
type Store struct {
	fsys    fs.FS
	entries []domain.DocEntry
}

// NewStore parses IndexFile from fsys. The index maps a category to either a
// {file: description} object or, for top-level files, a description string.
func NewStore(fsys fs.FS) (*Store, error) {
	raw, err := fs.ReadFile(fsys, IndexFile)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", IndexFile, err)
	}
	entries, err := ParseIndex(raw)
	if err != nil {
		return nil, err
	}
	return &Store{fsys: fsys, entries: entries}, nil
}

// ParseIndex decodes an index document into entries sorted by path.
func ParseIndex(raw []byte) ([]domain.DocEntry, error) {
	var index map[string]json.RawMessage
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", IndexFile, err)
	}

	var entries []domain.DocEntry
	for category, value := range index {
		var description string
		if err := json.Unmarshal(value, &description); err == nil {
			entries = append(entries, domain.DocEntry{Path: category, Description: description})
			continue
		}

		var files map[string]string
		if err := json.Unmarshal(value, &files); err != nil {
			return nil, fmt.Errorf("parsing %s: category %q must be a string or an object of strings", IndexFile, category)
		}
		for file, desc := range files {
			entries = append(entries, domain.DocEntry{Path: category + "/" + file, Description: desc})
		}
	}

	slices.SortFunc(entries, func(a, b domain.DocEntry) int {
		return strings.Compare(a.Path, b.Path)
	})
	return entries, nil
}

func (s *Store) Index(context.Context) ([]domain.DocEntry, error) {
	return slices.Clone(s.entries), nil
}

// Load returns the content at p, trying p and then p+".md". Paths must stay
// inside the docs root.
func (s *Store) Load(_ context.Context, p string) (string, error) {
	clean, err := cleanPath(p)
	if err != nil {
		return "", err
	}

	candidates := []string{clean}
	if !strings.HasSuffix(clean, ".md") {
		candidates = append(candidates, clean+".md")
	}

	for _, c := range candidates {
		b, err := fs.ReadFile(s.fsys, c)
		if err == nil {
			return string(b), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("reading %s: %w", c, err)
		}
	}
	return "", fmt.Errorf("%w: %s", domain.ErrDocNotFound, p)
}

func cleanPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidPath, p)
	}
	clean := path.Clean(p)
	if !fs.ValidPath(clean) || clean == "." || clean == IndexFile {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidPath, p)
	}
	return clean, nil
}
