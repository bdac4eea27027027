package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoDocuments  = errors.New("no relevant documents found for your query")
	ErrDocNotFound  = errors.New("document not found")
	ErrInvalidPath  = errors.New("invalid document path")
	ErrEmptyQuery   = errors.New("empty query")
	ErrNoCompletion = errors.New("no response from OpenAI")
)

// DocEntry is one file in the documentation index. Path is relative to the
// docs root, with the category as its first segment when it has one.
type DocEntry struct {
	Path        string `json:"path"`
	Description string `json:"description"`
}

// Document is a loaded documentation file.
type Document struct {
	Path    string
	Content string
}

// FormatListing renders entries one per line as "- path: description".
func FormatListing(entries []DocEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("- %s: %s", e.Path, e.Description))
	}
	return strings.Join(lines, "\n")
}

// FormatSearchResult joins documents into the text returned to the agent.
func FormatSearchResult(query string, docs []Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d relevant document(s) for: \"%s\"\n", len(docs), query)
	for i, d := range docs {
		if i > 0 {
			b.WriteString("\n\n---\n")
		}
		fmt.Fprintf(&b, "\n\n# %s\n\n%s", d.Path, d.Content)
	}
	return b.String()
}
