package filestore

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a parsed markdown artifact: the frontmatter fields plus the
// body below the closing delimiter.
type Document struct {
	Meta map[string]any
	Body string
}

// ParseDocument splits an artifact into frontmatter and body. Files
// without a frontmatter block come back with empty Meta and the full text
// as Body.
func ParseDocument(text string) (*Document, error) {
	parts := frontmatterRe.FindStringSubmatch(text)
	if parts == nil {
		return &Document{Meta: map[string]any{}, Body: text}, nil
	}

	block := strings.TrimSuffix(strings.TrimPrefix(parts[1], "---\n"), "---\n")
	meta := map[string]any{}
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	return &Document{Meta: meta, Body: strings.TrimPrefix(parts[2], "\n")}, nil
}
