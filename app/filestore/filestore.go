// Package filestore owns the markdown artifacts under the data root: one
// file per collected item, grouped in a directory per platform, plus the
// generated _index.md summary.
package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/ryanxin/collector/app/collector"
	"github.com/ryanxin/collector/app/database"
	"github.com/ryanxin/collector/app/richtext"
)

type Store struct {
	dataDir string
	now     func() time.Time
}

func NewStore(dataDir string) *Store {
	return &Store{dataDir: dataDir, now: time.Now}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[/\\:*?"<>|]`)
	whitespaceRun       = regexp.MustCompile(`\s+`)
)

const maxFilenamePart = 80

// sanitizeFilename makes a string safe for use as a filename component.
// The result is NFC-normalized so visually identical names from different
// platforms map to the same file.
func sanitizeFilename(name string) string {
	s := unsafeFilenameChars.ReplaceAllString(name, "_")
	s = whitespaceRun.ReplaceAllString(s, "_")
	s = norm.NFC.String(s)

	runes := []rune(s)
	if len(runes) > maxFilenamePart {
		s = string(runes[:maxFilenamePart])
	}
	return s
}

// WriteItem persists the item as a markdown artifact and returns the file
// path relative to the data root. Inline tag markup in community posts is
// decoded to markdown here, at storage time.
func (s *Store) WriteItem(item collector.Item, sourceType string) (string, error) {
	dir := filepath.Join(s.dataDir, sourceType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create platform directory: %w", err)
	}

	publishedAt := item.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = s.now().UTC()
	}
	dateStr := publishedAt.UTC().Format("2006-01-02")

	filename := fmt.Sprintf("%s_%s_%s.md", dateStr, sanitizeFilename(item.Author), sanitizeFilename(item.Title))
	relPath := filepath.Join(sourceType, filename)

	content := item.Content
	if sourceType == database.SourceTypeZsxq {
		content = richtext.DecodeToMarkdown(content)
	}

	doc := renderDocument(item, sourceType, dateStr, content, s.now().UTC())
	if err := os.WriteFile(filepath.Join(s.dataDir, relPath), []byte(doc), 0o644); err != nil {
		return "", fmt.Errorf("failed to write content file: %w", err)
	}

	return relPath, nil
}

// renderDocument builds the frontmatter block, heading and body. Field
// order is fixed; optional fields are omitted entirely when empty.
func renderDocument(item collector.Item, sourceType, dateStr, content string, collectedAt time.Time) string {
	wordCount := utf8.RuneCountInString(strings.TrimSpace(content))

	lines := []string{
		"---",
		"source: " + sourceType,
		"author: " + item.Author,
		"title: " + quoteTitle(item.Title),
		"url: " + item.URL,
		"date: " + dateStr,
		"tags: [" + strings.Join(item.Tags, ", ") + "]",
	}
	if item.Duration != "" {
		lines = append(lines, `duration: "`+item.Duration+`"`)
	}
	if item.SubtitleType != "" {
		lines = append(lines, "subtitle_type: "+item.SubtitleType)
	}
	if item.Parts > 0 {
		lines = append(lines, fmt.Sprintf("parts: %d", item.Parts))
	}
	lines = append(lines,
		fmt.Sprintf("word_count: %d", wordCount),
		"collected_at: "+collectedAt.Format(time.RFC3339),
		"---",
		"",
		"# "+item.Title,
		"",
		content,
		"",
	)

	return strings.Join(lines, "\n")
}

func quoteTitle(title string) string {
	return `"` + strings.ReplaceAll(title, `"`, `\"`) + `"`
}

// Read returns the artifact's contents, or "" without error when the file
// is gone.
func (s *Store) Read(relPath string) (string, error) {
	data, err := os.ReadFile(s.resolve(relPath))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read content file: %w", err)
	}
	return string(data), nil
}

// Delete removes the artifact; a missing file is not an error.
func (s *Store) Delete(relPath string) error {
	err := os.Remove(s.resolve(relPath))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete content file: %w", err)
	}
	return nil
}

// resolve maps a stored path onto the data root. Absolute paths are the
// deprecated legacy form and pass through unchanged.
func (s *Store) resolve(relPath string) string {
	if filepath.IsAbs(relPath) {
		return relPath
	}
	return filepath.Join(s.dataDir, relPath)
}
