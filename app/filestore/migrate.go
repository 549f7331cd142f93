package filestore

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ryanxin/collector/app/database"
	"github.com/ryanxin/collector/app/richtext"
)

// MigrateResult summarizes one storage repair pass.
type MigrateResult struct {
	Total          int      `json:"total"`
	Cleaned        int      `json:"cleaned"`
	WordCountAdded int      `json:"word_count_added"`
	Errors         []string `json:"errors"`
}

var (
	frontmatterRe = regexp.MustCompile(`(?s)^(---\n.*?\n---\n)(.*)$`)
	yamlKeyRe     = regexp.MustCompile(`^\w[\w_]*:`)
	sourceLineRe  = regexp.MustCompile(`(?m)^source:\s*(\S+)`)
	brokenLineRe  = regexp.MustCompile(`(?i)<e\s`)
	headingLineRe = regexp.MustCompile(`(?m)^#[^\n]*\n*`)
)

// Migrate repairs artifacts written by older builds: decodes leftover
// inline tag markup in community-post bodies, drops malformed frontmatter
// lines produced by truncated titles, and backfills the word_count field.
func (s *Store) Migrate(contents []database.Content) MigrateResult {
	result := MigrateResult{Total: len(contents), Errors: []string{}}

	for _, c := range contents {
		path := s.resolve(c.FilePath)
		raw, err := os.ReadFile(path)
		if err != nil {
			result.Errors = append(result.Errors, "missing: "+c.FilePath)
			continue
		}

		text := string(raw)
		changed := false

		sourceType := c.SourceType
		if sourceType == "" {
			if m := sourceLineRe.FindStringSubmatch(text); m != nil {
				sourceType = m[1]
			}
		}

		parts := frontmatterRe.FindStringSubmatch(text)
		if parts == nil {
			result.Errors = append(result.Errors, "no frontmatter: "+c.FilePath)
			continue
		}
		frontmatter, body := parts[1], parts[2]

		if sourceType == database.SourceTypeZsxq {
			if strings.Contains(body, "<e ") {
				body = richtext.DecodeToMarkdown(body)
				changed = true
				result.Cleaned++
			}
			if brokenLineRe.MatchString(frontmatter) {
				frontmatter = pruneFrontmatter(frontmatter)
				changed = true
			}
		}

		if !strings.Contains(frontmatter, "word_count:") {
			frontmatter = insertWordCount(frontmatter, body)
			changed = true
			result.WordCountAdded++
		}

		if changed {
			if err := os.WriteFile(path, []byte(frontmatter+body), 0o644); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", c.FilePath, err))
			}
		}
	}

	return result
}

// pruneFrontmatter drops lines that are stray tag fragments rather than
// valid YAML entries; truncated titles used to spill markup across lines.
func pruneFrontmatter(frontmatter string) string {
	lines := strings.Split(frontmatter, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line == "---" || strings.TrimSpace(line) == "" || yamlKeyRe.MatchString(line) {
			kept = append(kept, line)
			continue
		}
		if brokenLineRe.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func insertWordCount(frontmatter, body string) string {
	// Only the first heading is the title line; part headings further
	// down belong to the body.
	contentBody := body
	if loc := headingLineRe.FindStringIndex(body); loc != nil {
		contentBody = body[:loc[0]] + body[loc[1]:]
	}
	contentBody = strings.TrimSpace(contentBody)
	line := fmt.Sprintf("word_count: %d", utf8.RuneCountInString(contentBody))

	if strings.Contains(frontmatter, "\ncollected_at:") {
		return strings.Replace(frontmatter, "\ncollected_at:", "\n"+line+"\ncollected_at:", 1)
	}
	return strings.TrimSuffix(frontmatter, "---\n") + line + "\n---\n"
}
