package database

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ryanxin/collector/app/richtext"
)

// Fix-ups are one-shot data repairs for records written by older builds.
// Each one is guarded by a settings key so it runs at most once per
// database; RunFixups is called on every Open and Reopen.
const (
	fixupZsxqTitles    = "zsxq_titles_v4"
	fixupRelativePaths = "file_paths_relative_v1"
)

func RunFixups(db *DB) error {
	settings := NewSettingRepository(db)

	if err := fixZsxqTitles(db, settings); err != nil {
		return fmt.Errorf("failed to fix zsxq titles: %w", err)
	}
	if err := fixRelativePaths(db, settings); err != nil {
		return fmt.Errorf("failed to fix file paths: %w", err)
	}
	return nil
}

// fixZsxqTitles re-derives titles for zsxq posts whose stored title still
// contains raw <e> tag markup. The clean title comes from decoding the
// saved markdown body, and both the database row and the file's
// frontmatter are rewritten to match.
func fixZsxqTitles(db *DB, settings SettingRepository) error {
	done, err := settings.GetSetting(fixupZsxqTitles)
	if err != nil {
		return err
	}
	if done == "true" {
		return nil
	}

	rows, err := db.conn().Query(`
		SELECT c.id, c.title, c.file_path FROM contents c
		JOIN sources s ON c.source_id = s.id
		WHERE s.type = 'zsxq'
	`)
	if err != nil {
		return err
	}

	type row struct {
		id       int64
		title    string
		filePath string
	}
	var posts []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.title, &r.filePath); err != nil {
			rows.Close()
			return err
		}
		posts = append(posts, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	fixed := 0
	for _, post := range posts {
		path := post.filePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(db.DataDir(), path)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("Skipping unreadable content file", "path", post.filePath, "error", err)
			continue
		}

		body := stripFrontmatterAndHeading(string(data))
		title := richtext.ExtractTitle(richtext.DecodeToText(body))
		if title == "" || title == post.title {
			continue
		}

		contents := NewContentRepository(db)
		if err := contents.UpdateContentTitle(post.id, title); err != nil {
			return err
		}
		if err := rewriteFileTitle(path, title); err != nil {
			slog.Warn("Failed to rewrite title in content file", "path", post.filePath, "error", err)
		}
		fixed++
	}

	if fixed > 0 {
		slog.Info("Repaired zsxq post titles", "count", fixed)
	}
	return settings.SetSetting(fixupZsxqTitles, "true")
}

// stripFrontmatterAndHeading returns the markdown body without the leading
// YAML frontmatter block and without the first "# " heading line.
func stripFrontmatterAndHeading(text string) string {
	lines := strings.Split(text, "\n")
	i := 0

	if len(lines) > 0 && strings.TrimSpace(lines[0]) == "---" {
		for i = 1; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == "---" {
				i++
				break
			}
		}
	}

	headingDropped := false
	var out []string
	for ; i < len(lines); i++ {
		if !headingDropped && strings.HasPrefix(lines[i], "# ") {
			headingDropped = true
			continue
		}
		out = append(out, lines[i])
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// rewriteFileTitle replaces the frontmatter title and the first markdown
// heading in the file at path with the given title.
func rewriteFileTitle(path, title string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	quoted := "\"" + strings.ReplaceAll(title, "\"", "\\\"") + "\""
	lines := strings.Split(string(data), "\n")
	titleSet := false
	headingSet := false
	for i, line := range lines {
		if !titleSet && strings.HasPrefix(line, "title:") {
			lines[i] = "title: " + quoted
			titleSet = true
			continue
		}
		if !headingSet && strings.HasPrefix(line, "# ") {
			lines[i] = "# " + title
			headingSet = true
		}
		if titleSet && headingSet {
			break
		}
	}

	return os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644)
}

// fixRelativePaths converts absolute file_path values into paths relative
// to the data root, so the data directory can be moved or remounted.
func fixRelativePaths(db *DB, settings SettingRepository) error {
	done, err := settings.GetSetting(fixupRelativePaths)
	if err != nil {
		return err
	}
	if done == "true" {
		return nil
	}

	rows, err := db.conn().Query("SELECT id, file_path FROM contents")
	if err != nil {
		return err
	}

	type row struct {
		id       int64
		filePath string
	}
	var absolute []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.filePath); err != nil {
			rows.Close()
			return err
		}
		if filepath.IsAbs(r.filePath) {
			absolute = append(absolute, r)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	dataDir := db.DataDir()
	fixed := 0
	for _, r := range absolute {
		rel, err := filepath.Rel(dataDir, r.filePath)
		if err != nil || strings.HasPrefix(rel, "..") {
			slog.Warn("Content file lives outside the data root", "path", r.filePath)
			continue
		}
		if _, err := db.conn().Exec("UPDATE contents SET file_path = ? WHERE id = ?", rel, r.id); err != nil {
			return err
		}
		fixed++
	}

	if fixed > 0 {
		slog.Info("Converted absolute file paths to relative", "count", fixed)
	}
	return settings.SetSetting(fixupRelativePaths, "true")
}
