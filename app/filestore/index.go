package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ryanxin/collector/app/database"
)

// WriteIndex regenerates _index.md: a per-platform table of item counts
// and the authors seen on each platform, newest totals first.
func (s *Store) WriteIndex(contents []database.Content, total int) error {
	byType := make(map[string]int)
	authors := make(map[string]map[string]bool)

	for _, c := range contents {
		sourceType := c.SourceType
		if sourceType == "" {
			sourceType = typeFromPath(c.FilePath)
		}
		byType[sourceType]++
		if c.Author != "" {
			if authors[sourceType] == nil {
				authors[sourceType] = make(map[string]bool)
			}
			authors[sourceType][c.Author] = true
		}
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if byType[types[i]] != byType[types[j]] {
			return byType[types[i]] > byType[types[j]]
		}
		return types[i] < types[j]
	})

	var b strings.Builder
	b.WriteString("# 数据索引\n\n")
	fmt.Fprintf(&b, "更新: %s | 总计: %d 条\n\n", s.now().UTC().Format("2006-01-02 15:04"), total)
	b.WriteString("## 平台统计\n\n")
	b.WriteString("| 平台 | 数量 | 作者 |\n|------|------|------|\n")

	for _, t := range types {
		names := "-"
		if len(authors[t]) > 0 {
			sorted := make([]string, 0, len(authors[t]))
			for name := range authors[t] {
				sorted = append(sorted, name)
			}
			sort.Strings(sorted)
			names = strings.Join(sorted, ", ")
		}
		fmt.Fprintf(&b, "| %s | %d | %s |\n", t, byType[t], names)
	}

	if err := os.WriteFile(filepath.Join(s.dataDir, "_index.md"), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

// typeFromPath falls back to the platform directory name for rows that
// predate the joined source_type column.
func typeFromPath(p string) string {
	dir := filepath.Base(filepath.Dir(p))
	if dir == "." || dir == "/" {
		return "unknown"
	}
	return dir
}
