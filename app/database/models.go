package database

import (
	"strconv"
	"time"
)

// Source types form a closed enum; the collector factory switches over it.
const (
	SourceTypeBilibili = "bilibili"
	SourceTypeYouTube  = "youtube"
	SourceTypeZsxq     = "zsxq"
	SourceTypeRSS      = "rss"
	SourceTypeWeb      = "web"
)

func ValidSourceType(t string) bool {
	switch t {
	case SourceTypeBilibili, SourceTypeYouTube, SourceTypeZsxq, SourceTypeRSS, SourceTypeWeb:
		return true
	}
	return false
}

// Task statuses. Tasks are never reopened; a new attempt creates a new task.
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

// Source is a configured origin to poll. LastCollectedAt nil means "never
// collected", which is the sentinel for first-run behavior.
type Source struct {
	ID              int64
	Name            string
	Type            string
	Config          map[string]any
	IsActive        bool
	LastCollectedAt *time.Time
	LastError       string
	CreatedAt       time.Time
}

// ConfigString reads a platform-specific config value as a string.
func (s *Source) ConfigString(key string) string {
	v, ok := s.Config[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	}
	return ""
}

// ConfigInt reads a platform-specific config value as an int, falling back
// to def when absent or unparseable.
func (s *Source) ConfigInt(key string, def int) int {
	v, ok := s.Config[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n
		}
	}
	return def
}

// Content is a persisted item. (SourceID, ExternalID) is the sole
// de-duplication boundary; FilePath is relative to the data root.
type Content struct {
	ID          int64
	SourceID    int64
	ExternalID  string
	Title       string
	Author      string
	URL         string
	Tags        []string
	FilePath    string
	PublishedAt *time.Time
	CollectedAt time.Time

	// Populated by joined queries only.
	SourceType string
	SourceName string
}

// Task records one collection attempt for one source.
type Task struct {
	ID          int64
	SourceID    int64
	Status      string
	ItemsFound  int
	ItemsNew    int
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}
