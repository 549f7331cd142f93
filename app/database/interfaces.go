package database

import "time"

// SourceUpdate is a partial update applied by user edits. Nil fields are
// left untouched.
type SourceUpdate struct {
	Name     *string
	Type     *string
	Config   map[string]any
	IsActive *bool
}

// TaskUpdate is a partial update applied as a task moves through its
// lifecycle. Nil fields are left untouched.
type TaskUpdate struct {
	Status      *string
	ItemsFound  *int
	ItemsNew    *int
	Error       *string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// ContentFilters narrows content listings.
type ContentFilters struct {
	SourceID   *int64
	SourceType string
	Author     string
	Search     string
	FromDate   string
	ToDate     string
	SortBy     string // "published_at" or "collected_at" (default)
	Limit      int
	Offset     int
}

type SourceRepository interface {
	GetSource(id int64) (*Source, error)
	ListSources(activeOnly bool) ([]Source, error)
	CreateSource(name, sourceType string, config map[string]any, isActive bool) (*Source, error)
	UpdateSource(id int64, update SourceUpdate) (*Source, error)
	DeleteSource(id int64) (bool, error)

	// MarkCollected stamps a successful collection: sets last_collected_at
	// and clears last_error.
	MarkCollected(id int64, at time.Time) error
	// SetLastError records a failed collection without advancing the
	// incremental frontier (last_collected_at is untouched).
	SetLastError(id int64, msg string) error
}

type ContentRepository interface {
	ContentExists(sourceID int64, externalID string) (bool, error)
	InsertContent(c *Content) (int64, error)
	GetContentByID(id int64) (*Content, error)
	DeleteContent(id int64) (bool, error)
	ListContents(filters ContentFilters) ([]Content, int, error)
	ListAuthors(sourceType string) ([]string, error)
	UpdateContentTitle(id int64, title string) error
	CountContents() (int, error)
	CountContentsSince(t time.Time) (int, error)
	CountByPlatform() (map[string]int, error)
}

type TaskRepository interface {
	CreateTask(sourceID int64) (*Task, error)
	GetTask(id int64) (*Task, error)
	UpdateTask(id int64, update TaskUpdate) error
	ListTasks(sourceID *int64) ([]Task, error)
}

type SettingRepository interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
	AllSettings() (map[string]string, error)
}
