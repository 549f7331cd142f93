// Package collect orchestrates collection runs: it walks the requested
// sources sequentially, drives each task through its lifecycle, hands
// fetched items to the de-dup gateway and regenerates the summary index.
package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ryanxin/collector/app/collector"
	"github.com/ryanxin/collector/app/database"
	"github.com/ryanxin/collector/app/filestore"
)

// ErrSourceNotFound is returned by CollectOne for an unknown source id.
var ErrSourceNotFound = errors.New("source not found")

// SourceResult is the outcome of one source's collection attempt.
type SourceResult struct {
	Source     string `json:"source"`
	ItemsFound int    `json:"items_found"`
	ItemsNew   int    `json:"items_new"`
	Error      string `json:"error,omitempty"`
}

// Result aggregates a whole run.
type Result struct {
	Found   int            `json:"found"`
	New     int            `json:"new"`
	Results []SourceResult `json:"results"`
}

// Service runs collections. Runs are strictly sequential; the service
// holds the process-wide WBI key cache so signed-request keys survive
// between runs.
type Service struct {
	db        *database.DB
	sources   database.SourceRepository
	contents  database.ContentRepository
	tasks     database.TaskRepository
	settings  database.SettingRepository
	userAgent string
	wbiKeys   *collector.WBIKeyCache
	httpC     *http.Client
	now       func() time.Time

	// newCollector is swapped out by tests to inject fake collectors.
	newCollector func(source *database.Source, deps collector.Deps) (collector.Collector, error)
}

func NewService(db *database.DB, userAgent string) *Service {
	return &Service{
		db:           db,
		sources:      database.NewSourceRepository(db),
		contents:     database.NewContentRepository(db),
		tasks:        database.NewTaskRepository(db),
		settings:     database.NewSettingRepository(db),
		userAgent:    userAgent,
		wbiKeys:      &collector.WBIKeyCache{},
		httpC:        &http.Client{},
		now:          time.Now,
		newCollector: collector.New,
	}
}

// CollectAll runs every active source in turn. A failing source records
// its error and the run moves on; the index is regenerated even when no
// source produced anything.
func (s *Service) CollectAll(ctx context.Context) (*Result, error) {
	sources, err := s.sources.ListSources(true)
	if err != nil {
		return nil, err
	}

	result := &Result{Results: []SourceResult{}}
	for i := range sources {
		sr := s.collectSource(ctx, &sources[i])
		result.Found += sr.ItemsFound
		result.New += sr.ItemsNew
		result.Results = append(result.Results, sr)
	}

	if err := s.regenerateIndex(); err != nil {
		slog.Error("Failed to regenerate index", "error", err)
	}

	return result, nil
}

// CollectOne runs a single source regardless of its active flag.
func (s *Service) CollectOne(ctx context.Context, sourceID int64) (*Result, error) {
	source, err := s.sources.GetSource(sourceID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, ErrSourceNotFound
	}

	sr := s.collectSource(ctx, source)
	result := &Result{Found: sr.ItemsFound, New: sr.ItemsNew, Results: []SourceResult{sr}}

	if err := s.regenerateIndex(); err != nil {
		slog.Error("Failed to regenerate index", "error", err)
	}

	return result, nil
}

// collectSource drives one task through pending -> running ->
// completed/failed. On failure the source keeps its last_collected_at so
// the next run retries from the same incremental frontier.
func (s *Service) collectSource(ctx context.Context, source *database.Source) SourceResult {
	result := SourceResult{Source: source.Name}

	task, err := s.tasks.CreateTask(source.ID)
	if err != nil {
		slog.Error("Failed to create task", "source", source.Name, "error", err)
		result.Error = err.Error()
		return result
	}

	running := database.TaskStatusRunning
	startedAt := s.now().UTC()
	if err := s.tasks.UpdateTask(task.ID, database.TaskUpdate{Status: &running, StartedAt: &startedAt}); err != nil {
		slog.Error("Failed to mark task running", "task", task.ID, "error", err)
	}

	found, fresh, err := s.runCollector(ctx, source)
	result.ItemsFound = found
	result.ItemsNew = fresh
	completedAt := s.now().UTC()

	if err != nil {
		slog.Warn("Collection failed", "source", source.Name, "error", err)
		failed := database.TaskStatusFailed
		msg := err.Error()
		if uerr := s.tasks.UpdateTask(task.ID, database.TaskUpdate{
			Status: &failed, Error: &msg,
			ItemsFound: &found, ItemsNew: &fresh,
			CompletedAt: &completedAt,
		}); uerr != nil {
			slog.Error("Failed to mark task failed", "task", task.ID, "error", uerr)
		}
		if serr := s.sources.SetLastError(source.ID, msg); serr != nil {
			slog.Error("Failed to record source error", "source", source.Name, "error", serr)
		}
		result.Error = msg
		return result
	}

	completed := database.TaskStatusCompleted
	if uerr := s.tasks.UpdateTask(task.ID, database.TaskUpdate{
		Status:     &completed,
		ItemsFound: &found, ItemsNew: &fresh,
		CompletedAt: &completedAt,
	}); uerr != nil {
		slog.Error("Failed to mark task completed", "task", task.ID, "error", uerr)
	}
	if merr := s.sources.MarkCollected(source.ID, completedAt); merr != nil {
		slog.Error("Failed to stamp source", "source", source.Name, "error", merr)
	}

	slog.Info("Collection finished", "source", source.Name, "found", found, "new", fresh)
	return result
}

func (s *Service) runCollector(ctx context.Context, source *database.Source) (int, int, error) {
	deps := collector.Deps{
		Exists: func(externalID string) (bool, error) {
			return s.contents.ContentExists(source.ID, externalID)
		},
		Credential: func(platform string) string {
			value, err := s.settings.GetSetting(platform + "_cookie")
			if err != nil {
				slog.Error("Failed to read credential", "platform", platform, "error", err)
				return ""
			}
			return value
		},
		HTTP:      s.httpC,
		UserAgent: s.userAgent,
		WBIKeys:   s.wbiKeys,
		Now:       s.now,
	}

	c, err := s.newCollector(source, deps)
	if err != nil {
		return 0, 0, err
	}

	items, err := c.Fetch(ctx)
	if err != nil {
		return 0, 0, err
	}

	fresh, err := s.ingest(source, items)
	return len(items), fresh, err
}

// ingest is the de-dup gateway: replaying the same fetch never creates
// duplicates. A single item's persistence failure is logged and skipped;
// the rest of the batch continues.
func (s *Service) ingest(source *database.Source, items []collector.Item) (int, error) {
	store := filestore.NewStore(s.db.DataDir())
	fresh := 0

	for _, item := range items {
		exists, err := s.contents.ContentExists(source.ID, item.ExternalID)
		if err != nil {
			return fresh, err
		}
		if exists {
			continue
		}

		relPath, err := store.WriteItem(item, source.Type)
		if err != nil {
			slog.Error("Failed to write artifact", "source", source.Name, "item", item.ExternalID, "error", err)
			continue
		}

		publishedAt := item.PublishedAt
		content := &database.Content{
			SourceID:    source.ID,
			ExternalID:  item.ExternalID,
			Title:       item.Title,
			Author:      item.Author,
			URL:         item.URL,
			Tags:        item.Tags,
			FilePath:    relPath,
			PublishedAt: &publishedAt,
		}
		if _, err := s.contents.InsertContent(content); err != nil {
			slog.Error("Failed to insert content", "source", source.Name, "item", item.ExternalID, "error", err)
			continue
		}
		fresh++
	}

	return fresh, nil
}

func (s *Service) regenerateIndex() error {
	contents, total, err := s.contents.ListContents(database.ContentFilters{})
	if err != nil {
		return fmt.Errorf("failed to list contents for index: %w", err)
	}
	return filestore.NewStore(s.db.DataDir()).WriteIndex(contents, total)
}

// MigrateStorage runs the artifact repair pass and regenerates the index.
func (s *Service) MigrateStorage() (*filestore.MigrateResult, error) {
	contents, _, err := s.contents.ListContents(database.ContentFilters{})
	if err != nil {
		return nil, err
	}

	store := filestore.NewStore(s.db.DataDir())
	result := store.Migrate(contents)

	if err := s.regenerateIndex(); err != nil {
		slog.Error("Failed to regenerate index", "error", err)
	}
	return &result, nil
}
