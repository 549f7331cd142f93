package collect

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ryanxin/collector/app/collector"
	"github.com/ryanxin/collector/app/database"
)

type fakeCollector struct {
	items []collector.Item
	err   error
}

func (f *fakeCollector) Fetch(_ context.Context) ([]collector.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func newTestService(t *testing.T) (*Service, *database.DB) {
	t.Helper()
	db, err := database.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := NewService(db, "test-agent/1.0")
	s.now = func() time.Time {
		return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	}
	return s, db
}

func createSource(t *testing.T, s *Service, name string, active bool) *database.Source {
	t.Helper()
	source, err := s.sources.CreateSource(name, database.SourceTypeRSS, map[string]any{"url": "https://example.com/feed"}, active)
	if err != nil {
		t.Fatalf("Failed to create source: %v", err)
	}
	return source
}

func testItems(n int) []collector.Item {
	items := make([]collector.Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, collector.Item{
			ExternalID:  "item-" + string(rune('a'+i)),
			Title:       "Post " + string(rune('A'+i)),
			Author:      "author",
			URL:         "https://example.com/post",
			Content:     "body text",
			Tags:        []string{"RSS"},
			PublishedAt: time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC),
		})
	}
	return items
}

func TestCollectAllIsIdempotent(t *testing.T) {
	s, _ := newTestService(t)
	createSource(t, s, "blog", true)

	s.newCollector = func(_ *database.Source, _ collector.Deps) (collector.Collector, error) {
		return &fakeCollector{items: testItems(2)}, nil
	}

	first, err := s.CollectAll(context.Background())
	if err != nil {
		t.Fatalf("Failed first run: %v", err)
	}
	if first.Found != 2 || first.New != 2 {
		t.Errorf("Expected found=2 new=2, got found=%d new=%d", first.Found, first.New)
	}

	second, err := s.CollectAll(context.Background())
	if err != nil {
		t.Fatalf("Failed second run: %v", err)
	}
	if second.Found != 2 || second.New != 0 {
		t.Errorf("Expected found=2 new=0 on replay, got found=%d new=%d", second.Found, second.New)
	}
}

func TestCollectAllSkipsInactiveSources(t *testing.T) {
	s, _ := newTestService(t)
	createSource(t, s, "active", true)
	createSource(t, s, "paused", false)

	var collected []string
	s.newCollector = func(source *database.Source, _ collector.Deps) (collector.Collector, error) {
		collected = append(collected, source.Name)
		return &fakeCollector{}, nil
	}

	if _, err := s.CollectAll(context.Background()); err != nil {
		t.Fatalf("Failed to collect: %v", err)
	}
	if len(collected) != 1 || collected[0] != "active" {
		t.Errorf("Expected only the active source, got %v", collected)
	}
}

func TestCollectSuccessStampsSource(t *testing.T) {
	s, _ := newTestService(t)
	source := createSource(t, s, "blog", true)

	s.newCollector = func(_ *database.Source, _ collector.Deps) (collector.Collector, error) {
		return &fakeCollector{items: testItems(1)}, nil
	}

	if _, err := s.CollectOne(context.Background(), source.ID); err != nil {
		t.Fatalf("Failed to collect: %v", err)
	}

	updated, err := s.sources.GetSource(source.ID)
	if err != nil {
		t.Fatalf("Failed to reload source: %v", err)
	}
	if updated.LastCollectedAt == nil {
		t.Fatal("Expected last_collected_at to be set")
	}
	if !updated.LastCollectedAt.Equal(s.now()) {
		t.Errorf("Expected stamp %v, got %v", s.now(), updated.LastCollectedAt)
	}
	if updated.LastError != "" {
		t.Errorf("Expected last_error cleared, got %q", updated.LastError)
	}

	tasks, err := s.tasks.ListTasks(&source.ID)
	if err != nil {
		t.Fatalf("Failed to list tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("Expected 1 task, got %d", len(tasks))
	}
	task := tasks[0]
	if task.Status != database.TaskStatusCompleted {
		t.Errorf("Expected completed task, got %q", task.Status)
	}
	if task.ItemsFound != 1 || task.ItemsNew != 1 {
		t.Errorf("Expected counts 1/1, got %d/%d", task.ItemsFound, task.ItemsNew)
	}
	if task.StartedAt == nil || task.CompletedAt == nil {
		t.Error("Expected started_at and completed_at set")
	}
}

func TestCollectFailureKeepsIncrementalFrontier(t *testing.T) {
	s, _ := newTestService(t)
	source := createSource(t, s, "member-feed", true)

	s.newCollector = func(_ *database.Source, _ collector.Deps) (collector.Collector, error) {
		return &fakeCollector{err: &collector.CredentialError{Platform: "zsxq", Message: "cookie expired"}}, nil
	}

	result, err := s.CollectOne(context.Background(), source.ID)
	if err != nil {
		t.Fatalf("Expected per-source error capture, got run error: %v", err)
	}
	if result.Results[0].Error == "" {
		t.Error("Expected source result to carry the error")
	}

	updated, err := s.sources.GetSource(source.ID)
	if err != nil {
		t.Fatalf("Failed to reload source: %v", err)
	}
	if updated.LastCollectedAt != nil {
		t.Errorf("Expected last_collected_at untouched on failure, got %v", updated.LastCollectedAt)
	}
	if updated.LastError == "" {
		t.Error("Expected last_error recorded")
	}

	tasks, err := s.tasks.ListTasks(&source.ID)
	if err != nil {
		t.Fatalf("Failed to list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Status != database.TaskStatusFailed {
		t.Fatalf("Expected a failed task, got %+v", tasks)
	}
	if tasks[0].Error == "" {
		t.Error("Expected task error message")
	}
}

func TestFailingSourceDoesNotBlockOthers(t *testing.T) {
	s, _ := newTestService(t)
	createSource(t, s, "broken", true)
	createSource(t, s, "healthy", true)

	s.newCollector = func(source *database.Source, _ collector.Deps) (collector.Collector, error) {
		if source.Name == "broken" {
			return &fakeCollector{err: errors.New("upstream down")}, nil
		}
		return &fakeCollector{items: testItems(1)}, nil
	}

	result, err := s.CollectAll(context.Background())
	if err != nil {
		t.Fatalf("Failed to collect: %v", err)
	}
	if result.New != 1 {
		t.Errorf("Expected the healthy source to contribute 1 item, got %d", result.New)
	}
	if len(result.Results) != 2 {
		t.Fatalf("Expected 2 source results, got %d", len(result.Results))
	}
	byName := make(map[string]SourceResult, len(result.Results))
	for _, sr := range result.Results {
		byName[sr.Source] = sr
	}
	if byName["broken"].Error == "" {
		t.Errorf("Expected the broken source to carry an error, got %+v", byName["broken"])
	}
	if byName["healthy"].Error != "" || byName["healthy"].ItemsNew != 1 {
		t.Errorf("Expected the healthy source clean with 1 item, got %+v", byName["healthy"])
	}
}

func TestCollectOneUnknownSource(t *testing.T) {
	s, _ := newTestService(t)
	if _, err := s.CollectOne(context.Background(), 9999); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("Expected ErrSourceNotFound, got %v", err)
	}
}

func TestCollectOneIgnoresActiveFlag(t *testing.T) {
	s, _ := newTestService(t)
	source := createSource(t, s, "paused", false)

	s.newCollector = func(_ *database.Source, _ collector.Deps) (collector.Collector, error) {
		return &fakeCollector{items: testItems(1)}, nil
	}

	result, err := s.CollectOne(context.Background(), source.ID)
	if err != nil {
		t.Fatalf("Failed to collect: %v", err)
	}
	if result.New != 1 {
		t.Errorf("Expected manual collection of a paused source, got new=%d", result.New)
	}
}

func TestCollectWritesIndex(t *testing.T) {
	s, db := newTestService(t)
	createSource(t, s, "blog", true)

	s.newCollector = func(_ *database.Source, _ collector.Deps) (collector.Collector, error) {
		return &fakeCollector{items: testItems(1)}, nil
	}

	if _, err := s.CollectAll(context.Background()); err != nil {
		t.Fatalf("Failed to collect: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(db.DataDir(), "_index.md"))
	if err != nil {
		t.Fatalf("Failed to read index: %v", err)
	}
	if !strings.Contains(string(data), "总计: 1 条") {
		t.Errorf("Expected regenerated index with totals, got:\n%s", data)
	}
}
