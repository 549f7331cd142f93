package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ryanxin/collector/app/collect"
	"github.com/ryanxin/collector/app/database"
	"github.com/ryanxin/collector/app/filestore"
)

type stubService struct {
	result    *collect.Result
	lastRunID *int64
}

func (s *stubService) CollectAll(_ context.Context) (*collect.Result, error) {
	s.lastRunID = nil
	return s.result, nil
}

func (s *stubService) CollectOne(_ context.Context, sourceID int64) (*collect.Result, error) {
	if sourceID == 9999 {
		return nil, collect.ErrSourceNotFound
	}
	s.lastRunID = &sourceID
	return s.result, nil
}

func (s *stubService) MigrateStorage() (*filestore.MigrateResult, error) {
	return &filestore.MigrateResult{Total: 3, Cleaned: 1, WordCountAdded: 2, Errors: []string{}}, nil
}

type stubScheduler struct {
	schedule string
}

func (s *stubScheduler) Schedule() string { return s.schedule }

func (s *stubScheduler) Reschedule(schedule string) error {
	if strings.Count(schedule, " ") != 4 {
		return fmt.Errorf("invalid cron schedule %q", schedule)
	}
	s.schedule = schedule
	return nil
}

type testEnv struct {
	router  *gin.Engine
	db      *database.DB
	service *stubService
}

func newTestEnv(t *testing.T, apiAccessKey string) *testEnv {
	t.Helper()

	db, err := database.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	service := &stubService{result: &collect.Result{Found: 2, New: 1, Results: []collect.SourceResult{}}}
	handler := NewHandler(db, service, &stubScheduler{schedule: "0 8 * * *"}, "test")

	return &testEnv{
		router:  NewServer(handler, apiAccessKey),
		db:      db,
		service: service,
	}
}

func (e *testEnv) request(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestAuthMiddleware(t *testing.T) {
	e := newTestEnv(t, "secret-key")

	w := e.request(t, http.MethodGet, "/api/sources", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", w.Code)
	}

	w = e.request(t, http.MethodGet, "/api/sources", nil, map[string]string{"X-API-Key": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong key, got %d", w.Code)
	}

	w = e.request(t, http.MethodGet, "/api/sources", nil, map[string]string{"X-API-Key": "secret-key"})
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with key, got %d", w.Code)
	}

	w = e.request(t, http.MethodGet, "/api/sources", nil, map[string]string{"Authorization": "Bearer secret-key"})
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with bearer token, got %d", w.Code)
	}
}

func TestHealthIsPublic(t *testing.T) {
	e := newTestEnv(t, "secret-key")
	w := e.request(t, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestSourceCRUDOverHTTP(t *testing.T) {
	e := newTestEnv(t, "")

	w := e.request(t, http.MethodPost, "/api/sources", map[string]any{
		"name":   "tech-up",
		"type":   "bilibili",
		"config": map[string]any{"uid": "12345"},
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decodeJSON(t, w)
	id := int64(created["id"].(float64))
	if created["is_active"] != true {
		t.Error("Expected is_active to default to true")
	}

	w = e.request(t, http.MethodGet, fmt.Sprintf("/api/sources/%d", id), nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	w = e.request(t, http.MethodPut, fmt.Sprintf("/api/sources/%d", id), map[string]any{"is_active": false}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if decodeJSON(t, w)["is_active"] != false {
		t.Error("Expected is_active updated to false")
	}

	w = e.request(t, http.MethodDelete, fmt.Sprintf("/api/sources/%d", id), nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	w = e.request(t, http.MethodGet, fmt.Sprintf("/api/sources/%d", id), nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
}

func TestCreateSourceRejectsUnknownType(t *testing.T) {
	e := newTestEnv(t, "")
	w := e.request(t, http.MethodPost, "/api/sources", map[string]any{
		"name": "bad",
		"type": "telegram",
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown type, got %d", w.Code)
	}
}

func TestCollectEndpoint(t *testing.T) {
	e := newTestEnv(t, "")

	w := e.request(t, http.MethodPost, "/api/collect", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if e.service.lastRunID != nil {
		t.Error("Expected a full run without source_id")
	}
	body := decodeJSON(t, w)
	if body["found"] != float64(2) || body["new"] != float64(1) {
		t.Errorf("Unexpected result payload %v", body)
	}

	w = e.request(t, http.MethodPost, "/api/collect", map[string]any{"source_id": 7}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if e.service.lastRunID == nil || *e.service.lastRunID != 7 {
		t.Error("Expected the single-source run to target source 7")
	}

	w = e.request(t, http.MethodPost, "/api/collect", map[string]any{"source_id": 9999}, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown source, got %d", w.Code)
	}
}

func TestContentEndpoints(t *testing.T) {
	e := newTestEnv(t, "")

	sources := database.NewSourceRepository(e.db)
	contents := database.NewContentRepository(e.db)

	source, err := sources.CreateSource("blog", database.SourceTypeRSS, nil, true)
	if err != nil {
		t.Fatalf("Failed to create source: %v", err)
	}

	relPath := filepath.Join("rss", "post.md")
	if err := os.MkdirAll(filepath.Join(e.db.DataDir(), "rss"), 0o755); err != nil {
		t.Fatal(err)
	}
	artifact := "---\nsource: rss\ntitle: \"A Post\"\nword_count: 2\n---\n\n# A Post\n\nBody text.\n"
	if err := os.WriteFile(filepath.Join(e.db.DataDir(), relPath), []byte(artifact), 0o644); err != nil {
		t.Fatal(err)
	}

	published := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	id, err := contents.InsertContent(&database.Content{
		SourceID:    source.ID,
		ExternalID:  "post-1",
		Title:       "A Post",
		Author:      "blogger",
		URL:         "https://example.com/post-1",
		Tags:        []string{"RSS"},
		FilePath:    relPath,
		PublishedAt: &published,
	})
	if err != nil {
		t.Fatalf("Failed to insert content: %v", err)
	}

	w := e.request(t, http.MethodGet, "/api/contents", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if decodeJSON(t, w)["total"] != float64(1) {
		t.Errorf("Expected total=1, got %s", w.Body.String())
	}

	w = e.request(t, http.MethodGet, fmt.Sprintf("/api/contents/%d", id), nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	detail := decodeJSON(t, w)
	if !strings.Contains(detail["body"].(string), "Body text.") {
		t.Errorf("Expected artifact body in response, got %v", detail["body"])
	}

	w = e.request(t, http.MethodDelete, fmt.Sprintf("/api/contents/%d", id), nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if _, err := os.Stat(filepath.Join(e.db.DataDir(), relPath)); !os.IsNotExist(err) {
		t.Error("Expected artifact file removed")
	}

	w = e.request(t, http.MethodGet, fmt.Sprintf("/api/contents/%d", id), nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
}

func TestSettingsMaskCookies(t *testing.T) {
	e := newTestEnv(t, "")

	w := e.request(t, http.MethodPut, "/api/settings", map[string]string{
		"bilibili_cookie": "SESSDATA=secret",
		"cron_schedule":   "30 6 * * *",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = e.request(t, http.MethodGet, "/api/settings", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	settings := decodeJSON(t, w)["settings"].(map[string]any)
	if settings["bilibili_cookie"] != maskedValue {
		t.Errorf("Expected cookie masked, got %v", settings["bilibili_cookie"])
	}
	if settings["cron_schedule"] != "30 6 * * *" {
		t.Errorf("Expected rescheduled cron, got %v", settings["cron_schedule"])
	}

	// Echoing a masked value back must not clobber the stored secret.
	w = e.request(t, http.MethodPut, "/api/settings", map[string]string{
		"bilibili_cookie": maskedValue,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	stored, err := database.NewSettingRepository(e.db).GetSetting("bilibili_cookie")
	if err != nil {
		t.Fatalf("Failed to read setting: %v", err)
	}
	if stored != "SESSDATA=secret" {
		t.Errorf("Expected stored cookie preserved, got %q", stored)
	}
}

func TestSettingsRejectInvalidSchedule(t *testing.T) {
	e := newTestEnv(t, "")
	w := e.request(t, http.MethodPut, "/api/settings", map[string]string{"cron_schedule": "nope"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid schedule, got %d", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	e := newTestEnv(t, "")
	w := e.request(t, http.MethodGet, "/api/stats", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	stats := decodeJSON(t, w)
	if stats["total"] != float64(0) {
		t.Errorf("Expected empty totals, got %v", stats)
	}
	if _, ok := stats["by_platform"]; !ok {
		t.Error("Expected by_platform in stats")
	}
}

func TestMigrateEndpoint(t *testing.T) {
	e := newTestEnv(t, "")
	w := e.request(t, http.MethodPost, "/api/migrate", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	result := decodeJSON(t, w)
	if result["cleaned"] != float64(1) || result["word_count_added"] != float64(2) {
		t.Errorf("Unexpected migrate payload %v", result)
	}
}
