package collector

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const webTestPage = `<!DOCTYPE html>
<html>
<head><title>Fallback Title</title></head>
<body>
<article>
  <h1>A Long Form Article</h1>
  <p>This is the first paragraph of the article body. It needs to be long
  enough for the content extractor to treat it as the main content of the
  page rather than boilerplate navigation.</p>
  <p>This is the second paragraph with some more   spaced   text that
  should end up collapsed to single spaces in the stored content.</p>
</article>
</body>
</html>`

func TestWebCollectorSingleItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(webTestPage))
	}))
	defer srv.Close()

	pageURL := srv.URL + "/article"
	source := testSource(t, "web", map[string]any{"url": pageURL}, false)
	c := &webCollector{source: source, deps: testDeps(nil, nil), client: newClient(srv.Client(), "test-agent")}

	items, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected exactly one item, got %d", len(items))
	}

	item := items[0]
	digest := md5.Sum([]byte(pageURL))
	if item.ExternalID != hex.EncodeToString(digest[:]) {
		t.Errorf("Expected MD5 of the page url as external id, got %q", item.ExternalID)
	}
	if item.Title == "" {
		t.Error("Expected a non-empty title")
	}
	if !strings.Contains(item.Content, "first paragraph of the article body") {
		t.Errorf("Expected extracted article text, got %q", item.Content)
	}
	if strings.Contains(item.Content, "  ") {
		t.Error("Expected whitespace collapsed to single spaces")
	}
	if item.URL != pageURL {
		t.Errorf("Unexpected url %q", item.URL)
	}
}

func TestWebCollectorStableID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(webTestPage))
	}))
	defer srv.Close()

	source := testSource(t, "web", map[string]any{"url": srv.URL}, false)
	c := &webCollector{source: source, deps: testDeps(nil, nil), client: newClient(srv.Client(), "test-agent")}

	first, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if first[0].ExternalID != second[0].ExternalID {
		t.Errorf("Expected stable external id across runs, got %q and %q", first[0].ExternalID, second[0].ExternalID)
	}
}

func TestWebCollectorErrorOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	source := testSource(t, "web", map[string]any{"url": srv.URL}, false)
	c := &webCollector{source: source, deps: testDeps(nil, nil), client: newClient(srv.Client(), "test-agent")}

	if _, err := c.Fetch(context.Background()); err == nil {
		t.Error("Expected error for a 404 page")
	}
}
