package collector

import (
	"net/http"
	"testing"
	"time"

	"github.com/ryanxin/collector/app/database"
)

func testSource(t *testing.T, sourceType string, config map[string]any, collected bool) *database.Source {
	t.Helper()
	source := &database.Source{
		ID:     1,
		Name:   "Test Source",
		Type:   sourceType,
		Config: config,
	}
	if collected {
		at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		source.LastCollectedAt = &at
	}
	return source
}

// testDeps builds Deps backed by an in-memory existence set and a fixed
// clock. Credentials default to empty strings.
func testDeps(existing map[string]bool, credentials map[string]string) Deps {
	return Deps{
		Exists: func(externalID string) (bool, error) {
			return existing[externalID], nil
		},
		Credential: func(platform string) string {
			return credentials[platform]
		},
		HTTP:      &http.Client{},
		UserAgent: "test-agent",
		WBIKeys:   &WBIKeyCache{},
		Now:       func() time.Time { return time.Unix(1700000000, 0) },
	}
}

func TestNewUnknownSourceType(t *testing.T) {
	source := testSource(t, "gopher", nil, false)
	if _, err := New(source, testDeps(nil, nil)); err == nil {
		t.Error("Expected error for unknown source type")
	}
}

func TestNewKnownSourceTypes(t *testing.T) {
	for _, sourceType := range []string{"bilibili", "youtube", "zsxq", "rss", "web"} {
		source := testSource(t, sourceType, nil, false)
		c, err := New(source, testDeps(nil, nil))
		if err != nil {
			t.Errorf("Unexpected error for %s: %v", sourceType, err)
		}
		if c == nil {
			t.Errorf("Expected collector for %s", sourceType)
		}
	}
}
