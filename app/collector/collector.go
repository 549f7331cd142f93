// Package collector implements the per-platform fetch strategies. Each
// collector turns one configured source into a list of normalized items,
// applying the shared incremental policy: first runs are bounded by the
// source's max_items cap, steady-state runs are unbounded but stop at the
// first item already present in storage. The stop rule assumes upstream
// listings are newest-first and never backfill older items between runs.
package collector

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ryanxin/collector/app/database"
)

// Subtitle provenance for video items.
const (
	SubtitleZhCN        = "zh-CN"
	SubtitleAIZh        = "ai-zh"
	SubtitleEn          = "en"
	SubtitleAIEn        = "ai-en"
	SubtitleDescription = "description"
	SubtitleNone        = "none"
)

// Item is the normalized output of a collector before persistence.
type Item struct {
	ExternalID   string
	Title        string
	Author       string
	URL          string
	Content      string
	Tags         []string
	PublishedAt  time.Time
	Duration     string
	SubtitleType string
	Parts        int
}

// Collector fetches new items for one source. Fetch returns an error only
// when the whole source fetch is meaningless (auth failure, exhausted
// retries on the listing call); per-item failures degrade to fallbacks.
type Collector interface {
	Fetch(ctx context.Context) ([]Item, error)
}

// Deps are the capabilities a collector borrows from its host service.
// Exists checks (source, external id) presence in storage; Credential
// returns the stored cookie string for a platform, "" when not logged in.
type Deps struct {
	Exists     func(externalID string) (bool, error)
	Credential func(platform string) string
	HTTP       *http.Client
	UserAgent  string
	WBIKeys    *WBIKeyCache
	Now        func() time.Time
}

// CredentialError marks failures that a retry cannot fix: the user has to
// log in to the platform again.
type CredentialError struct {
	Platform string
	Message  string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("%s credential error: %s", e.Platform, e.Message)
}

// New returns the collector matching the source's platform type.
func New(source *database.Source, deps Deps) (Collector, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.HTTP == nil {
		deps.HTTP = &http.Client{}
	}
	if deps.WBIKeys == nil {
		deps.WBIKeys = &WBIKeyCache{}
	}

	client := newClient(deps.HTTP, deps.UserAgent)

	switch source.Type {
	case database.SourceTypeBilibili:
		return &bilibiliCollector{source: source, deps: deps, client: client, apiBase: bilibiliAPIBase}, nil
	case database.SourceTypeYouTube:
		return &youtubeCollector{source: source, deps: deps, client: client, apiBase: youtubeOrigin}, nil
	case database.SourceTypeZsxq:
		return &zsxqCollector{source: source, deps: deps, client: client, apiBase: zsxqAPIBase}, nil
	case database.SourceTypeRSS:
		return &rssCollector{source: source, deps: deps, client: client}, nil
	case database.SourceTypeWeb:
		return &webCollector{source: source, deps: deps, client: client}, nil
	}
	return nil, fmt.Errorf("unknown source type: %s", source.Type)
}

func firstRun(source *database.Source) bool {
	return source.LastCollectedAt == nil
}

func maxItemsCap(source *database.Source) int {
	return source.ConfigInt("max_items", 50)
}
