package collector

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/ryanxin/collector/app/database"
)

type rssCollector struct {
	source *database.Source
	deps   Deps
	client *client
}

var htmlStripper = bluemonday.StrictPolicy()

// stripHTML removes markup from feed content and unescapes the entities
// the sanitizer leaves behind.
func stripHTML(s string) string {
	return strings.TrimSpace(html.UnescapeString(htmlStripper.Sanitize(s)))
}

func (c *rssCollector) Fetch(ctx context.Context) ([]Item, error) {
	feedURL := c.source.ConfigString("feed_url")
	if feedURL == "" {
		return nil, fmt.Errorf("rss source %q has no feed_url configured", c.source.Name)
	}

	data, status, err := c.client.get(ctx, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	if status != 200 {
		return nil, fmt.Errorf("feed request returned HTTP %d", status)
	}

	feed, err := gofeed.NewParser().ParseString(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	maxTotal := maxItemsCap(c.source)
	var items []Item

	for _, entry := range feed.Items {
		if firstRun(c.source) && len(items) >= maxTotal {
			break
		}

		externalID := entry.GUID
		if externalID == "" {
			externalID = entry.Link
		}
		if externalID == "" {
			externalID = entry.Title
		}
		if externalID == "" {
			continue
		}

		exists, err := c.deps.Exists(externalID)
		if err != nil {
			return nil, err
		}
		if exists {
			break
		}

		raw := entry.Content
		if raw == "" {
			raw = entry.Description
		}

		author := c.source.Name
		if len(entry.Authors) > 0 && entry.Authors[0] != nil && entry.Authors[0].Name != "" {
			author = entry.Authors[0].Name
		}

		publishedAt := c.deps.Now().UTC()
		if entry.PublishedParsed != nil {
			publishedAt = entry.PublishedParsed.UTC()
		}

		tags := entry.Categories
		if len(tags) == 0 {
			tags = []string{"RSS"}
		}

		items = append(items, Item{
			ExternalID:  externalID,
			Title:       entry.Title,
			Author:      author,
			URL:         entry.Link,
			Content:     stripHTML(raw),
			Tags:        tags,
			PublishedAt: publishedAt,
		})
	}

	return items, nil
}
