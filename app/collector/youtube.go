package collector

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/ryanxin/collector/app/database"
)

const (
	innertubeClientName = "WEB"
	innertubeClientVer  = "2.20250312.04.00"

	// Selects the Videos tab sorted by newest on the browse endpoint.
	innertubeVideosParam = "EgZ2aWRlb3PyBgQKAjoA"
)

var errFeedNotFound = errors.New("feed not found (HTTP 404)")

type youtubeCollector struct {
	source  *database.Source
	deps    Deps
	client  *client
	apiBase string
}

type youtubeEntry struct {
	VideoID     string
	Title       string
	Published   time.Time
	AuthorName  string
	Description string
}

func (c *youtubeCollector) Fetch(ctx context.Context) ([]Item, error) {
	channelID := c.source.ConfigString("channel_id")
	playlistID := c.source.ConfigString("playlist_id")
	if channelID == "" && playlistID == "" {
		return nil, fmt.Errorf("youtube source %q needs channel_id or playlist_id", c.source.Name)
	}

	var entries []youtubeEntry
	var err error
	if playlistID != "" {
		// Playlists only exist as syndication feeds; no fallback.
		entries, err = c.fetchFeed(ctx, c.apiBase+"/feeds/videos.xml?playlist_id="+playlistID)
		if err != nil {
			return nil, fmt.Errorf("playlist feed %s: %w", playlistID, err)
		}
	} else {
		entries, err = c.fetchFeed(ctx, c.apiBase+"/feeds/videos.xml?channel_id="+channelID)
		if errors.Is(err, errFeedNotFound) {
			// Some channels have syndication disabled; the browse API is
			// the only remaining listing path. Transient feed failures
			// propagate instead so the run retries the feed next time.
			slog.Debug("Feed not found, falling back to browse API", "channel", channelID)
			entries, err = c.fetchViaBrowse(ctx, channelID)
			if err != nil {
				return nil, err
			}
			if len(entries) == 0 {
				return nil, fmt.Errorf("channel %s has no feed and the browse API returned nothing", channelID)
			}
		} else if err != nil {
			return nil, err
		}
	}

	maxTotal := maxItemsCap(c.source)
	var items []Item

	for _, entry := range entries {
		exists, err := c.deps.Exists(entry.VideoID)
		if err != nil {
			return nil, err
		}
		if exists {
			break
		}
		if firstRun(c.source) && len(items) >= maxTotal {
			break
		}

		content := entry.Description
		subtitleType := SubtitleDescription
		if content == "" {
			subtitleType = SubtitleNone
		}

		if sub, err := c.fetchCaptions(ctx, entry.VideoID); err != nil {
			slog.Debug("Caption fetch failed, using description", "video", entry.VideoID, "error", err)
		} else if sub != nil {
			content = sub.text
			subtitleType = sub.subtitleType
		}

		title := entry.Title
		if title == "" {
			title = "YouTube 视频 " + entry.VideoID
		}
		author := entry.AuthorName
		if author == "" {
			author = c.source.Name
		}
		publishedAt := entry.Published
		if publishedAt.IsZero() {
			publishedAt = c.deps.Now().UTC()
		}

		items = append(items, Item{
			ExternalID:   entry.VideoID,
			Title:        title,
			Author:       author,
			URL:          youtubeOrigin + "/watch?v=" + entry.VideoID,
			Content:      content,
			Tags:         []string{"youtube"},
			PublishedAt:  publishedAt,
			SubtitleType: subtitleType,
		})
	}

	return items, nil
}

func (c *youtubeCollector) fetchFeed(ctx context.Context, url string) ([]youtubeEntry, error) {
	data, status, err := c.client.get(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, errFeedNotFound
	}
	if status != 200 {
		return nil, fmt.Errorf("feed request returned HTTP %d", status)
	}

	feed, err := gofeed.NewParser().ParseString(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	var entries []youtubeEntry
	for _, item := range feed.Items {
		entry := youtubeEntry{
			VideoID:     extensionValue(item, "yt", "videoId"),
			Title:       item.Title,
			Description: mediaDescription(item),
		}
		if entry.VideoID == "" {
			continue
		}
		if item.PublishedParsed != nil {
			entry.Published = item.PublishedParsed.UTC()
		}
		if len(item.Authors) > 0 && item.Authors[0] != nil {
			entry.AuthorName = item.Authors[0].Name
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func extensionValue(item *gofeed.Item, ns, name string) string {
	if exts, ok := item.Extensions[ns]; ok {
		if vals, ok := exts[name]; ok && len(vals) > 0 {
			return strings.TrimSpace(vals[0].Value)
		}
	}
	return ""
}

// mediaDescription digs media:group > media:description out of the feed
// entry's extension tree.
func mediaDescription(item *gofeed.Item) string {
	groups, ok := item.Extensions["media"]["group"]
	if !ok || len(groups) == 0 {
		return ""
	}
	descs, ok := groups[0].Children["description"]
	if !ok || len(descs) == 0 {
		return ""
	}
	return strings.TrimSpace(descs[0].Value)
}

func (c *youtubeCollector) fetchViaBrowse(ctx context.Context, channelID string) ([]youtubeEntry, error) {
	payload := map[string]any{
		"context": map[string]any{
			"client": map[string]any{
				"clientName":    innertubeClientName,
				"clientVersion": innertubeClientVer,
				"hl":            "zh-CN",
			},
		},
		"browseId": channelID,
		"params":   innertubeVideosParam,
	}

	data, status, err := c.client.postJSON(ctx, c.apiBase+"/youtubei/v1/browse", nil, payload)
	if err != nil {
		return nil, fmt.Errorf("browse request failed: %w", err)
	}
	if status != 200 {
		return nil, fmt.Errorf("browse request returned HTTP %d", status)
	}

	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to decode browse response: %w", err)
	}

	var entries []youtubeEntry
	walkJSON(tree, func(node map[string]any) {
		renderer, ok := node["videoRenderer"].(map[string]any)
		if !ok {
			return
		}
		entry := youtubeEntry{
			VideoID:     jsonString(renderer, "videoId"),
			Title:       runsText(renderer["title"]),
			AuthorName:  runsText(renderer["ownerText"]),
			Description: runsText(renderer["descriptionSnippet"]),
		}
		if entry.VideoID != "" {
			entries = append(entries, entry)
		}
	})

	return entries, nil
}

// walkJSON visits every object node of a decoded JSON tree, depth-first.
func walkJSON(node any, visit func(map[string]any)) {
	switch v := node.(type) {
	case map[string]any:
		visit(v)
		for _, child := range v {
			walkJSON(child, visit)
		}
	case []any:
		for _, child := range v {
			walkJSON(child, visit)
		}
	}
}

func jsonString(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

// runsText flattens the {runs: [{text}...]} / {simpleText} shapes the
// browse API uses for display strings.
func runsText(node any) string {
	obj, ok := node.(map[string]any)
	if !ok {
		return ""
	}
	if s, ok := obj["simpleText"].(string); ok && s != "" {
		return s
	}
	runs, ok := obj["runs"].([]any)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, r := range runs {
		if run, ok := r.(map[string]any); ok {
			if s, ok := run["text"].(string); ok {
				b.WriteString(s)
			}
		}
	}
	return b.String()
}

func (c *youtubeCollector) authHeaders() map[string]string {
	headers := map[string]string{"Content-Type": "application/json"}
	cookie := strings.TrimSpace(c.deps.Credential("youtube"))
	if cookie == "" {
		return headers
	}
	headers["Cookie"] = cookie
	if auth := BuildSAPISIDHash(cookie, c.deps.Now()); auth != "" {
		headers["Authorization"] = auth
		headers["X-Origin"] = youtubeOrigin
		headers["Origin"] = youtubeOrigin
	}
	return headers
}

// fetchCaptions returns nil when the video has no caption tracks or no
// usable credential grants access; that is a fallback trigger, not an
// error. Chinese tracks are preferred, then English, then the first one.
func (c *youtubeCollector) fetchCaptions(ctx context.Context, videoID string) (*subtitleResult, error) {
	payload := map[string]any{
		"context": map[string]any{
			"client": map[string]any{
				"clientName":    innertubeClientName,
				"clientVersion": innertubeClientVer,
				"hl":            "zh-CN",
			},
		},
		"videoId": videoID,
	}

	data, status, err := c.client.postJSON(ctx, c.apiBase+"/youtubei/v1/player", c.authHeaders(), payload)
	if err != nil || status != 200 {
		return nil, err
	}

	var resp struct {
		Captions struct {
			PlayerCaptionsTracklistRenderer struct {
				CaptionTracks []struct {
					BaseURL      string `json:"baseUrl"`
					LanguageCode string `json:"languageCode"`
					Kind         string `json:"kind"`
				} `json:"captionTracks"`
			} `json:"playerCaptionsTracklistRenderer"`
		} `json:"captions"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, nil
	}

	tracks := resp.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) == 0 {
		return nil, nil
	}

	track := tracks[0]
	chosen := false
	for _, t := range tracks {
		if strings.HasPrefix(t.LanguageCode, "zh") {
			track = t
			chosen = true
			break
		}
	}
	if !chosen {
		for _, t := range tracks {
			if t.LanguageCode == "en" {
				track = t
				break
			}
		}
	}
	if track.BaseURL == "" {
		return nil, nil
	}

	subHeaders := map[string]string{}
	if cookie := strings.TrimSpace(c.deps.Credential("youtube")); cookie != "" {
		subHeaders["Cookie"] = cookie
	}
	data, status, err = c.client.get(ctx, track.BaseURL, subHeaders)
	if err != nil || status != 200 {
		return nil, err
	}

	var transcript struct {
		Texts []struct {
			Value string `xml:",chardata"`
		} `xml:"text"`
	}
	if err := xml.Unmarshal(data, &transcript); err != nil {
		return nil, nil
	}

	segments := make([]string, 0, len(transcript.Texts))
	for _, t := range transcript.Texts {
		segments = append(segments, strings.ReplaceAll(t.Value, "\n", " "))
	}
	text := formatSubtitleText(segments)
	if text == "" {
		return nil, nil
	}

	isZh := strings.HasPrefix(track.LanguageCode, "zh")
	isAuto := track.Kind == "asr"
	subtitleType := SubtitleEn
	switch {
	case isAuto && isZh:
		subtitleType = SubtitleAIZh
	case isAuto:
		subtitleType = SubtitleAIEn
	case isZh:
		subtitleType = SubtitleZhCN
	}

	return &subtitleResult{text: text, subtitleType: subtitleType}, nil
}
