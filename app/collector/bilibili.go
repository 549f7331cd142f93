package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ryanxin/collector/app/database"
)

const (
	bilibiliAPIBase  = "https://api.bilibili.com"
	bilibiliPageSize = 50

	// API code returned when the anti-bot check rejects the request; it
	// means the stored cookie is missing or expired, not a transient fault.
	bilibiliRiskCode = -352
)

type bilibiliCollector struct {
	source  *database.Source
	deps    Deps
	client  *client
	apiBase string
}

type bilibiliVideo struct {
	BVID        string
	Title       string
	Author      string
	Created     int64
	Length      string
	Description string
}

func (c *bilibiliCollector) headers() map[string]string {
	h := map[string]string{"Referer": "https://www.bilibili.com"}
	if cookie := c.deps.Credential("bilibili"); cookie != "" {
		h["Cookie"] = cookie
	}
	return h
}

func (c *bilibiliCollector) Fetch(ctx context.Context) ([]Item, error) {
	videos, err := c.fetchVideoList(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(videos))
	for _, video := range videos {
		content := video.Description
		subtitleType := SubtitleDescription
		if content == "" {
			subtitleType = SubtitleNone
		}
		parts := 0

		sub, err := c.fetchSubtitles(ctx, video.BVID)
		if err != nil {
			slog.Debug("Subtitle fetch failed, using description", "bvid", video.BVID, "error", err)
		} else if sub != nil {
			content = sub.text
			subtitleType = sub.subtitleType
			parts = sub.parts
		}

		items = append(items, Item{
			ExternalID:   video.BVID,
			Title:        video.Title,
			Author:       video.Author,
			URL:          "https://www.bilibili.com/video/" + video.BVID,
			Content:      content,
			Tags:         []string{"bilibili"},
			PublishedAt:  time.Unix(video.Created, 0).UTC(),
			Duration:     video.Length,
			SubtitleType: subtitleType,
			Parts:        parts,
		})
	}

	return items, nil
}

func (c *bilibiliCollector) wbiKeys(ctx context.Context) (string, string, error) {
	return c.deps.WBIKeys.Get(c.deps.Now(), func() (string, string, error) {
		data, _, err := c.client.get(ctx, c.apiBase+"/x/web-interface/nav", c.headers())
		if err != nil {
			return "", "", fmt.Errorf("failed to fetch nav keys: %w", err)
		}

		var nav struct {
			Data struct {
				WbiImg struct {
					ImgURL string `json:"img_url"`
					SubURL string `json:"sub_url"`
				} `json:"wbi_img"`
			} `json:"data"`
		}
		if err := json.Unmarshal(data, &nav); err != nil {
			return "", "", fmt.Errorf("failed to decode nav response: %w", err)
		}

		imgKey := keyFromURL(nav.Data.WbiImg.ImgURL)
		subKey := keyFromURL(nav.Data.WbiImg.SubURL)
		if imgKey == "" || subKey == "" {
			return "", "", &CredentialError{Platform: "bilibili", Message: "wbi keys unavailable, check the stored cookie"}
		}
		return imgKey, subKey, nil
	})
}

// keyFromURL extracts the key from a nav image URL: the last path segment
// without its extension.
func keyFromURL(u string) string {
	if u == "" {
		return ""
	}
	segment := u
	if i := strings.LastIndex(segment, "/"); i >= 0 {
		segment = segment[i+1:]
	}
	if i := strings.Index(segment, "."); i >= 0 {
		segment = segment[:i]
	}
	return segment
}

func (c *bilibiliCollector) fetchVideoList(ctx context.Context) ([]bilibiliVideo, error) {
	mid := c.source.ConfigString("mid")
	if mid == "" {
		return nil, fmt.Errorf("bilibili source %q has no mid configured", c.source.Name)
	}

	imgKey, subKey, err := c.wbiKeys(ctx)
	if err != nil {
		return nil, err
	}

	first := firstRun(c.source)
	maxTotal := maxItemsCap(c.source)
	maxPages := 10
	if first {
		maxPages = 5
	}

	var videos []bilibiliVideo
	for pn := 1; pn <= maxPages; pn++ {
		query := SignWBI(map[string]string{
			"mid": mid,
			"ps":  strconv.Itoa(bilibiliPageSize),
			"pn":  strconv.Itoa(pn),
		}, imgKey, subKey, c.deps.Now())

		data, status, err := c.client.get(ctx, c.apiBase+"/x/space/wbi/arc/search?"+query, c.headers())
		if err != nil {
			return nil, fmt.Errorf("failed to fetch video list: %w", err)
		}
		if status != 200 {
			return nil, fmt.Errorf("video list request returned HTTP %d", status)
		}

		var resp struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Data    struct {
				List struct {
					Vlist []struct {
						BVID        string `json:"bvid"`
						Title       string `json:"title"`
						Author      string `json:"author"`
						Created     int64  `json:"created"`
						Length      string `json:"length"`
						Description string `json:"description"`
					} `json:"vlist"`
				} `json:"list"`
			} `json:"data"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode video list: %w", err)
		}

		if resp.Code == bilibiliRiskCode {
			return nil, &CredentialError{Platform: "bilibili", Message: "risk check failed, paste a fresh cookie with SESSDATA in settings"}
		}
		if resp.Code != 0 {
			return nil, fmt.Errorf("bilibili API error %d: %s", resp.Code, resp.Message)
		}

		vlist := resp.Data.List.Vlist
		hasExisting := false

		for _, v := range vlist {
			exists, err := c.deps.Exists(v.BVID)
			if err != nil {
				return nil, err
			}
			if exists {
				hasExisting = true
				break
			}
			videos = append(videos, bilibiliVideo{
				BVID:        v.BVID,
				Title:       v.Title,
				Author:      v.Author,
				Created:     v.Created,
				Length:      v.Length,
				Description: v.Description,
			})
			if first && len(videos) >= maxTotal {
				break
			}
		}

		if hasExisting || (first && len(videos) >= maxTotal) || len(vlist) < bilibiliPageSize {
			break
		}
	}

	return videos, nil
}

type subtitleResult struct {
	text         string
	subtitleType string
	parts        int
}

// fetchSubtitles returns nil (not an error) when no captions exist.
// Human-authored zh-CN captions are preferred over auto-generated ai-zh;
// multi-part videos get a per-part heading.
func (c *bilibiliCollector) fetchSubtitles(ctx context.Context, bvid string) (*subtitleResult, error) {
	data, status, err := c.client.get(ctx, c.apiBase+"/x/player/pagelist?bvid="+bvid, c.headers())
	if err != nil || status != 200 {
		return nil, err
	}

	var pageResp struct {
		Code int `json:"code"`
		Data []struct {
			CID  int64  `json:"cid"`
			Part string `json:"part"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &pageResp); err != nil || pageResp.Code != 0 || len(pageResp.Data) == 0 {
		return nil, nil
	}

	pages := pageResp.Data
	multiPart := len(pages) > 1
	var texts []string
	finalType := SubtitleDescription

	for i, page := range pages {
		imgKey, subKey, err := c.wbiKeys(ctx)
		if err != nil {
			return nil, err
		}

		query := SignWBI(map[string]string{
			"bvid": bvid,
			"cid":  strconv.FormatInt(page.CID, 10),
		}, imgKey, subKey, c.deps.Now())

		data, status, err := c.client.get(ctx, c.apiBase+"/x/player/wbi/v2?"+query, c.headers())
		if err != nil || status != 200 {
			continue
		}

		var playerResp struct {
			Code int `json:"code"`
			Data struct {
				Subtitle struct {
					Subtitles []struct {
						Lan         string `json:"lan"`
						SubtitleURL string `json:"subtitle_url"`
					} `json:"subtitles"`
				} `json:"subtitle"`
			} `json:"data"`
		}
		if err := json.Unmarshal(data, &playerResp); err != nil || playerResp.Code != 0 {
			continue
		}

		subtitles := playerResp.Data.Subtitle.Subtitles
		if len(subtitles) == 0 {
			continue
		}

		chosen := subtitles[0]
		chosenLan := ""
		for _, s := range subtitles {
			if s.Lan == SubtitleZhCN {
				chosen = s
				chosenLan = SubtitleZhCN
				break
			}
			if s.Lan == SubtitleAIZh && chosenLan == "" {
				chosen = s
				chosenLan = SubtitleAIZh
			}
		}
		if i == 0 {
			if chosenLan != "" {
				finalType = chosenLan
			}
		}

		subtitleURL := chosen.SubtitleURL
		if strings.HasPrefix(subtitleURL, "//") {
			subtitleURL = "https:" + subtitleURL
		}

		data, status, err = c.client.get(ctx, subtitleURL, c.headers())
		if err != nil || status != 200 {
			continue
		}

		var subData struct {
			Body []struct {
				Content string `json:"content"`
			} `json:"body"`
		}
		if err := json.Unmarshal(data, &subData); err != nil || len(subData.Body) == 0 {
			continue
		}

		segments := make([]string, 0, len(subData.Body))
		for _, b := range subData.Body {
			segments = append(segments, b.Content)
		}
		text := formatSubtitleText(segments)
		if text == "" {
			continue
		}

		if multiPart {
			texts = append(texts, fmt.Sprintf("## P%d: %s\n\n%s", i+1, page.Part, text))
		} else {
			texts = append(texts, text)
		}
	}

	if len(texts) == 0 {
		return nil, nil
	}

	result := &subtitleResult{text: strings.Join(texts, "\n\n"), subtitleType: finalType}
	if multiPart {
		result.parts = len(pages)
	}
	return result, nil
}
