package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/ryanxin/collector/app/database"
	"github.com/ryanxin/collector/app/richtext"
)

const (
	zsxqAPIBase   = "https://api.zsxq.com"
	zsxqPageCount = 20
)

type zsxqCollector struct {
	source  *database.Source
	deps    Deps
	client  *client
	apiBase string
}

type zsxqImage struct {
	Original  *zsxqImageVariant `json:"original"`
	Large     *zsxqImageVariant `json:"large"`
	Thumbnail *zsxqImageVariant `json:"thumbnail"`
}

type zsxqImageVariant struct {
	URL string `json:"url"`
}

func (i zsxqImage) bestURL() string {
	for _, v := range []*zsxqImageVariant{i.Original, i.Large, i.Thumbnail} {
		if v != nil && v.URL != "" {
			return v.URL
		}
	}
	return ""
}

type zsxqOwner struct {
	Name string `json:"name"`
}

type zsxqTopic struct {
	TopicID    int64  `json:"topic_id"`
	CreateTime string `json:"create_time"`
	Talk       *struct {
		Owner  *zsxqOwner  `json:"owner"`
		Text   string      `json:"text"`
		Images []zsxqImage `json:"images"`
	} `json:"talk"`
	Question *struct {
		Text string `json:"text"`
	} `json:"question"`
	ShowComments []struct {
		Owner *zsxqOwner `json:"owner"`
		Text  string     `json:"text"`
	} `json:"show_comments"`
}

func (c *zsxqCollector) headers() map[string]string {
	return map[string]string{
		"Accept": "application/json",
		"Cookie": c.deps.Credential("zsxq"),
	}
}

// Fetch pages through the group's topics using the opaque end_time cursor
// taken from the last topic of each page. The post body keeps its raw
// inline tag markup; decoding happens at storage time.
func (c *zsxqCollector) Fetch(ctx context.Context) ([]Item, error) {
	groupID := c.source.ConfigString("group_id")
	if groupID == "" {
		return nil, fmt.Errorf("zsxq source %q has no group_id configured", c.source.Name)
	}

	first := firstRun(c.source)
	maxTotal := maxItemsCap(c.source)
	maxPages := 10
	if first {
		maxPages = 5
	}

	var items []Item
	endTime := ""

	for page := 0; page < maxPages; page++ {
		count := zsxqPageCount
		if first && maxTotal-len(items) < count {
			count = maxTotal - len(items)
		}

		reqURL := fmt.Sprintf("%s/v2/groups/%s/topics?count=%d", c.apiBase, groupID, count)
		if endTime != "" {
			reqURL += "&end_time=" + url.QueryEscape(endTime)
		}

		data, status, err := c.client.get(ctx, reqURL, c.headers())
		if err != nil {
			return nil, fmt.Errorf("failed to fetch topics: %w", err)
		}
		if status != 200 {
			return nil, fmt.Errorf("topics request returned HTTP %d", status)
		}

		var resp struct {
			RespData struct {
				Topics []zsxqTopic `json:"topics"`
			} `json:"resp_data"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode topics: %w", err)
		}

		topics := resp.RespData.Topics
		if len(topics) == 0 {
			break
		}

		hasExisting := false
		for _, topic := range topics {
			externalID := strconv.FormatInt(topic.TopicID, 10)
			exists, err := c.deps.Exists(externalID)
			if err != nil {
				return nil, err
			}
			if exists {
				hasExisting = true
				break
			}

			items = append(items, c.buildItem(topic, externalID))
			if first && len(items) >= maxTotal {
				break
			}
		}

		endTime = topics[len(topics)-1].CreateTime

		if hasExisting || (first && len(items) >= maxTotal) || len(topics) < count {
			break
		}
	}

	return items, nil
}

func (c *zsxqCollector) buildItem(topic zsxqTopic, externalID string) Item {
	rawText := ""
	author := c.source.Name
	if topic.Talk != nil {
		rawText = topic.Talk.Text
		if topic.Talk.Owner != nil && topic.Talk.Owner.Name != "" {
			author = topic.Talk.Owner.Name
		}
	} else if topic.Question != nil {
		rawText = topic.Question.Text
	}

	title := richtext.ExtractTitle(richtext.DecodeToText(rawText))
	if title == "" {
		title = "知识星球帖子 " + topic.CreateTime
	}

	content := rawText

	if topic.Talk != nil && len(topic.Talk.Images) > 0 {
		content += "\n"
		anyURL := false
		for _, img := range topic.Talk.Images {
			if u := img.bestURL(); u != "" {
				content += "\n![图片](" + u + ")"
				anyURL = true
			}
		}
		if !anyURL {
			content += fmt.Sprintf("\n[包含 %d 张图片]", len(topic.Talk.Images))
		}
	}

	if len(topic.ShowComments) > 0 {
		content += "\n\n---\n**精选评论：**"
		for _, comment := range topic.ShowComments {
			commenter := "匿名"
			if comment.Owner != nil && comment.Owner.Name != "" {
				commenter = comment.Owner.Name
			}
			content += fmt.Sprintf("\n> **%s**：%s", commenter, comment.Text)
		}
	}

	publishedAt := c.deps.Now().UTC()
	if t, err := parseZsxqTime(topic.CreateTime); err == nil {
		publishedAt = t
	}

	return Item{
		ExternalID:  externalID,
		Title:       title,
		Author:      author,
		URL:         "https://wx.zsxq.com/topic/" + externalID,
		Content:     content,
		Tags:        []string{"知识星球"},
		PublishedAt: publishedAt,
	}
}

// parseZsxqTime accepts the platform's "+0800"-style offsets as well as
// RFC3339 colons.
func parseZsxqTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05.999Z0700", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
