package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func writeJSON(w http.ResponseWriter, v any) {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func bilibiliNavHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"code": 0,
		"data": map[string]any{
			"wbi_img": map[string]any{
				"img_url": "https://i0.hdslb.com/bfs/wbi/" + testImgKey + ".png",
				"sub_url": "https://i0.hdslb.com/bfs/wbi/" + testSubKey + ".png",
			},
		},
	})
}

func makeBilibiliVideo(bvid, title string) map[string]any {
	return map[string]any{
		"bvid":        bvid,
		"title":       title,
		"author":      "up主",
		"created":     1700000000,
		"length":      "12:34",
		"description": "desc of " + bvid,
	}
}

func TestBilibiliIncrementalStop(t *testing.T) {
	searchRequests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/nav", bilibiliNavHandler)
	mux.HandleFunc("/x/space/wbi/arc/search", func(w http.ResponseWriter, r *http.Request) {
		searchRequests++
		writeJSON(w, map[string]any{
			"code": 0,
			"data": map[string]any{"list": map[string]any{"vlist": []any{
				makeBilibiliVideo("BV_A", "Video A"),
				makeBilibiliVideo("BV_B", "Video B"),
				makeBilibiliVideo("BV_C", "Video C"),
				makeBilibiliVideo("BV_D", "Video D"),
			}}},
		})
	})
	mux.HandleFunc("/x/player/pagelist", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"code": 0, "data": []any{}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	source := testSource(t, "bilibili", map[string]any{"mid": "12345"}, true)
	deps := testDeps(map[string]bool{"BV_C": true}, nil)
	c := &bilibiliCollector{source: source, deps: deps, client: newClient(srv.Client(), "test-agent"), apiBase: srv.URL}

	items, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("Expected 2 items before the known one, got %d", len(items))
	}
	if items[0].ExternalID != "BV_A" || items[1].ExternalID != "BV_B" {
		t.Errorf("Expected [BV_A BV_B], got [%s %s]", items[0].ExternalID, items[1].ExternalID)
	}
	if searchRequests != 1 {
		t.Errorf("Expected no pages beyond the one containing the known item, got %d requests", searchRequests)
	}
	if items[0].Content != "desc of BV_A" || items[0].SubtitleType != SubtitleDescription {
		t.Errorf("Expected description fallback, got %q/%q", items[0].Content, items[0].SubtitleType)
	}
}

func TestBilibiliFirstRunCap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/nav", bilibiliNavHandler)
	mux.HandleFunc("/x/space/wbi/arc/search", func(w http.ResponseWriter, r *http.Request) {
		var vlist []any
		for i := 0; i < 4; i++ {
			vlist = append(vlist, makeBilibiliVideo(fmt.Sprintf("BV_%d", i), fmt.Sprintf("Video %d", i)))
		}
		writeJSON(w, map[string]any{
			"code": 0,
			"data": map[string]any{"list": map[string]any{"vlist": vlist}},
		})
	})
	mux.HandleFunc("/x/player/pagelist", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"code": 0, "data": []any{}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	source := testSource(t, "bilibili", map[string]any{"mid": "12345", "max_items": 2}, false)
	c := &bilibiliCollector{source: source, deps: testDeps(nil, nil), client: newClient(srv.Client(), "test-agent"), apiBase: srv.URL}

	items, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("Expected first-run cap of 2, got %d items", len(items))
	}
}

func TestBilibiliCredentialError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/nav", bilibiliNavHandler)
	mux.HandleFunc("/x/space/wbi/arc/search", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"code": -352, "message": "risk control"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	source := testSource(t, "bilibili", map[string]any{"mid": "12345"}, false)
	c := &bilibiliCollector{source: source, deps: testDeps(nil, nil), client: newClient(srv.Client(), "test-agent"), apiBase: srv.URL}

	_, err := c.Fetch(context.Background())
	if err == nil {
		t.Fatal("Expected credential error")
	}
	var credErr *CredentialError
	if !errors.As(err, &credErr) {
		t.Errorf("Expected *CredentialError, got %T: %v", err, err)
	}
	if credErr != nil && credErr.Platform != "bilibili" {
		t.Errorf("Expected bilibili platform, got %q", credErr.Platform)
	}
}

func TestBilibiliSubtitleFailureIsolation(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/nav", bilibiliNavHandler)
	mux.HandleFunc("/x/space/wbi/arc/search", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"code": 0,
			"data": map[string]any{"list": map[string]any{"vlist": []any{
				makeBilibiliVideo("BV_A", "Video A"),
				makeBilibiliVideo("BV_B", "Video B"),
				makeBilibiliVideo("BV_C", "Video C"),
			}}},
		})
	})
	mux.HandleFunc("/x/player/pagelist", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("bvid") == "BV_B" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"code": 0, "data": []any{
			map[string]any{"cid": 111, "part": "正片"},
		}})
	})
	mux.HandleFunc("/x/player/wbi/v2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"code": 0,
			"data": map[string]any{"subtitle": map[string]any{"subtitles": []any{
				map[string]any{"lan": "zh-CN", "subtitle_url": srv.URL + "/subs.json"},
			}}},
		})
	})
	mux.HandleFunc("/subs.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"body": []any{
			map[string]any{"content": "大家好。"},
			map[string]any{"content": "大家好。"},
			map[string]any{"content": "第二句！第三句"},
		}})
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	source := testSource(t, "bilibili", map[string]any{"mid": "12345"}, false)
	c := &bilibiliCollector{source: source, deps: testDeps(nil, nil), client: newClient(srv.Client(), "test-agent"), apiBase: srv.URL}

	items, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected all 3 videos despite one caption failure, got %d", len(items))
	}

	expectedText := "大家好。\n第二句！\n第三句"
	if items[0].Content != expectedText || items[0].SubtitleType != SubtitleZhCN {
		t.Errorf("Expected formatted zh-CN subtitles for BV_A, got %q/%q", items[0].Content, items[0].SubtitleType)
	}
	if items[1].Content != "desc of BV_B" || items[1].SubtitleType != SubtitleDescription {
		t.Errorf("Expected description fallback for BV_B, got %q/%q", items[1].Content, items[1].SubtitleType)
	}
	if items[2].SubtitleType != SubtitleZhCN {
		t.Errorf("Expected zh-CN subtitles for BV_C, got %q", items[2].SubtitleType)
	}
}
