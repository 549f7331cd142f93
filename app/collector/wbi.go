package collector

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Permutation applied to the concatenated nav keys to derive the 32-char
// mixing key. The table is fixed by the platform's web player.
var mixinKeyEncTab = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35,
	27, 43, 5, 49, 33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13,
	37, 48, 7, 16, 24, 55, 40, 61, 26, 17, 0, 1, 60, 51, 30, 4,
	22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11, 36, 20, 34, 44, 52,
}

func mixinKey(orig string) string {
	var b strings.Builder
	for _, n := range mixinKeyEncTab {
		if n < len(orig) {
			b.WriteByte(orig[n])
		}
	}
	key := b.String()
	if len(key) > 32 {
		key = key[:32]
	}
	return key
}

// SignWBI builds the signed query string: parameters plus a wts timestamp,
// sorted by key, values stripped of !'()*, percent-encoded, with the final
// w_rid parameter carrying MD5(query + mixing key). Deterministic for a
// fixed now.
func SignWBI(params map[string]string, imgKey, subKey string, now time.Time) string {
	key := mixinKey(imgKey + subKey)

	all := make(map[string]string, len(params)+1)
	for k, v := range params {
		all[k] = v
	}
	all["wts"] = strconv.FormatInt(now.Unix(), 10)

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.Map(func(r rune) rune {
			switch r {
			case '!', '\'', '(', ')', '*':
				return -1
			}
			return r
		}, all[k])
		pairs = append(pairs, encodeComponent(k)+"="+encodeComponent(v))
	}
	query := strings.Join(pairs, "&")

	digest := md5.Sum([]byte(query + key))
	return query + "&w_rid=" + hex.EncodeToString(digest[:])
}

// encodeComponent percent-encodes like a browser query encoder: spaces
// become %20, not +.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// WBIKeyCache holds the rotating img/sub keys fetched from the public nav
// endpoint, refreshed at most once per hour. Safe for concurrent use even
// though collection runs are serialized.
type WBIKeyCache struct {
	mu        sync.Mutex
	imgKey    string
	subKey    string
	fetchedAt time.Time
}

const wbiKeyTTL = time.Hour

// Get returns cached keys, calling fetch when the cache is empty or stale.
func (c *WBIKeyCache) Get(now time.Time, fetch func() (imgKey, subKey string, err error)) (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.imgKey != "" && now.Sub(c.fetchedAt) < wbiKeyTTL {
		return c.imgKey, c.subKey, nil
	}

	imgKey, subKey, err := fetch()
	if err != nil {
		return "", "", err
	}

	c.imgKey = imgKey
	c.subKey = subKey
	c.fetchedAt = now
	return imgKey, subKey, nil
}
