package collector

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var sapisidRe = regexp.MustCompile(`(?:^|;\s*)SAPISID=([^;]+)`)

const youtubeOrigin = "https://www.youtube.com"

// BuildSAPISIDHash derives the authorization header value from a browser
// cookie string: SHA1("{epoch} {SAPISID} {origin}"). Returns "" when the
// cookie does not carry a SAPISID value.
func BuildSAPISIDHash(cookie string, now time.Time) string {
	m := sapisidRe.FindStringSubmatch(cookie)
	if m == nil {
		return ""
	}
	sapisid := strings.TrimSpace(m[1])
	epoch := now.Unix()
	digest := sha1.Sum([]byte(fmt.Sprintf("%d %s %s", epoch, sapisid, youtubeOrigin)))
	return fmt.Sprintf("SAPISIDHASH %d_%s", epoch, hex.EncodeToString(digest[:]))
}
