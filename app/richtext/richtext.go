// Package richtext decodes the proprietary inline <e> tag markup used by
// community post bodies (e.g. <e type="web" href="..." title="..." />) into
// plain text or markdown. Attribute values are percent-encoded; stored titles
// were historically truncated mid-tag, so both decoders must tolerate tags
// that never close.
package richtext

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Matching order mirrors the renderer the markup was designed for:
//  1. ![alt](<e type="web" .../>)   - tag nested in image url position
//  2. [text](<e type="web" .../>)   - tag nested in link url position
//  3. [<e type="..." .../>](url)    - tag in link text position
//  4. <e type="..." .../>           - standalone complete tag
//  5. <e ...                        - truncated/broken tag, greedy to end of line
var tagRe = regexp.MustCompile(`!\[([^\]]*)\]\(\s*<e\s+type="web"\s+([^/]*?)/>\s*\)|\[([^\]]+)\]\(\s*<e\s+type="web"\s+([^/]*?)/>\s*\)|\[<e\s+type="(\w+)"\s+([^/]*?)/>\s*\]\(([^)]+)\)|<e\s+type="(\w+)"\s+([^/]*?)/?>|<e\s[^\n]*`)

var (
	completeTagRe  = regexp.MustCompile(`<e\s+type="\w+"[^/]*?/>`)
	brokenTagRe    = regexp.MustCompile(`<e\s[^\n]*`)
	attrRe         = regexp.MustCompile(`(\w+)="([^"]*)"`)
	partialTitleRe = regexp.MustCompile(`title="([^"]*)`)
	partialHrefRe  = regexp.MustCompile(`href="([^"]*)`)
	imageExtRe     = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp|bmp)`)
)

// decodeComponent percent-decodes s, rejecting results that are not valid
// UTF-8. A truncated multi-byte escape sequence unescapes to garbage bytes
// rather than an error, so the UTF-8 check is what actually detects it.
func decodeComponent(s string) (string, bool) {
	d, err := url.PathUnescape(s)
	if err != nil || !utf8.ValidString(d) {
		return "", false
	}
	return d, true
}

// safeDecode percent-decodes s. Stored titles are sometimes cut off in the
// middle of an escape sequence; trim up to 8 trailing characters and retry
// before giving up and returning the raw value.
func safeDecode(s string) string {
	if d, ok := decodeComponent(s); ok {
		return d
	}
	for i := len(s) - 1; i >= 0 && i >= len(s)-8; i-- {
		if d, ok := decodeComponent(s[:i]); ok {
			return d
		}
	}
	return s
}

func parseAttrs(s string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrRe.FindAllStringSubmatch(s, -1) {
		attrs[m[1]] = m[2]
	}
	return attrs
}

// recoverBroken extracts a partial title or href value from a tag fragment
// that never closed. Returns "" when neither attribute is present.
func recoverBroken(fragment string) string {
	if m := partialTitleRe.FindStringSubmatch(fragment); m != nil {
		return safeDecode(m[1])
	}
	if m := partialHrefRe.FindStringSubmatch(fragment); m != nil {
		return safeDecode(m[1])
	}
	return ""
}

// DecodeToText converts inline tags to their plain-text value: the decoded
// title attribute (href as fallback). Used for titles and search.
func DecodeToText(text string) string {
	out := completeTagRe.ReplaceAllStringFunc(text, func(match string) string {
		attrs := parseAttrs(match)
		if v, ok := attrs["title"]; ok {
			return safeDecode(v)
		}
		if v, ok := attrs["href"]; ok {
			return safeDecode(v)
		}
		return ""
	})
	return brokenTagRe.ReplaceAllStringFunc(out, recoverBroken)
}

// DecodeToMarkdown converts inline tags to portable markdown. Tags already
// nested inside markdown image/link syntax resolve to a single construct
// instead of being double-wrapped.
func DecodeToMarkdown(text string) string {
	var b strings.Builder
	last := 0

	for _, m := range tagRe.FindAllStringSubmatchIndex(text, -1) {
		b.WriteString(text[last:m[0]])
		b.WriteString(renderMatch(text, m))
		last = m[1]
	}

	b.WriteString(text[last:])
	return b.String()
}

func renderMatch(text string, m []int) string {
	group := func(i int) (string, bool) {
		if m[2*i] < 0 {
			return "", false
		}
		return text[m[2*i]:m[2*i+1]], true
	}

	if alt, ok := group(1); ok {
		// ![alt](<e type="web" href="..." />)
		attrs, _ := group(2)
		src := safeDecode(parseAttrs(attrs)["href"])
		if alt == "" {
			alt = "图片"
		}
		return "![" + alt + "](" + src + ")"
	}

	if label, ok := group(3); ok {
		// [text](<e type="web" href="..." />)
		attrs, _ := group(4)
		href := safeDecode(parseAttrs(attrs)["href"])
		return "[" + label + "](" + href + ")"
	}

	if tagType, ok := group(5); ok {
		// [<e type="..." .../>](url)
		_ = tagType
		attrStr, _ := group(6)
		href, _ := group(7)
		attrs := parseAttrs(attrStr)
		label := safeDecode(attrs["title"])
		if label == "" {
			label = safeDecode(attrs["href"])
		}
		if imageExtRe.MatchString(href) {
			if label == "" {
				label = "图片"
			}
			return "![" + label + "](" + href + ")"
		}
		if label == "" {
			label = href
		}
		return "[" + label + "](" + href + ")"
	}

	if tagType, ok := group(8); ok {
		attrStr, _ := group(9)
		return renderTag(tagType, parseAttrs(attrStr))
	}

	// Truncated fragment.
	full, _ := group(0)
	return recoverBroken(full)
}

func renderTag(tagType string, attrs map[string]string) string {
	switch tagType {
	case "text_bold":
		return "**" + safeDecode(attrs["title"]) + "**"
	case "web":
		href := safeDecode(attrs["href"])
		title := safeDecode(attrs["title"])
		if imageExtRe.MatchString(href) {
			if title == "" {
				title = "图片"
			}
			return "![" + title + "](" + href + ")"
		}
		if title == "" {
			title = href
		}
		return "[" + title + "](" + href + ")"
	case "hashtag", "mention":
		return safeDecode(attrs["title"])
	default:
		return safeDecode(attrs["title"])
	}
}

// ExtractTitle derives a title from decoded post text: the first line with at
// least 4 characters, or failing that the longest non-empty line.
func ExtractTitle(text string) string {
	lines := strings.Split(text, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if len([]rune(trimmed)) >= 4 {
			return trimmed
		}
	}

	longest := ""
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if len([]rune(trimmed)) > len([]rune(longest)) {
			longest = trimmed
		}
	}
	return longest
}
