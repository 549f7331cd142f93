package collector

import "strings"

// sentenceEnders close a sentence; each caption segment is re-split so the
// stored text carries one sentence per line.
var sentenceEnders = map[rune]bool{
	'。': true, '！': true, '？': true, '；': true,
	';': true, '!': true, '?': true,
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if sentenceEnders[r] {
			sentences = append(sentences, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}

	return sentences
}

// formatSubtitleText normalizes raw caption segments: consecutive
// duplicate segments are dropped (auto-generated captions repeat lines),
// then each segment is split into sentences, one per output line.
func formatSubtitleText(segments []string) string {
	var lines []string
	prev := ""

	for _, seg := range segments {
		content := strings.TrimSpace(seg)
		if content == "" || content == prev {
			continue
		}
		prev = content

		for _, s := range splitSentences(content) {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				lines = append(lines, trimmed)
			}
		}
	}

	return strings.Join(lines, "\n")
}
