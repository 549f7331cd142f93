package collector

import "testing"

func TestFormatSubtitleTextDedupesConsecutive(t *testing.T) {
	got := formatSubtitleText([]string{"大家好", "大家好", "今天讲并发"})
	expected := "大家好\n今天讲并发"
	if got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
}

func TestFormatSubtitleTextSplitsSentences(t *testing.T) {
	got := formatSubtitleText([]string{"第一句。第二句！第三句"})
	expected := "第一句。\n第二句！\n第三句"
	if got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
}

func TestFormatSubtitleTextAsciiPunctuation(t *testing.T) {
	got := formatSubtitleText([]string{"one? two! three; four"})
	expected := "one?\ntwo!\nthree;\nfour"
	if got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
}

func TestFormatSubtitleTextSkipsEmpty(t *testing.T) {
	got := formatSubtitleText([]string{"  ", "", "唯一一句"})
	if got != "唯一一句" {
		t.Errorf("Expected single line, got %q", got)
	}
}
