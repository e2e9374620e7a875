// Package caption renders timestamped transcription segments into the
// plain-text interchange formats served as job artifacts.
package caption

import (
	"fmt"
	"strings"
)

// Segment is a single timed span of transcribed text. Times are seconds
// relative to the start of the normalized waveform, Start <= End.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// splitMillis floors seconds to integer milliseconds and decomposes them
// into clock components. Both caption formats derive from this.
func splitMillis(seconds float64) (h, m, s, ms int) {
	total := int(seconds * 1000)
	h = total / 3600000
	m = (total % 3600000) / 60000
	s = (total % 60000) / 1000
	ms = total % 1000
	return
}

// FormatSRTTimestamp converts seconds to the SRT time format HH:MM:SS,mmm.
func FormatSRTTimestamp(seconds float64) string {
	h, m, s, ms := splitMillis(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// FormatVTTTimestamp converts seconds to the WebVTT time format HH:MM:SS.mmm.
func FormatVTTTimestamp(seconds float64) string {
	h, m, s, ms := splitMillis(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// RenderPlaintext joins segment texts with newlines.
func RenderPlaintext(segments []Segment) string {
	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}
	return strings.Join(texts, "\n")
}

// RenderSRT emits one numbered block per segment in input order:
// index line, timestamp range, text, blank separator.
func RenderSRT(segments []Segment) string {
	var lines []string
	for i, seg := range segments {
		lines = append(lines,
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%s --> %s", FormatSRTTimestamp(seg.Start), FormatSRTTimestamp(seg.End)),
			seg.Text,
			"",
		)
	}
	return strings.Join(lines, "\n")
}

// RenderVTT emits the mandatory WEBVTT header followed by one unnumbered
// block per segment.
func RenderVTT(segments []Segment) string {
	lines := []string{"WEBVTT", ""}
	for _, seg := range segments {
		lines = append(lines,
			fmt.Sprintf("%s --> %s", FormatVTTTimestamp(seg.Start), FormatVTTTimestamp(seg.End)),
			seg.Text,
			"",
		)
	}
	return strings.Join(lines, "\n")
}
