package acquire

import (
	"regexp"
	"strings"

	"github.com/tsawler/prose/v3"

	"stepweave/internal/model"
	"stepweave/internal/services/whisperx"
)

var disallowed = regexp.MustCompile(`[^a-zA-Z0-9\s.,!?']`)

// CleanText strips everything but letters, digits, whitespace and basic
// punctuation.
func CleanText(text string) string {
	return disallowed.ReplaceAllString(text, "")
}

// SplitSentences segments text into trimmed, non-empty sentences.
func SplitSentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	doc, err := prose.NewDocument(text)
	if err != nil {
		return fallbackSplit(text)
	}
	var out []string
	for _, sentence := range doc.Sentences() {
		if s := strings.TrimSpace(sentence.Text); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func fallbackSplit(text string) []string {
	var out []string
	for _, line := range strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '!' || r == '?' }) {
		if s := strings.TrimSpace(line); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Sentences cleans the segment text, splits the joined transcript into
// sentences and times each one by linear interpolation over the segment
// window it falls in. Sentences that cannot be located are returned as
// unmatched.
func Sentences(segments []whisperx.Segment) ([]model.Sentence, []string) {
	if len(segments) == 0 {
		return []model.Sentence{}, nil
	}
	texts := make([]string, len(segments))
	var full strings.Builder
	for i, segment := range segments {
		texts[i] = CleanText(segment.Text)
		full.WriteString(texts[i])
	}

	var (
		out       = []model.Sentence{}
		unmatched []string
		next      int
		line      string
		start     = segments[0].Start
	)
	for _, sentence := range SplitSentences(full.String()) {
		for !strings.Contains(line, sentence) && next < len(segments) {
			line += texts[next]
			next++
		}
		at := strings.Index(line, sentence)
		if at < 0 {
			unmatched = append(unmatched, sentence)
			continue
		}
		finish := segments[next-1].End
		end := at + len(sentence)
		span := float64(len(line))
		item := model.Sentence{
			Start: start + (finish-start)*float64(at)/span,
			End:   start + (finish-start)*float64(end)/span,
			Text:  sentence,
		}
		out = append(out, item)

		if end < len(line) {
			line = line[end:]
			start = item.End
			continue
		}
		line = ""
		if next < len(segments) {
			start = segments[next].Start
		} else {
			start = finish
		}
	}
	return out, unmatched
}
