package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Split cuts text into pieces of at most limit runes. It prefers sentence
// boundaries, falls back to word boundaries, and splits a single word only
// when the word alone exceeds limit. Pieces are trimmed and never empty.
func Split(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if limit <= 0 {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
	)

	flush := func() {
		if piece := strings.TrimSpace(current.String()); piece != "" {
			chunks = append(chunks, piece)
		}

		current.Reset()
	}

	add := func(piece string) {
		size := utf8.RuneCountInString(piece)
		if current.Len() > 0 && utf8.RuneCountInString(current.String())+1+size > limit {
			flush()
		}

		if current.Len() > 0 {
			current.WriteByte(' ')
		}

		current.WriteString(piece)
	}

	for _, sentence := range sentences(text) {
		if utf8.RuneCountInString(sentence) <= limit {
			add(sentence)

			continue
		}

		for _, word := range strings.Fields(sentence) {
			for _, part := range splitWord(word, limit) {
				add(part)
			}
		}
	}

	flush()

	return chunks
}

// sentences splits after '.', '!' or '?' when followed by whitespace.
func sentences(text string) []string {
	var (
		out   []string
		start int
	)

	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}

		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}

		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}

		start = i + 1
	}

	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}

	return out
}

func splitWord(word string, limit int) []string {
	runes := []rune(word)
	if len(runes) <= limit {
		return []string{word}
	}

	parts := make([]string, 0, len(runes)/limit+1)
	for start := 0; start < len(runes); start += limit {
		parts = append(parts, string(runes[start:min(start+limit, len(runes))]))
	}

	return parts
}
