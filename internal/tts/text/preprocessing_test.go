package text_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/book-expert/pdf-narrator/internal/tts/text"
)

// preprocessorTestCase defines a standard test case for the preprocessor.
type preprocessorTestCase struct {
	name     string
	input    string
	expected string
}

// runPreprocessorTests runs table-driven cases against a preprocessor for language.
func runPreprocessorTests(t *testing.T, language string, tests []preprocessorTestCase) {
	t.Helper()

	preprocessor := text.NewPreprocessor(language)

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, preprocessor.PreprocessText(testCase.input))
		})
	}
}

func TestPreprocessText_English(t *testing.T) {
	t.Parallel()

	runPreprocessorTests(t, "en", []preprocessorTestCase{
		{name: "empty", input: "", expected: ""},
		{name: "whitespace only", input: " \n\t ", expected: ""},
		{name: "adds sentence ending", input: "Hello world", expected: "Hello world."},
		{name: "abbreviations", input: "Dr. Smith met Mr. Jones.", expected: "Doctor Smith met Mister Jones."},
		{name: "numbers", input: "I have 3 apples and 21 pears", expected: "I have three apples and twenty-one pears."},
		{name: "large number", input: "Chapter 1205", expected: "Chapter one thousand two hundred five."},
		{name: "url kept", input: "Visit https://example.com/a1 now", expected: "Visit https://example.com/a1 now."},
		{name: "email kept", input: "Mail bob2@example.org today", expected: "Mail bob2@example.org today."},
		{name: "reference markers", input: "Water boils[12] at sea level", expected: "Water boils at sea level."},
		{name: "citations", input: "This holds (Smith, 2019) in general", expected: "This holds in general."},
		{name: "hyphenated line break", input: "The exam-\nple works", expected: "The example works."},
		{name: "line breaks and tabs", input: "  line one\n\tline two  ", expected: "line one line two."},
		{name: "smart quotes", input: "He said “hi”", expected: `He said "hi"`},
		{name: "em dash", input: "wait—now", expected: "wait - now."},
		{name: "repeated punctuation", input: "Really!!! Yes", expected: "Really! Yes."},
		{name: "ellipsis kept", input: "Hmm…", expected: "Hmm..."},
	})
}

func TestPreprocessText_OtherLanguagesKeepDigits(t *testing.T) {
	t.Parallel()

	runPreprocessorTests(t, "fr", []preprocessorTestCase{
		{name: "digits untouched", input: "Il a 3 chats", expected: "Il a 3 chats."},
		{name: "no english abbreviations", input: "Dr. Watson", expected: "Dr. Watson."},
		{name: "references still removed", input: "Voir[3] ici", expected: "Voir ici."},
	})
}

func TestIntegerToWords(t *testing.T) {
	t.Parallel()

	tests := map[int]string{
		0:       "zero",
		7:       "seven",
		13:      "thirteen",
		40:      "forty",
		99:      "ninety-nine",
		100:     "one hundred",
		101:     "one hundred one",
		5000:    "five thousand",
		999999:  "nine hundred ninety-nine thousand nine hundred ninety-nine",
		1000000: "1000000",
		-5:      "-5",
	}

	for input, expected := range tests {
		assert.Equal(t, expected, text.IntegerToWords(input), "input %d", input)
	}
}

func TestSplit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		limit    int
		expected []string
	}{
		{name: "empty", input: "   ", limit: 10, expected: nil},
		{name: "fits", input: "Short text.", limit: 100, expected: []string{"Short text."}},
		{name: "sentence boundaries", input: "One two. Three four.", limit: 12, expected: []string{"One two.", "Three four."}},
		{name: "packs sentences", input: "A. B. C.", limit: 5, expected: []string{"A. B.", "C."}},
		{name: "word fallback", input: "alpha beta gamma", limit: 11, expected: []string{"alpha beta", "gamma"}},
		{name: "long word", input: "abcdefghij", limit: 4, expected: []string{"abcd", "efgh", "ij"}},
		{name: "decimal is not a boundary", input: "It costs 3.5 euros. Fine.", limit: 20, expected: []string{"It costs 3.5 euros.", "Fine."}},
		{name: "no limit", input: "a b c", limit: 0, expected: []string{"a b c"}},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, text.Split(testCase.input, testCase.limit))
		})
	}
}

func TestSplit_Properties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		input := rapid.StringMatching(`[a-zé .!?\n]{0,400}`).Draw(rt, "input")
		limit := rapid.IntRange(1, 120).Draw(rt, "limit")

		chunks := text.Split(input, limit)

		for _, chunk := range chunks {
			require.NotEmpty(rt, chunk)
			require.Equal(rt, strings.TrimSpace(chunk), chunk)
			require.LessOrEqual(rt, utf8.RuneCountInString(chunk), limit)
		}

		require.Equal(rt, stripSpace(input), stripSpace(strings.Join(chunks, "")))
	})
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
