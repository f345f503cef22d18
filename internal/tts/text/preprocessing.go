// Package text prepares extracted page text for speech synthesis.
//
// PDF text arrives with hard line breaks, hyphenated words split across
// lines, citation markers and typographic punctuation. Preprocessor turns it
// into plain sentences; Split cuts the result into pieces small enough for a
// synthesis request.
package text

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxNumberForWords is the largest integer spelled out in English text.
	MaxNumberForWords = 999999

	englishPrefix = "en"
)

const (
	urlRegexPattern        = `https?://\S+`
	emailRegexPattern      = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`
	numberRegexPattern     = `\b\d+\b`
	referenceRegexPattern  = `\[\d+(?:[,–-]\s*\d+)*\]|[¹²³⁴⁵⁶⁷⁸⁹⁰]+`
	citationRegexPattern   = `\([^()]*\b\d{4}[a-z]?\)|\b\w+\s+et\s+al\.`
	hyphenBreakPattern     = `(\p{L})-\s*\n\s*(\p{L})`
	whitespaceRegexPattern = `\s+`

	// Placeholders are private-use runes around a letter index, so none of
	// the patterns above can match inside them.
	placeholderOpen  = "\uE000"
	placeholderClose = "\uE001"
)

// Preprocessor normalizes text for one language. English text additionally
// gets abbreviation expansion and numbers spelled out.
type Preprocessor struct {
	english bool

	urlPattern        *regexp.Regexp
	emailPattern      *regexp.Regexp
	numberPattern     *regexp.Regexp
	referencePattern  *regexp.Regexp
	citationPattern   *regexp.Regexp
	hyphenPattern     *regexp.Regexp
	whitespacePattern *regexp.Regexp

	abbreviationReplacer *strings.Replacer
	punctuationReplacer  *strings.Replacer
}

// NewPreprocessor returns a Preprocessor for the given language code
// (for example "en", "en-GB", "fr").
func NewPreprocessor(language string) *Preprocessor {
	return &Preprocessor{
		english:           strings.HasPrefix(strings.ToLower(language), englishPrefix),
		urlPattern:        regexp.MustCompile(urlRegexPattern),
		emailPattern:      regexp.MustCompile(emailRegexPattern),
		numberPattern:     regexp.MustCompile(numberRegexPattern),
		referencePattern:  regexp.MustCompile(referenceRegexPattern),
		citationPattern:   regexp.MustCompile(citationRegexPattern),
		hyphenPattern:     regexp.MustCompile(hyphenBreakPattern),
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		abbreviationReplacer: strings.NewReplacer(
			"Mr.", "Mister",
			"Mrs.", "Misses",
			"Dr.", "Doctor",
			"St.", "Saint",
			"Prof.", "Professor",
			"e.g.", "for example",
			"i.e.", "that is",
			"etc.", "et cetera",
			"vs.", "versus",
			"Fig.", "Figure",
		),
		punctuationReplacer: strings.NewReplacer(
			"—", " - ",
			"–", "-",
			"‒", "-",
			"…", "...",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
			"\u00ad", "",
			"ﬁ", "fi",
			"ﬂ", "fl",
		),
	}
}

// PreprocessText returns text ready to be spoken. Empty or whitespace-only
// input yields an empty string.
func (p *Preprocessor) PreprocessText(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	text = p.hyphenPattern.ReplaceAllString(text, "$1$2")
	text = p.punctuationReplacer.Replace(text)

	// URLs and emails are read as-is; shield them from the rewrites below.
	text, tokens := p.preserveTokens(text)

	text = p.referencePattern.ReplaceAllString(text, "")
	text = p.citationPattern.ReplaceAllString(text, "")

	if p.english {
		text = p.abbreviationReplacer.Replace(text)
		text = p.numberPattern.ReplaceAllStringFunc(text, func(s string) string {
			num, err := strconv.Atoi(s)
			if err != nil {
				return s
			}

			return IntegerToWords(num)
		})
	}

	text = p.whitespacePattern.ReplaceAllString(text, " ")
	text = collapseRepeatedPunctuation(text)
	text = restoreTokens(text, tokens)

	return ensureSentenceEnding(strings.TrimSpace(text))
}

func (p *Preprocessor) preserveTokens(text string) (string, []string) {
	var tokens []string

	protect := func(match string) string {
		tokens = append(tokens, match)

		return placeholder(len(tokens) - 1)
	}

	text = p.urlPattern.ReplaceAllStringFunc(text, protect)
	text = p.emailPattern.ReplaceAllStringFunc(text, protect)

	return text, tokens
}

func restoreTokens(text string, tokens []string) string {
	for i, token := range tokens {
		text = strings.Replace(text, placeholder(i), token, 1)
	}

	return text
}

// collapseRepeatedPunctuation keeps the first of a run of identical
// punctuation marks, except for the ellipsis.
func collapseRepeatedPunctuation(text string) string {
	var out strings.Builder

	out.Grow(len(text))

	var last rune

	for _, r := range text {
		if r == last && unicode.IsPunct(r) && r != '.' {
			continue
		}

		out.WriteRune(r)
		last = r
	}

	return out.String()
}

func placeholder(index int) string {
	letters := []byte{byte('a' + index%26)}
	for index /= 26; index > 0; index /= 26 {
		letters = append(letters, byte('a'+index%26))
	}

	return placeholderOpen + string(letters) + placeholderClose
}

func ensureSentenceEnding(text string) string {
	if text == "" {
		return ""
	}

	lastChar, _ := utf8.DecodeLastRuneInString(text)
	switch lastChar {
	case '.', '!', '?', '"', '\'', ')':
		return text
	default:
		return text + "."
	}
}

var (
	ones = []string{
		"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
		"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen",
		"seventeen", "eighteen", "nineteen",
	}
	tens = []string{"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety"}
)

// IntegerToWords spells out n in English. Values outside
// [0, MaxNumberForWords] are returned as digits.
func IntegerToWords(n int) string {
	if n < 0 || n > MaxNumberForWords {
		return strconv.Itoa(n)
	}

	if n == 0 {
		return ones[0]
	}

	var parts []string

	if thousands := n / 1000; thousands > 0 {
		parts = append(parts, underThousand(thousands), "thousand")
	}

	if rest := n % 1000; rest > 0 {
		parts = append(parts, underThousand(rest))
	}

	return strings.Join(parts, " ")
}

func underThousand(n int) string {
	var parts []string

	if hundreds := n / 100; hundreds > 0 {
		parts = append(parts, ones[hundreds], "hundred")
	}

	rest := n % 100

	switch {
	case rest == 0:
	case rest < len(ones):
		parts = append(parts, ones[rest])
	case rest%10 == 0:
		parts = append(parts, tens[rest/10])
	default:
		parts = append(parts, tens[rest/10]+"-"+ones[rest%10])
	}

	return strings.Join(parts, " ")
}
