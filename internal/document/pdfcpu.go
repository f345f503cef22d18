package document

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFCPUEngine reads documents with pdfcpu and recovers text by walking the
// text-showing operators of each page content stream.
type PDFCPUEngine struct{}

// Name implements Engine.
func (PDFCPUEngine) Name() string { return EnginePDFCPU }

// Open implements Engine. The whole document is parsed into memory, so the
// file handle is released before Open returns. Content streams are decoded
// lazily by PageText, so one undecodable page does not fail the document.
func (PDFCPUEngine) Open(path string) (Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.Optimize = false

	ctx, err := api.ReadValidateAndOptimize(file, conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	return &pdfcpuDocument{ctx: ctx}, nil
}

type pdfcpuDocument struct {
	ctx *model.Context
}

func (d *pdfcpuDocument) PageCount() int { return d.ctx.PageCount }

func (d *pdfcpuDocument) Metadata() Info {
	return Info{
		Title:   d.ctx.Title,
		Author:  d.ctx.Author,
		Subject: d.ctx.Subject,
		Creator: d.ctx.Creator,
	}
}

func (d *pdfcpuDocument) Close() error { return nil }

// PageText reads the text of one page. A page without content is blank; a
// content stream that cannot be decoded is an error.
func (d *pdfcpuDocument) PageText(index int) (string, error) {
	reader, err := pdfcpu.ExtractPageContent(d.ctx, index+1)
	if err != nil {
		return "", err
	}

	if reader == nil {
		return "", nil
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}

	return textFromContentStream(data), nil
}

// textFromContentStream collects string operands of Tj, TJ, ' and " and
// turns text-positioning operators into whitespace. Operators may share a
// line with their operands or with other operators.
func textFromContentStream(data []byte) string {
	var (
		out      strings.Builder
		operands []string
	)

	scanner := contentScanner{data: data}

	for {
		tok, ok := scanner.next()
		if !ok {
			break
		}

		if tok.kind == tokenString {
			operands = append(operands, tok.text)

			continue
		}

		if tok.kind != tokenOperator {
			continue
		}

		switch tok.text {
		case "Tj", "TJ":
			for _, operand := range operands {
				out.WriteString(operand)
			}
		case "'", `"`:
			out.WriteByte('\n')

			for _, operand := range operands {
				out.WriteString(operand)
			}
		case "Td", "TD", "Tm":
			if out.Len() > 0 {
				out.WriteByte(' ')
			}
		case "T*", "ET":
			out.WriteByte('\n')
		case "ID":
			scanner.skipInlineImage()
		}

		operands = operands[:0]
	}

	return collapseWhitespace(out.String())
}

type tokenKind int

const (
	tokenOperand tokenKind = iota
	tokenString
	tokenOperator
)

type token struct {
	kind tokenKind
	text string
}

// contentScanner splits a content stream into operands and operators.
// Numbers, names, array and dictionary brackets are reported as plain
// operands; literal and hex strings are decoded.
type contentScanner struct {
	data []byte
	pos  int
}

func (s *contentScanner) next() (token, bool) {
	s.skipSpaceAndComments()

	if s.pos >= len(s.data) {
		return token{}, false
	}

	c := s.data[s.pos]

	switch {
	case c == '(':
		s.pos++

		return token{kind: tokenString, text: s.literalString()}, true
	case c == '<' && s.peek(1) == '<', c == '>' && s.peek(1) == '>':
		s.pos += 2

		return token{kind: tokenOperand}, true
	case c == '<':
		s.pos++

		return token{kind: tokenString, text: s.hexString()}, true
	case c == '[', c == ']', c == '{', c == '}', c == '>', c == ')':
		s.pos++

		return token{kind: tokenOperand}, true
	case c == '/':
		s.pos++
		s.regular()

		return token{kind: tokenOperand}, true
	}

	word := s.regular()
	if isNumeric(word) {
		return token{kind: tokenOperand, text: word}, true
	}

	return token{kind: tokenOperator, text: word}, true
}

func (s *contentScanner) peek(offset int) byte {
	if s.pos+offset < len(s.data) {
		return s.data[s.pos+offset]
	}

	return 0
}

func (s *contentScanner) skipSpaceAndComments() {
	for s.pos < len(s.data) {
		c := s.data[s.pos]

		switch {
		case isWhitespace(c):
			s.pos++
		case c == '%':
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
		default:
			return
		}
	}
}

// regular consumes a run of regular characters. It always consumes at
// least one byte so the scanner makes progress.
func (s *contentScanner) regular() string {
	start := s.pos

	for s.pos < len(s.data) && !isWhitespace(s.data[s.pos]) && !isDelimiter(s.data[s.pos]) {
		s.pos++
	}

	if s.pos == start && s.pos < len(s.data) {
		s.pos++
	}

	return string(s.data[start:s.pos])
}

// literalString decodes a string whose opening parenthesis was consumed,
// honoring nested parentheses and backslash escapes.
func (s *contentScanner) literalString() string {
	var current []byte

	depth := 1

	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++

		switch c {
		case '\\':
			if s.pos < len(s.data) {
				consumed, decoded := unescape(s.data[s.pos:])
				current = append(current, decoded...)
				s.pos += consumed
			}
		case '(':
			depth++
			current = append(current, c)
		case ')':
			depth--
			if depth == 0 {
				return string(current)
			}

			current = append(current, c)
		default:
			current = append(current, c)
		}
	}

	return string(current)
}

// hexString decodes a string whose opening angle bracket was consumed.
// A trailing odd digit is padded with zero.
func (s *contentScanner) hexString() string {
	var (
		decoded []byte
		digits  []byte
	)

	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++

		if c == '>' {
			break
		}

		if value, ok := hexValue(c); ok {
			digits = append(digits, value)
		}
	}

	if len(digits)%2 == 1 {
		digits = append(digits, 0)
	}

	for i := 0; i < len(digits); i += 2 {
		decoded = append(decoded, digits[i]<<4|digits[i+1])
	}

	return string(decoded)
}

// skipInlineImage moves past the binary data of an inline image up to and
// including its EI operator.
func (s *contentScanner) skipInlineImage() {
	for s.pos+2 <= len(s.data) {
		atEnd := s.data[s.pos] == 'E' && s.data[s.pos+1] == 'I'
		before := s.pos == 0 || isWhitespace(s.data[s.pos-1])
		after := s.pos+2 == len(s.data) || isWhitespace(s.data[s.pos+2]) || isDelimiter(s.data[s.pos+2])

		if atEnd && before && after {
			s.pos += 2

			return
		}

		s.pos++
	}

	s.pos = len(s.data)
}

func isWhitespace(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	default:
		return false
	}
}

func isDelimiter(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return false
	}
}

func isNumeric(word string) bool {
	if word == "" {
		return false
	}

	for _, r := range word {
		if (r < '0' || r > '9') && r != '.' && r != '-' && r != '+' {
			return false
		}
	}

	return true
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// unescape decodes the escape sequence following a backslash and reports
// how many bytes it consumed.
func unescape(rest []byte) (int, []byte) {
	switch rest[0] {
	case 'n':
		return 1, []byte{'\n'}
	case 'r':
		return 1, []byte{'\r'}
	case 't':
		return 1, []byte{'\t'}
	case 'b', 'f':
		return 1, nil
	case '\n':
		return 1, nil
	case '\r':
		if len(rest) > 1 && rest[1] == '\n' {
			return 2, nil
		}

		return 1, nil
	}

	if rest[0] < '0' || rest[0] > '7' {
		return 1, []byte{rest[0]}
	}

	value, n := 0, 0
	for n < 3 && n < len(rest) && rest[n] >= '0' && rest[n] <= '7' {
		value = value*8 + int(rest[n]-'0')
		n++
	}

	return n, []byte{byte(value)}
}

// collapseWhitespace keeps line breaks between lines of text and reduces
// every other whitespace run to a single space.
func collapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]

	for _, line := range lines {
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return unicode.IsSpace(r) || !unicode.IsPrint(r)
		})
		if len(fields) > 0 {
			kept = append(kept, strings.Join(fields, " "))
		}
	}

	return strings.Join(kept, "\n")
}
