// Package document extracts per-page text from PDF files.
package document

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/pdf-narrator/internal/core"
)

// Engine names accepted by NewExtractor.
const (
	EnginePDFCPU     = "pdfcpu"
	EngineLedongthuc = "ledongthuc"
)

const (
	errFmtOpen    = "%w: open %s: %w"
	errFmtPage    = "%w: %s page %d: %w"
	errFmtPanic   = "%w: %s: parser panic: %v"
	errFmtUnknown = "%w: %q"
)

// ErrUnknownEngine is returned when an engine name is not registered.
var ErrUnknownEngine = errors.New("unknown PDF engine")

// Page is the text of one document page. Number is the 0-based page index.
type Page struct {
	Number int
	Text   string
}

// PageRange selects pages by inclusive 0-based indices.
type PageRange struct {
	Start int
	End   int
}

// Info is the document metadata reported by Extractor.Info.
type Info struct {
	PageCount int    `json:"page_count"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Subject   string `json:"subject"`
	Creator   string `json:"creator"`
}

// Document is an open PDF. Implementations must release their resources on Close.
type Document interface {
	PageCount() int
	// PageText returns the raw text of the page at the 0-based index.
	PageText(index int) (string, error)
	Metadata() Info
	Close() error
}

// Engine opens PDF files.
type Engine interface {
	Name() string
	Open(path string) (Document, error)
}

// Extractor reads page text through an Engine.
type Extractor struct {
	engine Engine
}

// NewExtractor returns an Extractor backed by the named engine.
// An empty name selects pdfcpu.
func NewExtractor(engine string) (*Extractor, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EnginePDFCPU:
		return &Extractor{engine: PDFCPUEngine{}}, nil
	case EngineLedongthuc:
		return &Extractor{engine: LedongthucEngine{}}, nil
	default:
		return nil, fmt.Errorf(errFmtUnknown, ErrUnknownEngine, engine)
	}
}

// NewExtractorWithEngine wraps an arbitrary Engine.
func NewExtractorWithEngine(engine Engine) *Extractor {
	return &Extractor{engine: engine}
}

// Engine returns the name of the backing engine.
func (e *Extractor) Engine() string {
	return e.engine.Name()
}

// Extract returns the non-blank pages of path in order. A nil pageRange
// selects the whole document. The range is clamped to the pages that exist;
// an empty selection yields an empty slice.
func (e *Extractor) Extract(ctx context.Context, path string, pageRange *PageRange) ([]Page, error) {
	doc, err := e.open(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	start, end := clamp(pageRange, doc.PageCount())
	pages := make([]Page, 0, max(0, end-start+1))

	for index := start; index <= end; index++ {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return nil, ctxErr
		}

		text, textErr := e.pageText(doc, path, index)
		if textErr != nil {
			return nil, textErr
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		pages = append(pages, Page{Number: index, Text: text})
	}

	return pages, nil
}

// Info returns the page count and metadata of path.
func (e *Extractor) Info(ctx context.Context, path string) (Info, error) {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return Info{}, ctxErr
	}

	doc, err := e.open(path)
	if err != nil {
		return Info{}, err
	}
	defer doc.Close()

	info := doc.Metadata()
	info.PageCount = doc.PageCount()

	return info, nil
}

// JoinText concatenates page texts separated by a blank line.
func JoinText(pages []Page) string {
	texts := make([]string, len(pages))
	for i, page := range pages {
		texts[i] = page.Text
	}

	return strings.Join(texts, "\n\n")
}

func (e *Extractor) open(path string) (doc Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf(errFmtPanic, core.ErrDocument, path, r)
		}
	}()

	doc, err = e.engine.Open(path)
	if err != nil {
		return nil, fmt.Errorf(errFmtOpen, core.ErrDocument, path, err)
	}

	return doc, nil
}

func (e *Extractor) pageText(doc Document, path string, index int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf(errFmtPanic, core.ErrDocument, path, r)
		}
	}()

	text, err = doc.PageText(index)
	if err != nil {
		return "", fmt.Errorf(errFmtPage, core.ErrDocument, path, index, err)
	}

	return text, nil
}

// clamp converts pageRange into inclusive bounds within [0, count-1].
// When nothing is selected end is less than start.
func clamp(pageRange *PageRange, count int) (int, int) {
	if pageRange == nil {
		return 0, count - 1
	}

	start := max(pageRange.Start, 0)
	end := min(pageRange.End, count-1)

	return start, end
}
