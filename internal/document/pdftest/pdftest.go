// Package pdftest builds small, valid PDF files for tests.
package pdftest

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Metadata fills the document information dictionary.
type Metadata struct {
	Title   string
	Author  string
	Subject string
	Creator string
}

// Layout selects how content stream operators are laid out.
type Layout int

const (
	// LayoutMultiLine puts every operator on its own line.
	LayoutMultiLine Layout = iota
	// LayoutSingleLine writes the whole content stream on one line and
	// moves between text lines with Td.
	LayoutSingleLine
)

// Options control BuildWithOptions.
type Options struct {
	Metadata Metadata
	Layout   Layout
	// BrokenPages are 0-based pages whose content stream claims
	// FlateDecode but holds uncompressed bytes.
	BrokenPages []int
}

// Build returns a PDF with one page per entry in pages. Each line of a page
// is drawn with its own Tj operator; an empty or whitespace-only entry
// produces a page with an empty text object.
func Build(pages []string, meta Metadata) []byte {
	return BuildWithOptions(pages, Options{Metadata: meta})
}

// BuildWithOptions is Build with control over the content streams.
func BuildWithOptions(pages []string, opts Options) []byte {
	var doc strings.Builder

	meta := opts.Metadata

	doc.WriteString("%PDF-1.4\n")

	// 1 catalog, 2 page tree, 3 font, then a page and its content per page, then info.
	objectCount := 3 + 2*len(pages) + 1
	offsets := make([]int, objectCount+1)

	write := func(num int, body string) {
		offsets[num] = doc.Len()
		fmt.Fprintf(&doc, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", pageObject(i))
	}

	write(1, "<< /Type /Catalog /Pages 2 0 R >>")
	write(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	write(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	for i, text := range pages {
		write(pageObject(i), fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>",
			pageObject(i)+1))

		stream := contentStream(text, opts.Layout)

		filter := ""
		if slices.Contains(opts.BrokenPages, i) {
			filter = " /Filter /FlateDecode"
		}

		write(pageObject(i)+1, fmt.Sprintf("<< /Length %d%s >>\nstream\n%s\nendstream", len(stream), filter, stream))
	}

	infoObject := objectCount
	write(infoObject, fmt.Sprintf("<< /Title (%s) /Author (%s) /Subject (%s) /Creator (%s) >>",
		escape(meta.Title), escape(meta.Author), escape(meta.Subject), escape(meta.Creator)))

	xref := doc.Len()
	fmt.Fprintf(&doc, "xref\n0 %d\n0000000000 65535 f \n", objectCount+1)

	for num := 1; num <= objectCount; num++ {
		fmt.Fprintf(&doc, "%010d 00000 n \n", offsets[num])
	}

	fmt.Fprintf(&doc, "trailer\n<< /Size %d /Root 1 0 R /Info %d 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		objectCount+1, infoObject, xref)

	return []byte(doc.String())
}

// WriteFile builds the PDF into dir/name and returns its path.
func WriteFile(dir, name string, pages []string, meta Metadata) (string, error) {
	return WriteFileWithOptions(dir, name, pages, Options{Metadata: meta})
}

// WriteFileWithOptions is WriteFile with control over the content streams.
func WriteFileWithOptions(dir, name string, pages []string, opts Options) (string, error) {
	path := filepath.Join(dir, name)

	err := os.WriteFile(path, BuildWithOptions(pages, opts), 0o600)
	if err != nil {
		return "", err
	}

	return path, nil
}

func pageObject(index int) int {
	return 4 + 2*index
}

func contentStream(text string, layout Layout) string {
	var stream strings.Builder

	if layout == LayoutSingleLine {
		stream.WriteString("BT /F1 12 Tf 72 720 Td 14 TL")

		for _, line := range strings.Split(text, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}

			fmt.Fprintf(&stream, " (%s) Tj 0 -14 Td", escape(line))
		}

		stream.WriteString(" ET")

		return stream.String()
	}

	stream.WriteString("BT\n/F1 12 Tf\n72 720 Td\n14 TL\n")

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		fmt.Fprintf(&stream, "(%s) Tj\nT*\n", escape(line))
	}

	stream.WriteString("ET")

	return stream.String()
}

func escape(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)

	return replacer.Replace(s)
}
