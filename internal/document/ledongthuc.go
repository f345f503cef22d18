package document

import (
	"os"

	"github.com/ledongthuc/pdf"
)

// LedongthucEngine extracts text with font-aware decoding from
// github.com/ledongthuc/pdf. It copes better than PDFCPUEngine with
// documents whose fonts use custom encodings.
type LedongthucEngine struct{}

// Name implements Engine.
func (LedongthucEngine) Name() string { return EngineLedongthuc }

// Open implements Engine. The returned Document keeps the file open until Close.
func (LedongthucEngine) Open(path string) (Document, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		if file != nil {
			_ = file.Close()
		}

		return nil, err
	}

	return &ledongthucDocument{file: file, reader: reader}, nil
}

type ledongthucDocument struct {
	file   *os.File
	reader *pdf.Reader
}

func (d *ledongthucDocument) PageCount() int { return d.reader.NumPage() }

func (d *ledongthucDocument) PageText(index int) (string, error) {
	page := d.reader.Page(index + 1)
	if page.V.IsNull() {
		return "", nil
	}

	return page.GetPlainText(nil)
}

func (d *ledongthucDocument) Metadata() Info {
	info := d.reader.Trailer().Key("Info")

	return Info{
		Title:   info.Key("Title").Text(),
		Author:  info.Key("Author").Text(),
		Subject: info.Key("Subject").Text(),
		Creator: info.Key("Creator").Text(),
	}
}

func (d *ledongthucDocument) Close() error {
	return d.file.Close()
}
