// Package parser turns uploaded statements into raw ledger tables.
// pdf_parser.go opens (and if needed decrypts) M-Pesa PDF statements.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"

	"github.com/dslipak/pdf"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

// aesFilter matches the crypt filter method of AES-encrypted documents
// (AESV2 for 128-bit, AESV3 for 256-bit). The encryption dictionary is never
// compressed into an object stream, so the raw bytes carry it.
var aesFilter = regexp.MustCompile(`/CFM\s*/AESV[23]`)

// Glyph is one positioned run of text on a page, in PDF user space
// (Y grows upwards).
type Glyph struct {
	S        string
	X        float64
	Y        float64
	W        float64
	FontSize float64
}

// Page holds the decoded glyphs of one page.
type Page struct {
	Number int
	Glyphs []Glyph
}

// Document is a fully decoded statement. Every page is read while the
// decrypted reader is alive, so later stages never go back to the encrypted
// object graph.
type Document struct {
	Pages     []Page
	Encrypted bool
	Size      int64
	// PlainText is the library's own text rendering, used as a fallback
	// source for metadata.
	PlainText string
}

// NumPages returns the number of decoded pages.
func (d *Document) NumPages() int {
	if d == nil {
		return 0
	}
	return len(d.Pages)
}

// Decryptor opens password protected statements.
type Decryptor struct {
	logger *slog.Logger
}

// NewDecryptor creates a new decryptor.
func NewDecryptor(logger *slog.Logger) *Decryptor {
	return &Decryptor{logger: logger}
}

// Decrypt opens data with password and decodes every page. Unencrypted
// documents (and those readable with an empty user password) are accepted
// regardless of the password supplied.
func (d *Decryptor) Decrypt(ctx context.Context, data []byte, password string) (*Document, error) {
	if len(data) == 0 {
		return nil, &statement.InvalidInputError{Message: "empty document"}
	}

	reader, encrypted, err := open(data, password)
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return nil, &statement.AuthenticationError{Err: err}
		}
		if aesErr := d.unsupportedEncryption(data, err); aesErr != nil {
			return nil, aesErr
		}
		return nil, &statement.ExtractionError{Message: "cannot open PDF", Err: err}
	}

	doc := &Document{Encrypted: encrypted, Size: int64(len(data))}
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := readPage(reader, i)
		if err != nil {
			if encrypted {
				if aesErr := d.unsupportedEncryption(data, err); aesErr != nil {
					return nil, aesErr
				}
			}
			return nil, &statement.ExtractionError{Message: fmt.Sprintf("page %d", i), Err: err}
		}
		doc.Pages = append(doc.Pages, page)
	}

	if text, err := plainText(reader); err != nil {
		d.logger.Debug("plain text rendering unavailable", slog.Any("error", err))
	} else {
		doc.PlainText = text
	}

	d.logger.Debug("document decoded",
		slog.Int("pages", len(doc.Pages)),
		slog.Bool("encrypted", encrypted),
	)
	return doc, nil
}

// unsupportedEncryption turns a reader failure on an AES-protected document
// into an unsupported media error. The reader only implements RC4, so AES
// documents fail either at open or on the first encrypted string.
func (d *Decryptor) unsupportedEncryption(data []byte, cause error) error {
	if !aesFilter.Match(data) {
		return nil
	}
	d.logger.Debug("AES-encrypted document rejected", slog.Any("error", cause))
	return &statement.InvalidInputError{
		Message: "AES-encrypted PDFs are not supported; remove the password or export the statement again",
		Err:     statement.ErrUnsupportedEncryption,
	}
}

// open tries the document as-is first, then with the caller's password.
// The password callback must yield the password once and then "", which is
// how the reader is told to stop retrying.
func open(data []byte, password string) (r *pdf.Reader, encrypted bool, err error) {
	err = recoverInto(func() error {
		ra := bytes.NewReader(data)
		size := int64(len(data))

		r, err = pdf.NewReader(ra, size)
		if err == nil {
			encrypted = !r.Trailer().Key("Encrypt").IsNull()
			return nil
		}
		if !errors.Is(err, pdf.ErrInvalidPassword) {
			return err
		}

		encrypted = true
		supplied := false
		r, err = pdf.NewReaderEncrypted(ra, size, func() string {
			if supplied {
				return ""
			}
			supplied = true
			return password
		})
		return err
	})
	return r, encrypted, err
}

func readPage(r *pdf.Reader, num int) (page Page, err error) {
	page.Number = num
	err = recoverInto(func() error {
		p := r.Page(num)
		if p.V.IsNull() {
			return nil
		}
		content := p.Content()
		page.Glyphs = make([]Glyph, 0, len(content.Text))
		for _, t := range content.Text {
			page.Glyphs = append(page.Glyphs, Glyph{
				S:        t.S,
				X:        t.X,
				Y:        t.Y,
				W:        t.W,
				FontSize: t.FontSize,
			})
		}
		return nil
	})
	return page, err
}

func plainText(r *pdf.Reader) (text string, err error) {
	err = recoverInto(func() error {
		rd, err := r.GetPlainText()
		if err != nil {
			return err
		}
		b, err := io.ReadAll(rd)
		if err != nil {
			return err
		}
		text = string(b)
		return nil
	})
	return text, err
}

// recoverInto runs fn and converts a panic from the PDF reader (it panics on
// malformed streams) into an error.
func recoverInto(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed PDF: %v", rec)
		}
	}()
	return fn()
}
