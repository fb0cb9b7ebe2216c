// Package sniffer decides how an upload should be read: as a PDF statement or
// as a CSV export of the ledger, and with which delimiter.
package sniffer

import (
	"bytes"
	"mime"
	"path/filepath"
	"strings"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

var pdfMagic = []byte("%PDF-")

// csvTypes are the declared content types accepted for the CSV ledger path.
// Browsers commonly label .csv files as application/vnd.ms-excel.
var csvTypes = map[string]bool{
	"text/csv":                 true,
	"application/csv":          true,
	"application/vnd.ms-excel": true,
	"text/plain":               true,
}

// FileConfig is the detected shape of an upload.
type FileConfig struct {
	Kind      statement.SourceKind
	Delimiter rune // CSV only
	SkipLines int  // CSV only: preamble lines above the header
}

// Detect classifies data. The leading bytes win over the declared content
// type; the declared type and file extension are only consulted when the
// bytes are not a PDF.
func Detect(contentType, filename string, data []byte) (*FileConfig, error) {
	if len(data) == 0 {
		return nil, &statement.InvalidInputError{Message: "empty upload"}
	}
	if bytes.HasPrefix(bytes.TrimLeft(data[:min(len(data), 1024)], "\x00\t\r\n "), pdfMagic) {
		return &FileConfig{Kind: statement.SourcePDF}, nil
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "application/pdf":
		// Declared as a PDF but without the signature: let the decryptor
		// report it as unreadable.
		return &FileConfig{Kind: statement.SourcePDF}, nil
	case csvTypes[mediaType],
		strings.EqualFold(filepath.Ext(filename), ".csv"):
		delimiter, skip := findHeaderRow(data)
		return &FileConfig{Kind: statement.SourceCSV, Delimiter: delimiter, SkipLines: skip}, nil
	default:
		if mediaType == "" {
			mediaType = "unknown"
		}
		return nil, &statement.InvalidInputError{
			Message: "unsupported content type " + mediaType,
			Err:     statement.ErrUnsupportedMedia,
		}
	}
}

// findHeaderRow locates the ledger header within the first lines and returns
// its delimiter. Files without a recognizable header default to ','.
func findHeaderRow(data []byte) (rune, int) {
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		if i > 20 {
			break
		}
		line = cleanLine(line, i == 0)
		if !strings.Contains(strings.ToLower(line), strings.ToLower(statement.ColDetails)) {
			continue
		}
		if d, count := detectDelimiter(line); count > 0 {
			return d, i
		}
	}
	return ',', 0
}

func cleanLine(line string, firstLine bool) string {
	line = strings.TrimRight(line, "\r")
	if firstLine {
		line = strings.TrimPrefix(line, "\uFEFF")
	}
	return strings.TrimSpace(line)
}

func detectDelimiter(line string) (rune, int) {
	delimiters := []rune{';', '\t', ',', '|'}
	bestDelimiter := rune(0)
	bestCount := 0
	for _, d := range delimiters {
		count := strings.Count(line, string(d))
		if count > bestCount {
			bestCount = count
			bestDelimiter = d
		}
	}
	return bestDelimiter, bestCount
}
