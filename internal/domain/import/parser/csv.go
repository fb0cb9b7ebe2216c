package parser

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

// ParseError represents a problem with a specific CSV row. Row problems are
// reported, never fatal.
type ParseError struct {
	Row     int
	Message string
	RawData string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// ParseResult contains the ledger read from a CSV export.
type ParseResult struct {
	Table       *statement.RawTable
	Errors      []ParseError
	TotalRows   int
	SkippedRows int
}

// LedgerParser reads the ledger from an M-Pesa CSV export. It skips any
// preamble above the header row.
type LedgerParser struct {
	anchor    string
	delimiter rune
	skip      int
}

// NewLedgerParser creates a new CSV ledger parser.
func NewLedgerParser() *LedgerParser {
	return &LedgerParser{anchor: statement.ColDetails, delimiter: ','}
}

// WithDelimiter returns a copy of p reading fields separated by d.
func (p *LedgerParser) WithDelimiter(d rune) *LedgerParser {
	if d == 0 {
		return p
	}
	cp := *p
	cp.delimiter = d
	return &cp
}

// WithSkipLines returns a copy of p that discards n physical lines before
// reading records. A preamble skipped this way is never tokenized, so a stray
// quote in it cannot run on into the header row.
func (p *LedgerParser) WithSkipLines(n int) *LedgerParser {
	if n <= 0 {
		return p
	}
	cp := *p
	cp.skip = n
	return &cp
}

// Parse reads all rows from reader. Row numbers in errors count physical
// lines from the start of the file, skipped preamble included.
func (p *LedgerParser) Parse(reader io.Reader) (*ParseResult, error) {
	reader, err := skipLines(reader, p.skip)
	if err != nil {
		return nil, &statement.ExtractionError{Message: "failed to read CSV", Err: err}
	}

	csvReader := gocsv.LazyCSVReader(reader)
	if r, ok := csvReader.(*csv.Reader); ok {
		r.FieldsPerRecord = -1
		r.Comma = p.delimiter
	}

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, &statement.ExtractionError{Message: "failed to parse CSV", Err: err}
	}

	headerIdx := -1
	for i, rec := range records {
		if p.isHeader(rec) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, &statement.ExtractionError{Err: statement.ErrNoTablesFound}
	}

	header := make([]string, len(records[headerIdx]))
	for i, h := range records[headerIdx] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	result := &ParseResult{Table: &statement.RawTable{Header: header}}
	for i, rec := range records[headerIdx+1:] {
		rowNum := p.skip + headerIdx + i + 2
		result.TotalRows++

		if isBlank(rec) {
			result.SkippedRows++
			continue
		}
		if len(rec) != len(header) {
			result.Errors = append(result.Errors, ParseError{
				Row:     rowNum,
				Message: fmt.Sprintf("expected %d fields, got %d", len(header), len(rec)),
				RawData: strings.Join(rec, ","),
			})
		}

		row := make([]string, len(header))
		copy(row, rec)
		result.Table.Rows = append(result.Table.Rows, row)
	}

	if result.Table.Len() == 0 {
		return nil, &statement.ExtractionError{Err: statement.ErrNoTablesFound}
	}
	return result, nil
}

func (p *LedgerParser) isHeader(rec []string) bool {
	for _, cell := range rec {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(cell, "\ufeff")), p.anchor) {
			return true
		}
	}
	return false
}

func skipLines(r io.Reader, n int) (io.Reader, error) {
	if n <= 0 {
		return r, nil
	}
	br := bufio.NewReader(r)
	for i := 0; i < n; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
	}
	return br, nil
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
