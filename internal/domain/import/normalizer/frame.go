package normalizer

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

// Kind is the storage type of a frame column.
type Kind int

const (
	KindText Kind = iota
	KindNumeric
	KindTime
)

// Column is one typed column. Exactly one of Text, Num or Time is populated,
// according to Kind. Missing numeric cells are NaN and missing times nil.
type Column struct {
	Name string
	Kind Kind
	Text []string
	Num  []float64
	Time []*time.Time
}

// Len returns the number of cells.
func (c Column) Len() int {
	switch c.Kind {
	case KindNumeric:
		return len(c.Num)
	case KindTime:
		return len(c.Time)
	default:
		return len(c.Text)
	}
}

// Missing reports whether cell i has no value.
func (c Column) Missing(i int) bool {
	switch c.Kind {
	case KindNumeric:
		return math.IsNaN(c.Num[i])
	case KindTime:
		return c.Time[i] == nil
	default:
		return strings.TrimSpace(c.Text[i]) == ""
	}
}

// Cell renders cell i as a string.
func (c Column) Cell(i int) string {
	switch c.Kind {
	case KindNumeric:
		if math.IsNaN(c.Num[i]) {
			return ""
		}
		return strconv.FormatFloat(c.Num[i], 'f', -1, 64)
	case KindTime:
		if c.Time[i] == nil {
			return ""
		}
		return c.Time[i].Format(time.RFC3339)
	default:
		return c.Text[i]
	}
}

func (c Column) take(rows []int) Column {
	out := Column{Name: c.Name, Kind: c.Kind}
	switch c.Kind {
	case KindNumeric:
		out.Num = make([]float64, len(rows))
		for i, r := range rows {
			out.Num[i] = c.Num[r]
		}
	case KindTime:
		out.Time = make([]*time.Time, len(rows))
		for i, r := range rows {
			out.Time[i] = c.Time[r]
		}
	default:
		out.Text = make([]string, len(rows))
		for i, r := range rows {
			out.Text[i] = c.Text[r]
		}
	}
	return out
}

// Frame is an immutable column-oriented table. Every operation returns a new
// frame; column data is never written after construction.
type Frame struct {
	cols []Column
	rows int
}

// NewFrame builds an all-text frame from a raw table. Repeated header labels
// get a numeric suffix.
func NewFrame(raw *statement.RawTable) Frame {
	if raw == nil {
		return Frame{}
	}

	seen := make(map[string]int, len(raw.Header))
	f := Frame{rows: len(raw.Rows), cols: make([]Column, len(raw.Header))}
	for j, h := range raw.Header {
		name := strings.TrimSpace(h)
		if n := seen[name]; n > 0 {
			name = name + "." + strconv.Itoa(n)
		}
		seen[strings.TrimSpace(h)]++

		col := Column{Name: name, Kind: KindText, Text: make([]string, len(raw.Rows))}
		for i, row := range raw.Rows {
			if j < len(row) {
				col.Text[i] = strings.TrimSpace(row[j])
			}
		}
		f.cols[j] = col
	}
	return f
}

// Len returns the number of rows.
func (f Frame) Len() int { return f.rows }

// Columns returns the column names in order.
func (f Frame) Columns() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Column returns the column whose normalized name equals name.
func (f Frame) Column(name string) (Column, bool) {
	idx := f.index(name)
	if idx < 0 {
		return Column{}, false
	}
	return f.cols[idx], true
}

// index finds a column by name, ignoring embedded line breaks.
func (f Frame) index(name string) int {
	want := cleanName(name)
	for i, c := range f.cols {
		if cleanName(c.Name) == want {
			return i
		}
	}
	return -1
}

func (f Frame) with(idx int, c Column) Frame {
	cols := make([]Column, len(f.cols))
	copy(cols, f.cols)
	cols[idx] = c
	return Frame{cols: cols, rows: f.rows}
}

func (f Frame) append(c Column) Frame {
	cols := make([]Column, len(f.cols), len(f.cols)+1)
	copy(cols, f.cols)
	return Frame{cols: append(cols, c), rows: f.rows}
}

func (f Frame) drop(idx int) Frame {
	cols := make([]Column, 0, len(f.cols)-1)
	cols = append(cols, f.cols[:idx]...)
	cols = append(cols, f.cols[idx+1:]...)
	return Frame{cols: cols, rows: f.rows}
}

func (f Frame) take(rows []int) Frame {
	cols := make([]Column, len(f.cols))
	for i, c := range f.cols {
		cols[i] = c.take(rows)
	}
	return Frame{cols: cols, rows: len(rows)}
}

func (f Frame) rowKey(i int) string {
	var b strings.Builder
	for j, c := range f.cols {
		if j > 0 {
			b.WriteByte(0x1f)
		}
		b.WriteString(c.Cell(i))
	}
	return b.String()
}

var lineBreaks = strings.NewReplacer("\r", "", "\n", "")

func cleanName(name string) string {
	return lineBreaks.Replace(name)
}
