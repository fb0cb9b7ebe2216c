package parser

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

// receiptPattern matches M-Pesa receipt numbers.
var receiptPattern = regexp.MustCompile(`^[A-Z0-9]{10}$`)

// headerAnchors must all appear (case-insensitive) on a ledger header line.
var headerAnchors = []string{"receipt no", "details", "balance"}

const (
	minFontSize     = 4.0
	lineTolerance   = 0.35 // fraction of font size
	wordGap         = 0.25 // fraction of font size
	cellGap         = 1.2  // fraction of font size
	columnSlack     = 2.0  // points left of a header cell still in its column
	continuationGap = 2.6  // fraction of font size between wrapped lines
)

type word struct {
	text   string
	x0, x1 float64
	size   float64
}

func (w word) center() float64 { return (w.x0 + w.x1) / 2 }

type textLine struct {
	y     float64
	size  float64
	words []word
}

func (l textLine) text() string {
	parts := make([]string, len(l.words))
	for i, w := range l.words {
		parts[i] = w.text
	}
	return strings.Join(parts, " ")
}

// columnLayout is the column geometry taken from a header line.
type columnLayout struct {
	names  []string
	starts []float64
}

func (c *columnLayout) column(w word) int {
	idx := 0
	for i, start := range c.starts {
		if start <= w.center() {
			idx = i
		}
	}
	return idx
}

// TableExtractor rebuilds the statement ledger from positioned glyphs.
type TableExtractor struct {
	logger *slog.Logger
}

// NewTableExtractor creates a new table extractor.
func NewTableExtractor(logger *slog.Logger) *TableExtractor {
	return &TableExtractor{logger: logger}
}

// Extract runs page-level extraction across the document and concatenates
// the page tables in page order.
func (e *TableExtractor) Extract(ctx context.Context, doc *Document) (*statement.RawTable, error) {
	var (
		result *statement.RawTable
		layout *columnLayout
		tables int
	)

	for _, page := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var table *statement.RawTable
		table, layout = extractPage(page.Glyphs, layout)
		if table == nil || table.Len() == 0 {
			continue
		}

		tables++
		if result == nil {
			result = table
		} else {
			result.Append(table)
		}
	}

	if tables == 0 {
		return nil, &statement.ExtractionError{Err: statement.ErrNoTablesFound}
	}

	e.logger.Debug("ledger extracted",
		slog.Int("tables", tables),
		slog.Int("rows", result.Len()),
		slog.Int("columns", len(result.Header)),
	)
	return result, nil
}

// extractPage returns the ledger rows found on one page together with the
// column layout to carry onto the next page.
func extractPage(glyphs []Glyph, carried *columnLayout) (*statement.RawTable, *columnLayout) {
	lines := buildLines(glyphs)
	layout := carried
	headerOnPage := false

	var (
		table *statement.RawTable
		lastY float64
	)

	for _, ln := range lines {
		if isHeaderLine(ln) {
			layout = headerLayout(ln)
			headerOnPage = true
			table = &statement.RawTable{Header: append([]string(nil), layout.names...)}
			lastY = ln.y
			continue
		}
		if layout == nil {
			continue
		}
		if table == nil {
			table = &statement.RawTable{Header: append([]string(nil), layout.names...)}
		}

		cells := make([]string, len(layout.names))
		for _, w := range ln.words {
			i := layout.column(w)
			if cells[i] == "" {
				cells[i] = w.text
			} else {
				cells[i] += " " + w.text
			}
		}

		first := strings.TrimSpace(cells[0])
		switch {
		case first != "" && (receiptPattern.MatchString(first) || headerOnPage):
			table.Rows = append(table.Rows, cells)
			lastY = ln.y
		case first == "" && len(table.Rows) > 0 && lastY-ln.y <= continuationGap*ln.size:
			prev := table.Rows[len(table.Rows)-1]
			for i, c := range cells {
				if c == "" {
					continue
				}
				if prev[i] == "" {
					prev[i] = c
				} else {
					prev[i] += "\r" + c
				}
			}
			lastY = ln.y
		}
	}

	return table, layout
}

func isHeaderLine(ln textLine) bool {
	text := strings.ToLower(ln.text())
	for _, anchor := range headerAnchors {
		if !strings.Contains(text, anchor) {
			return false
		}
	}
	return true
}

// headerLayout splits a header line into cells at wide gaps.
func headerLayout(ln textLine) *columnLayout {
	layout := &columnLayout{}
	var (
		current []string
		start   float64
		end     float64
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		layout.names = append(layout.names, strings.Join(current, " "))
		layout.starts = append(layout.starts, start-columnSlack)
		current = nil
	}

	for _, w := range ln.words {
		if len(current) > 0 && w.x0-end > cellGap*w.size {
			flush()
		}
		if len(current) == 0 {
			start = w.x0
		}
		current = append(current, w.text)
		end = w.x1
	}
	flush()
	return layout
}

// buildLines groups glyphs into lines (top of page first) and merges
// adjacent glyphs into words.
func buildLines(glyphs []Glyph) []textLine {
	sorted := make([]Glyph, 0, len(glyphs))
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		sorted = append(sorted, g)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Y > sorted[j].Y
	})

	var groups [][]Glyph
	var groupY float64
	for _, g := range sorted {
		tol := lineTolerance * fontSize(g)
		if len(groups) == 0 || math.Abs(groupY-g.Y) > tol {
			groups = append(groups, []Glyph{g})
			groupY = g.Y
			continue
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], g)
	}

	lines := make([]textLine, 0, len(groups))
	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool { return group[i].X < group[j].X })
		ln := textLine{y: group[0].Y, size: fontSize(group[0])}
		ln.words = mergeWords(group)
		if len(ln.words) > 0 {
			lines = append(lines, ln)
		}
	}
	return lines
}

func mergeWords(glyphs []Glyph) []word {
	var (
		words []word
		cur   *word
	)
	for _, g := range glyphs {
		size := fontSize(g)
		if strings.TrimFunc(g.S, unicode.IsSpace) == "" {
			cur = nil
			continue
		}
		if cur != nil && g.X-cur.x1 <= wordGap*size {
			cur.text += g.S
			cur.x1 = math.Max(cur.x1, g.X+g.W)
			continue
		}
		words = append(words, word{
			text: strings.TrimSpace(g.S),
			x0:   g.X,
			x1:   g.X + g.W,
			size: size,
		})
		cur = &words[len(words)-1]
	}
	return words
}

func fontSize(g Glyph) float64 {
	if g.FontSize < minFontSize {
		return minFontSize
	}
	return g.FontSize
}

// pageText renders the page as text lines, top to bottom.
func pageText(glyphs []Glyph) string {
	lines := buildLines(glyphs)
	out := make([]string, len(lines))
	for i, ln := range lines {
		out[i] = ln.text()
	}
	return strings.Join(out, "\n")
}
