// Package normalizer cleans the raw statement ledger into canonical
// transactions. normalizer.go holds the ordered cleaning steps; each step is
// a pure function from one Frame to the next.
package normalizer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

// Derived calendar columns.
const (
	ColMonthName = "month_name"
	ColDayName   = "day_name"
	ColHour      = "hour"
)

const (
	completedStatus = "Completed"
	maxMissingRatio = 0.5
	defaultTZOffset = 3 * 60 * 60
	defaultTZName   = "EAT"
)

// timeLayouts are tried in order when parsing Completion Time.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"02/01/2006 15:04:05",
	"02-01-2006 15:04:05",
	"2006-01-02",
}

var amountColumns = []string{statement.ColPaidIn, statement.ColWithdrawn, statement.ColBalance}

// coreColumns are mapped onto Transaction fields; everything else is kept as
// an extra.
var coreColumns = map[string]bool{
	statement.ColReceiptNo:         true,
	statement.ColCompletionTime:    true,
	statement.ColDetails:           true,
	statement.ColTransactionStatus: true,
	statement.ColPaidIn:            true,
	statement.ColWithdrawn:         true,
	statement.ColBalance:           true,
	ColMonthName:                   true,
	ColDayName:                     true,
	ColHour:                        true,
}

// Step is one stage of the cleaning pipeline.
type Step struct {
	Name string
	Fn   func(Frame) (Frame, error)
}

// Result is the outcome of normalization.
type Result struct {
	Frame             Frame
	Transactions      []statement.Transaction
	RowsIn            int
	RowsCompleted     int
	DuplicatesRemoved int
	DroppedColumns    []string
	UntimedRows       int
}

// Normalizer runs the ordered cleaning steps over a raw ledger.
type Normalizer struct {
	location *time.Location
	logger   *slog.Logger
}

// NewNormalizer creates a normalizer that reads timestamps in East Africa Time.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	return &Normalizer{
		location: time.FixedZone(defaultTZName, defaultTZOffset),
		logger:   logger,
	}
}

// WithLocation overrides the zone used to read Completion Time.
func (n *Normalizer) WithLocation(loc *time.Location) *Normalizer {
	n.location = loc
	return n
}

// Steps returns the cleaning pipeline in execution order.
func (n *Normalizer) Steps(res *Result) []Step {
	return []Step{
		{"filter completed", FilterCompleted},
		{"coerce amounts", CoerceAmounts},
		{"strip details", StripDetails},
		{"parse completion time", func(f Frame) (Frame, error) { return ParseCompletionTime(f, n.location) }},
		{"drop sparse columns", func(f Frame) (Frame, error) {
			out, dropped, err := DropSparseColumns(f)
			res.DroppedColumns = dropped
			return out, err
		}},
		{"drop duplicates", func(f Frame) (Frame, error) {
			out := DropDuplicates(f)
			res.DuplicatesRemoved = f.Len() - out.Len()
			return out, nil
		}},
		{"clean column names", CleanColumnNames},
		{"drop status", DropStatus},
		{"absolute withdrawn", AbsWithdrawn},
		{"derive calendar", DeriveCalendar},
	}
}

// Normalize cleans raw into canonical transactions. Row-level problems are
// repaired in place; only structural problems return an error.
func (n *Normalizer) Normalize(ctx context.Context, raw *statement.RawTable) (*Result, error) {
	res := &Result{RowsIn: raw.Len()}
	frame := NewFrame(raw)

	for _, step := range n.Steps(res) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next, err := step.Fn(frame)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name, err)
		}
		if step.Name == "filter completed" {
			res.RowsCompleted = next.Len()
		}
		frame = next
	}

	res.Frame = frame
	res.Transactions = ToTransactions(frame)
	for _, tx := range res.Transactions {
		if !tx.HasTime() {
			res.UntimedRows++
		}
	}

	n.logger.Debug("ledger normalized",
		slog.Int("rows_in", res.RowsIn),
		slog.Int("rows_completed", res.RowsCompleted),
		slog.Int("duplicates_removed", res.DuplicatesRemoved),
		slog.Int("untimed_rows", res.UntimedRows),
		slog.Any("dropped_columns", res.DroppedColumns),
	)
	return res, nil
}

// FilterCompleted keeps rows whose Transaction Status is "Completed".
func FilterCompleted(f Frame) (Frame, error) {
	idx := f.index(statement.ColTransactionStatus)
	if idx < 0 {
		return f, &statement.SchemaError{Column: statement.ColTransactionStatus, Message: "column not found"}
	}

	status := f.cols[idx]
	keep := make([]int, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		if strings.TrimSpace(status.Cell(i)) == completedStatus {
			keep = append(keep, i)
		}
	}
	return f.take(keep), nil
}

// CoerceAmounts converts the amount columns to numbers, treating anything
// unparsable as zero, and types any other all-numeric columns as numeric.
func CoerceAmounts(f Frame) (Frame, error) {
	for _, name := range []string{statement.ColPaidIn, statement.ColWithdrawn} {
		if f.index(name) < 0 {
			return f, &statement.SchemaError{Column: name, Message: "column not found"}
		}
	}

	out := f
	for _, name := range amountColumns {
		idx := out.index(name)
		if idx < 0 {
			continue
		}
		src := out.cols[idx]
		col := Column{Name: src.Name, Kind: KindNumeric, Num: make([]float64, out.Len())}
		for i := 0; i < out.Len(); i++ {
			if v, ok := parseNumber(src.Cell(i)); ok {
				col.Num[i] = v
			}
		}
		out = out.with(idx, col)
	}

	for idx, src := range out.cols {
		if src.Kind != KindText || coreColumns[cleanName(src.Name)] {
			continue
		}
		if col, ok := numericColumn(src); ok {
			out = out.with(idx, col)
		}
	}
	return out, nil
}

// StripDetails replaces carriage returns left by wrapped table cells.
func StripDetails(f Frame) (Frame, error) {
	idx := f.index(statement.ColDetails)
	if idx < 0 {
		return f, &statement.SchemaError{Column: statement.ColDetails, Message: "column not found"}
	}

	src := f.cols[idx]
	col := Column{Name: src.Name, Kind: KindText, Text: make([]string, f.Len())}
	for i := 0; i < f.Len(); i++ {
		col.Text[i] = strings.ReplaceAll(src.Cell(i), "\r", " ")
	}
	return f.with(idx, col), nil
}

// ParseCompletionTime converts Completion Time to timestamps. Cells that do
// not parse become nil.
func ParseCompletionTime(f Frame, loc *time.Location) (Frame, error) {
	idx := f.index(statement.ColCompletionTime)
	if idx < 0 {
		return f, &statement.SchemaError{Column: statement.ColCompletionTime, Message: "column not found"}
	}

	src := f.cols[idx]
	col := Column{Name: src.Name, Kind: KindTime, Time: make([]*time.Time, f.Len())}
	for i := 0; i < f.Len(); i++ {
		col.Time[i] = parseTime(src.Cell(i), loc)
	}
	return f.with(idx, col), nil
}

// DropSparseColumns drops columns with more than half their cells missing
// and fills numeric gaps in the rest with the column mean.
func DropSparseColumns(f Frame) (Frame, []string, error) {
	if f.Len() == 0 {
		return f, nil, nil
	}

	var (
		dropped []string
		cols    = make([]Column, 0, len(f.cols))
	)
	for _, c := range f.cols {
		missing := 0
		for i := 0; i < f.Len(); i++ {
			if c.Missing(i) {
				missing++
			}
		}

		if float64(missing)/float64(f.Len()) > maxMissingRatio {
			dropped = append(dropped, c.Name)
			continue
		}
		if c.Kind == KindNumeric && missing > 0 {
			c = fillMean(c)
		}
		cols = append(cols, c)
	}

	out := Frame{cols: cols, rows: f.Len()}
	for _, required := range []string{statement.ColDetails, statement.ColCompletionTime} {
		if out.index(required) < 0 {
			return out, dropped, &statement.SchemaError{Column: required, Message: "more than half of the values are missing"}
		}
	}
	return out, dropped, nil
}

// DropDuplicates removes exact-duplicate rows, keeping the first occurrence.
func DropDuplicates(f Frame) Frame {
	seen := make(map[string]struct{}, f.Len())
	keep := make([]int, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		key := f.rowKey(i)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keep = append(keep, i)
	}
	if len(keep) == f.Len() {
		return f
	}
	return f.take(keep)
}

// CleanColumnNames strips embedded line breaks from column names.
func CleanColumnNames(f Frame) (Frame, error) {
	cols := make([]Column, len(f.cols))
	for i, c := range f.cols {
		c.Name = cleanName(c.Name)
		cols[i] = c
	}
	return Frame{cols: cols, rows: f.Len()}, nil
}

// DropStatus removes the Transaction Status column, which is constant after
// filtering.
func DropStatus(f Frame) (Frame, error) {
	idx := f.index(statement.ColTransactionStatus)
	if idx < 0 {
		return f, nil
	}
	return f.drop(idx), nil
}

// AbsWithdrawn removes the sign from withdrawals.
func AbsWithdrawn(f Frame) (Frame, error) {
	idx := f.index(statement.ColWithdrawn)
	if idx < 0 {
		return f, nil
	}

	src := f.cols[idx]
	col := Column{Name: src.Name, Kind: KindNumeric, Num: make([]float64, f.Len())}
	for i, v := range src.Num {
		col.Num[i] = math.Abs(v)
	}
	return f.with(idx, col), nil
}

// DeriveCalendar adds month, weekday and hour columns from Completion Time.
func DeriveCalendar(f Frame) (Frame, error) {
	idx := f.index(statement.ColCompletionTime)
	if idx < 0 {
		return f, &statement.SchemaError{Column: statement.ColCompletionTime, Message: "column not found"}
	}

	times := f.cols[idx].Time
	month := Column{Name: ColMonthName, Kind: KindText, Text: make([]string, f.Len())}
	day := Column{Name: ColDayName, Kind: KindText, Text: make([]string, f.Len())}
	hour := Column{Name: ColHour, Kind: KindNumeric, Num: make([]float64, f.Len())}
	for i, ts := range times {
		if ts == nil {
			hour.Num[i] = math.NaN()
			continue
		}
		month.Text[i] = ts.Month().String()
		day.Text[i] = ts.Weekday().String()
		hour.Num[i] = float64(ts.Hour())
	}

	return f.append(month).append(day).append(hour), nil
}

// ToTransactions maps a normalized frame onto canonical transactions. Amount
// and classification fields are filled by later stages.
func ToTransactions(f Frame) []statement.Transaction {
	get := func(name string) (Column, bool) { return f.Column(name) }

	receipt, hasReceipt := get(statement.ColReceiptNo)
	completion, _ := get(statement.ColCompletionTime)
	details, _ := get(statement.ColDetails)
	paidIn, _ := get(statement.ColPaidIn)
	withdrawn, _ := get(statement.ColWithdrawn)
	balance, hasBalance := get(statement.ColBalance)
	month, _ := get(ColMonthName)
	day, _ := get(ColDayName)
	hour, _ := get(ColHour)

	var extras []Column
	for _, c := range f.cols {
		if !coreColumns[c.Name] {
			extras = append(extras, c)
		}
	}

	txs := make([]statement.Transaction, f.Len())
	for i := range txs {
		tx := statement.Transaction{
			CompletionTime: completion.Time[i],
			Details:        details.Cell(i),
			PaidIn:         decimalAt(paidIn, i),
			Withdrawn:      decimalAt(withdrawn, i),
			MonthName:      month.Cell(i),
			DayName:        day.Cell(i),
		}
		if hasReceipt {
			tx.ReceiptNo = receipt.Cell(i)
		}
		if hasBalance {
			tx.Balance = decimalAt(balance, i)
		}
		if !math.IsNaN(hour.Num[i]) {
			h := int(hour.Num[i])
			tx.Hour = &h
		}
		if len(extras) > 0 {
			tx.Extras = make(map[string]string, len(extras))
			for _, c := range extras {
				tx.Extras[c.Name] = c.Cell(i)
			}
		}
		txs[i] = tx
	}
	return txs
}

func decimalAt(c Column, i int) decimal.Decimal {
	if c.Kind != KindNumeric || math.IsNaN(c.Num[i]) || math.IsInf(c.Num[i], 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(c.Num[i])
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// numericColumn converts a text column whose non-blank cells are all numbers.
func numericColumn(src Column) (Column, bool) {
	col := Column{Name: src.Name, Kind: KindNumeric, Num: make([]float64, len(src.Text))}
	values := 0
	for i, s := range src.Text {
		if strings.TrimSpace(s) == "" {
			col.Num[i] = math.NaN()
			continue
		}
		v, ok := parseNumber(s)
		if !ok {
			return Column{}, false
		}
		col.Num[i] = v
		values++
	}
	return col, values > 0
}

func fillMean(c Column) Column {
	var (
		sum float64
		n   int
	)
	for _, v := range c.Num {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return c
	}

	mean := sum / float64(n)
	out := Column{Name: c.Name, Kind: KindNumeric, Num: make([]float64, len(c.Num))}
	for i, v := range c.Num {
		if math.IsNaN(v) {
			v = mean
		}
		out.Num[i] = v
	}
	return out
}

func parseTime(s string, loc *time.Location) *time.Time {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &ts
		}
	}
	return nil
}
