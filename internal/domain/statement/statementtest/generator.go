// Package statementtest generates realistic M-Pesa ledgers for tests.
package statementtest

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

// Header is the ledger header in statement order.
var Header = []string{
	statement.ColReceiptNo,
	statement.ColCompletionTime,
	statement.ColDetails,
	statement.ColTransactionStatus,
	statement.ColPaidIn,
	statement.ColWithdrawn,
	statement.ColBalance,
}

// Row is one raw ledger line, tagged for gocsv.
type Row struct {
	ReceiptNo      string `csv:"Receipt No."`
	CompletionTime string `csv:"Completion Time"`
	Details        string `csv:"Details"`
	Status         string `csv:"Transaction Status"`
	PaidIn         string `csv:"Paid In"`
	Withdrawn      string `csv:"Withdrawn"`
	Balance        string `csv:"Balance"`
}

// Cells returns the row in Header order.
func (r Row) Cells() []string {
	return []string{r.ReceiptNo, r.CompletionTime, r.Details, r.Status, r.PaidIn, r.Withdrawn, r.Balance}
}

// Generator builds ledgers using gofakeit.
type Generator struct {
	faker   *gofakeit.Faker
	start   time.Time
	balance decimal.Decimal
}

// New creates a generator with a fixed seed so tests are reproducible.
func New(seed int64) *Generator {
	return &Generator{
		faker:   gofakeit.New(seed),
		start:   time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		balance: decimal.NewFromInt(5000),
	}
}

// ReceiptNo returns a 10 character receipt identifier.
func (g *Generator) ReceiptNo() string {
	return g.faker.Regex("[A-Z]{3}[0-9][A-Z0-9]{6}")
}

// Phone returns a masked Safaricom style number.
func (g *Generator) Phone() string {
	return fmt.Sprintf("07%02d******%03d", g.faker.Number(0, 99), g.faker.Number(0, 999))
}

// Name returns an upper-cased customer name.
func (g *Generator) Name() string {
	return strings.ToUpper(g.faker.FirstName() + " " + g.faker.LastName())
}

func (g *Generator) timestamp() time.Time {
	return g.faker.DateRange(g.start, g.start.AddDate(0, 3, 0)).Truncate(time.Second)
}

func (g *Generator) amount(min, max float64) decimal.Decimal {
	return decimal.NewFromFloat(g.faker.Float64Range(min, max)).Round(0)
}

// Credit returns a completed row paying money in.
func (g *Generator) Credit(details string, min, max float64) Row {
	amt := g.amount(min, max)
	g.balance = g.balance.Add(amt)
	return g.row(details, FormatAmount(amt), "")
}

// Debit returns a completed row paying money out. Withdrawals are printed
// negative, as on the statement.
func (g *Generator) Debit(details string, min, max float64) Row {
	amt := g.amount(min, max)
	g.balance = g.balance.Sub(amt)
	return g.row(details, "", FormatAmount(amt.Neg()))
}

func (g *Generator) row(details, paidIn, withdrawn string) Row {
	return Row{
		ReceiptNo:      g.ReceiptNo(),
		CompletionTime: g.timestamp().Format("2006-01-02 15:04:05"),
		Details:        details,
		Status:         "Completed",
		PaidIn:         paidIn,
		Withdrawn:      withdrawn,
		Balance:        FormatAmount(g.balance),
	}
}

// SendMoney returns a "Customer Transfer to" debit.
func (g *Generator) SendMoney() Row {
	return g.Debit(fmt.Sprintf("Customer Transfer to %s - %s", g.Phone(), g.Name()), 50, 5000)
}

// PayBill returns a "Pay Bill Online" debit to the given paybill.
func (g *Generator) PayBill(paybill, name string) Row {
	return g.Debit(fmt.Sprintf("Pay Bill Online to %s - %s Acc. %d", paybill, name, g.faker.Number(1000, 99999)), 100, 3000)
}

// Till returns a "Merchant Payment" debit.
func (g *Generator) Till(name string) Row {
	return g.Debit(fmt.Sprintf("Merchant Payment to %d - %s", g.faker.Number(100000, 999999), name), 50, 2000)
}

// Received returns a "Funds received from" credit.
func (g *Generator) Received() Row {
	return g.Credit(fmt.Sprintf("Funds received from %s - %s", g.Phone(), g.Name()), 100, 10000)
}

// Charge returns a transfer charge debit.
func (g *Generator) Charge() Row {
	return g.Debit("Customer Transfer of Funds Charge", 10, 60)
}

// Mixed returns n rows drawn from the common transaction kinds.
func (g *Generator) Mixed(n int) []Row {
	rows := make([]Row, 0, n)
	for i := 0; i < n; i++ {
		switch g.faker.Number(0, 4) {
		case 0:
			rows = append(rows, g.SendMoney())
		case 1:
			rows = append(rows, g.PayBill("888880", "KPLC PREPAID"))
		case 2:
			rows = append(rows, g.Till(g.faker.RandomString([]string{"NAIVAS", "QUICK MART", "SHELL KAREN"})))
		case 3:
			rows = append(rows, g.Received())
		default:
			rows = append(rows, g.Charge())
		}
	}
	return rows
}

// Table converts rows into a raw ledger table.
func Table(rows []Row) *statement.RawTable {
	out := &statement.RawTable{Header: append([]string(nil), Header...)}
	for _, r := range rows {
		out.Rows = append(out.Rows, r.Cells())
	}
	return out
}

// CSV renders rows as a statement CSV export.
func CSV(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	if err := gocsv.Marshal(rows, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FormatAmount renders an amount with thousands separators and two decimals.
func FormatAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	out := b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}
