package insights

import (
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
	"github.com/FACorreiaa/mpesa-insights/pkg/money"
)

// extreme tracks a running minimum or maximum that may be unset.
type extreme struct {
	value decimal.Decimal
	set   bool
}

func (e *extreme) min(v decimal.Decimal) {
	if !e.set || v.LessThan(e.value) {
		e.value, e.set = v, true
	}
}

func (e *extreme) max(v decimal.Decimal) {
	if !e.set || v.GreaterThan(e.value) {
		e.value, e.set = v, true
	}
}

func (e extreme) amount() *money.Amount {
	if !e.set {
		return nil
	}
	a := money.KESAmount(e.value)
	return &a
}

func mean(sum decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(n))).Round(2)
}

// SummaryStats describe a filtered set of transactions. Amounts are the
// derived amount of each row.
type SummaryStats struct {
	TotalTransactions           int          `json:"total_transactions"`
	AverageTransactionsPerMonth float64      `json:"average_transactions_per_month"`
	TotalAmount                 money.Amount `json:"total_amount"`
	HighestAmount               money.Amount `json:"highest_amount"`
	MinimumAmount               money.Amount `json:"minimum_amount"`
	AverageAmount               money.Amount `json:"average_amount"`
}

// summarize computes SummaryStats over txs. Months are keyed by month name,
// so the same month of different years counts once; rows without a time do
// not contribute to the monthly average.
func summarize(txs []statement.Transaction) SummaryStats {
	var total decimal.Decimal
	var hi, lo extreme
	perMonth := make(map[string]int)
	for _, tx := range txs {
		a := tx.AmountOrZero()
		total = total.Add(a)
		hi.max(a)
		lo.min(a)
		if tx.MonthName != "" {
			perMonth[tx.MonthName]++
		}
	}

	s := SummaryStats{
		TotalTransactions: len(txs),
		TotalAmount:       money.KESAmount(total),
		HighestAmount:     money.KESAmount(hi.value),
		MinimumAmount:     money.KESAmount(lo.value),
		AverageAmount:     money.KESAmount(mean(total, len(txs))),
	}
	if len(perMonth) > 0 {
		counted := 0
		for _, n := range perMonth {
			counted += n
		}
		s.AverageTransactionsPerMonth = float64(counted) / float64(len(perMonth))
	}
	return s
}

// filter returns the transactions keep accepts.
func filter(txs []statement.Transaction, keep func(statement.Transaction) bool) []statement.Transaction {
	var out []statement.Transaction
	for _, tx := range txs {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// summaryOf filters txs and summarizes the rest, or reports no data with
// what as the subject.
func summaryOf(txs []statement.Transaction, what string, keep func(statement.Transaction) bool) (any, error) {
	matched := filter(txs, keep)
	if len(matched) == 0 {
		return nil, noData("no %s in this statement", what)
	}
	return summarize(matched), nil
}
