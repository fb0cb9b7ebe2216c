package insights

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
	"github.com/FACorreiaa/mpesa-insights/pkg/money"
)

const topCounterpartyLimit = 10

// counterpartyTypes are the transaction types top-counterparties accepts.
var counterpartyTypes = []string{
	"Pay Bill",
	"Till No",
	"Send Money",
	"Customer Deposit",
	"Cash Withdrawal",
	"Received Money",
}

// TypeTotal is the volume of one transaction type.
type TypeTotal struct {
	Type   string       `json:"type"`
	Count  int          `json:"count"`
	Amount money.Amount `json:"total_amount"`
}

func transactionTypes(txs []statement.Transaction, _ string) (any, error) {
	index := make(map[string]int)
	var out []TypeTotal
	var sums []decimal.Decimal
	for _, tx := range txs {
		i, ok := index[tx.TransactionType]
		if !ok {
			i = len(out)
			index[tx.TransactionType] = i
			out = append(out, TypeTotal{Type: tx.TransactionType})
			sums = append(sums, decimal.Zero)
		}
		out[i].Count++
		sums[i] = sums[i].Add(tx.AmountOrZero())
	}
	for i := range out {
		out[i].Amount = money.KESAmount(sums[i])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

// Totals are the statement-wide money flows.
type Totals struct {
	Received   money.Amount `json:"total_received"`
	Withdrawn  money.Amount `json:"total_withdrawn"`
	Transacted money.Amount `json:"total_transacted"`
}

func transactionTotals(txs []statement.Transaction, _ string) (any, error) {
	var in, out decimal.Decimal
	for _, tx := range txs {
		in = in.Add(tx.PaidIn)
		out = out.Add(tx.Withdrawn)
	}
	return Totals{
		Received:   money.KESAmount(in),
		Withdrawn:  money.KESAmount(out),
		Transacted: money.KESAmount(in.Add(out)),
	}, nil
}

// Counts are the number of non-zero withdrawals and deposits.
type Counts struct {
	Withdrawals int `json:"withdrawals"`
	Deposits    int `json:"deposits"`
	Total       int `json:"total"`
}

func transactionCounts(txs []statement.Transaction, _ string) (any, error) {
	var c Counts
	for _, tx := range txs {
		if !tx.Withdrawn.IsZero() {
			c.Withdrawals++
		}
		if !tx.PaidIn.IsZero() {
			c.Deposits++
		}
	}
	c.Total = c.Withdrawals + c.Deposits
	return c, nil
}

// Extremes are the largest and smallest movements. The lowest deposit and
// withdrawal ignore zero cells; they are nil when no such movement exists.
type Extremes struct {
	TopDeposit       money.Amount  `json:"top_deposit"`
	LowestDeposit    *money.Amount `json:"lowest_deposit"`
	TopWithdrawal    money.Amount  `json:"top_withdrawal"`
	LowestWithdrawal *money.Amount `json:"lowest_withdrawal"`
	MinTransacted    *money.Amount `json:"min_transacted"`
	MaxTransacted    money.Amount  `json:"max_transacted"`
}

func transactionExtremes(txs []statement.Transaction, _ string) (any, error) {
	var topIn, topOut decimal.Decimal
	var lowIn, lowOut extreme
	for _, tx := range txs {
		topIn = decimal.Max(topIn, tx.PaidIn)
		topOut = decimal.Max(topOut, tx.Withdrawn)
		if !tx.PaidIn.IsZero() {
			lowIn.min(tx.PaidIn)
		}
		if !tx.Withdrawn.IsZero() {
			lowOut.min(tx.Withdrawn)
		}
	}

	e := Extremes{
		TopDeposit:       money.KESAmount(topIn),
		LowestDeposit:    lowIn.amount(),
		TopWithdrawal:    money.KESAmount(topOut),
		LowestWithdrawal: lowOut.amount(),
		MaxTransacted:    money.KESAmount(decimal.Max(topIn, topOut)),
	}
	var low extreme
	if lowIn.set {
		low.min(lowIn.value)
	}
	if lowOut.set {
		low.min(lowOut.value)
	}
	e.MinTransacted = low.amount()
	return e, nil
}

// CounterpartyTotal is the activity with one counterparty. Amount is the sum
// of amounts, except for Pay Bill where it is the largest single payment.
type CounterpartyTotal struct {
	Name      string       `json:"name"`
	Number    string       `json:"number"`
	Count     int          `json:"count"`
	Amount    money.Amount `json:"amount"`
	Aggregate string       `json:"aggregate"`
}

// TopCounterparties is the busiest counterparties of one type.
type TopCounterparties struct {
	Type           string              `json:"type"`
	Counterparties []CounterpartyTotal `json:"counterparties"`
}

func topCounterparties(txs []statement.Transaction, txType string) (any, error) {
	type key struct{ name, number string }
	type acc struct {
		key
		count  int
		amount decimal.Decimal
	}

	useMax := txType == "Pay Bill"
	index := make(map[key]int)
	var groups []acc
	for _, tx := range txs {
		if tx.TransactionType != txType {
			continue
		}
		k := key{name: tx.CounterpartyName}
		if tx.CounterpartyNumber != nil {
			k.number = *tx.CounterpartyNumber
		}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, acc{key: k})
		}
		g := &groups[i]
		g.count++
		if useMax {
			g.amount = decimal.Max(g.amount, tx.AmountOrZero())
		} else {
			g.amount = g.amount.Add(tx.AmountOrZero())
		}
	}
	if len(groups) == 0 {
		return nil, noData("no %s transactions in this statement", txType)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].count != groups[j].count {
			return groups[i].count > groups[j].count
		}
		return groups[i].amount.GreaterThan(groups[j].amount)
	})
	if len(groups) > topCounterpartyLimit {
		groups = groups[:topCounterpartyLimit]
	}

	aggregate := "sum"
	if useMax {
		aggregate = "max"
	}
	out := TopCounterparties{Type: txType, Counterparties: make([]CounterpartyTotal, len(groups))}
	for i, g := range groups {
		out.Counterparties[i] = CounterpartyTotal{
			Name:      g.name,
			Number:    g.number,
			Count:     g.count,
			Amount:    money.KESAmount(g.amount),
			Aggregate: aggregate,
		}
	}
	return out, nil
}

// DayActivity is the activity on one weekday.
type DayActivity struct {
	Day        string       `json:"day"`
	Count      int          `json:"count"`
	MeanAmount money.Amount `json:"mean_amount"`
}

func byDay(txs []statement.Transaction, _ string) (any, error) {
	var counts [7]int
	var sums [7]decimal.Decimal
	timed := 0
	for _, tx := range txs {
		if !tx.HasTime() {
			continue
		}
		d := tx.CompletionTime.Weekday()
		counts[d]++
		sums[d] = sums[d].Add(tx.AmountOrZero())
		timed++
	}
	if timed == 0 {
		return nil, noData("no transactions with a completion time")
	}

	// Monday first.
	out := make([]DayActivity, 0, 7)
	for i := 1; i <= 7; i++ {
		d := time.Weekday(i % 7)
		if counts[d] == 0 {
			continue
		}
		out = append(out, DayActivity{
			Day:        d.String(),
			Count:      counts[d],
			MeanAmount: money.KESAmount(mean(sums[d], counts[d])),
		})
	}
	return out, nil
}

// HourActivity is the activity within one hour of the day.
type HourActivity struct {
	Hour       int          `json:"hour"`
	Count      int          `json:"count"`
	MeanAmount money.Amount `json:"mean_amount"`
}

func byHour(txs []statement.Transaction, _ string) (any, error) {
	var counts [24]int
	var sums [24]decimal.Decimal
	timed := 0
	for _, tx := range txs {
		if !tx.HasTime() {
			continue
		}
		h := tx.CompletionTime.Hour()
		counts[h]++
		sums[h] = sums[h].Add(tx.AmountOrZero())
		timed++
	}
	if timed == 0 {
		return nil, noData("no transactions with a completion time")
	}

	var out []HourActivity
	for h := range counts {
		if counts[h] == 0 {
			continue
		}
		out = append(out, HourActivity{
			Hour:       h,
			Count:      counts[h],
			MeanAmount: money.KESAmount(mean(sums[h], counts[h])),
		})
	}
	return out, nil
}
