// Package features derives per-transaction fields used by the analytics
// layer: net amount, counterparty name and number, and the save/spend label.
package features

import (
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

const minCounterpartyNameLen = 3

var (
	// counterpartyNamePattern captures the words after a leading number such
	// as a phone, till or masked account.
	counterpartyNamePattern = regexp.MustCompile(`\d[\d*#&-]*\s([a-zA-Z\s-]+)`)

	// paybillNumberPattern captures "to 123456 - " style recipients.
	paybillNumberPattern = regexp.MustCompile(`to\s+(\d+)\s*-\s*`)

	// maskedNumberPattern matches masked account fragments or single digits;
	// all matches are concatenated.
	maskedNumberPattern = regexp.MustCompile(`[0-9]\*{6}\d{3}|[0-9]`)

	savingsPattern = regexp.MustCompile(`(?i)M-Shwari Lock Deposit|Saving|savings|mmf|M-shwari Deposit|Sanlam`)
)

// Deriver fills derived fields on classified transactions.
type Deriver struct{}

// NewDeriver creates a new feature deriver.
func NewDeriver() *Deriver {
	return &Deriver{}
}

// Derive returns copies of txs with derived fields populated.
func (d *Deriver) Derive(txs []statement.Transaction) []statement.Transaction {
	out := make([]statement.Transaction, len(txs))
	for i, tx := range txs {
		tx.Amount = NetAmount(tx.PaidIn, tx.Withdrawn)
		tx.CounterpartyName = CounterpartyName(tx.Details)
		tx.CounterpartyNumber = CounterpartyNumber(tx.Details)
		tx.SaveOrSpend = SaveOrSpend(tx.Details)
		out[i] = tx
	}
	return out
}

// NetAmount returns paid in plus withdrawn. A non-finite sum is reported as
// null rather than as a number.
func NetAmount(paidIn, withdrawn decimal.Decimal) decimal.NullDecimal {
	sum := paidIn.Add(withdrawn)
	if f, _ := sum.Float64(); math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: sum, Valid: true}
}

// CounterpartyName extracts the party named after the leading number in
// details. Only surrounding whitespace is trimmed, so a "0722000000 - Name"
// recipient keeps its separator ("- Name"); display code cleans it with
// MerchantSanitizer. Captures of 3 characters or fewer fall back to the full
// details text.
func CounterpartyName(details string) string {
	m := counterpartyNamePattern.FindStringSubmatch(details)
	if m == nil {
		return details
	}

	name := strings.TrimSpace(m[1])
	if len(name) <= minCounterpartyNameLen {
		return details
	}
	return name
}

// CounterpartyNumber extracts the recipient number, preferring the
// "to <number> -" form over masked digit sequences.
func CounterpartyNumber(details string) *string {
	if m := paybillNumberPattern.FindStringSubmatch(details); m != nil {
		return &m[1]
	}

	matches := maskedNumberPattern.FindAllString(details, -1)
	if len(matches) == 0 {
		return nil
	}
	number := strings.Join(matches, "")
	return &number
}

// SaveOrSpend labels savings movements.
func SaveOrSpend(details string) string {
	if savingsPattern.MatchString(details) {
		return statement.LabelSave
	}
	return statement.LabelSpend
}
