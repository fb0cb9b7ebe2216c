// Package statement holds the canonical M-Pesa statement model shared by the
// ingestion pipeline, the session store and the analytics layer.
package statement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Column labels as printed in the M-Pesa statement ledger.
const (
	ColReceiptNo         = "Receipt No."
	ColCompletionTime    = "Completion Time"
	ColDetails           = "Details"
	ColTransactionStatus = "Transaction Status"
	ColPaidIn            = "Paid In"
	ColWithdrawn         = "Withdrawn"
	ColBalance           = "Balance"
)

// NotFound is the sentinel used when identity fields cannot be extracted.
const NotFound = "Not Found"

// Transaction types referenced outside the rule table.
const (
	TypeOther        = "Other"
	TypeMpesaCharges = "Mpesa Charges"
)

// Save/spend labels.
const (
	LabelSave  = "save"
	LabelSpend = "spend"
)

// RawTable is the ledger as extracted from the document, before any cleaning.
type RawTable struct {
	Header []string
	Rows   [][]string
}

// Len returns the number of data rows.
func (t *RawTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Append concatenates another table onto t, aligning cells by column name.
// Columns only present in other are added; cells absent from a row are empty.
func (t *RawTable) Append(other *RawTable) {
	if other == nil || len(other.Header) == 0 {
		return
	}

	index := make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		index[h] = i
	}

	added := 0
	for _, h := range other.Header {
		if _, ok := index[h]; !ok {
			index[h] = len(t.Header)
			t.Header = append(t.Header, h)
			added++
		}
	}
	if added > 0 {
		for i := range t.Rows {
			t.Rows[i] = append(t.Rows[i], make([]string, added)...)
		}
	}

	for _, row := range other.Rows {
		out := make([]string, len(t.Header))
		for j, h := range other.Header {
			if j < len(row) {
				out[index[h]] = row[j]
			}
		}
		t.Rows = append(t.Rows, out)
	}
}

// Transaction is one normalized, classified ledger entry.
type Transaction struct {
	ReceiptNo          string              `json:"receipt_no"`
	CompletionTime     *time.Time          `json:"completion_time"`
	Details            string              `json:"details"`
	PaidIn             decimal.Decimal     `json:"paid_in"`
	Withdrawn          decimal.Decimal     `json:"withdrawn"`
	Balance            decimal.Decimal     `json:"balance"`
	Amount             decimal.NullDecimal `json:"amount"`
	TransactionType    string              `json:"transaction_type"`
	MonthName          string              `json:"month_name,omitempty"`
	DayName            string              `json:"day_name,omitempty"`
	Hour               *int                `json:"hour"`
	CounterpartyName   string              `json:"counterparty_name"`
	CounterpartyNumber *string             `json:"counterparty_number"`
	SaveOrSpend        string              `json:"save_or_spend"`
	Extras             map[string]string   `json:"extras,omitempty"`
}

// HasTime reports whether the completion time was parsed.
func (t Transaction) HasTime() bool {
	return t.CompletionTime != nil
}

// AmountOrZero returns the derived amount, treating null as zero.
func (t Transaction) AmountOrZero() decimal.Decimal {
	if !t.Amount.Valid {
		return decimal.Zero
	}
	return t.Amount.Decimal
}

// SourceKind identifies how a statement was delivered.
type SourceKind string

const (
	SourcePDF SourceKind = "pdf"
	SourceCSV SourceKind = "csv"
)

// Source describes the uploaded document.
type Source struct {
	Filename string     `json:"filename"`
	Kind     SourceKind `json:"kind"`
	Size     int64      `json:"size"`
}

// Statement is the result of one successful ingestion. It is never mutated
// after being committed to a session.
type Statement struct {
	CustomerName string        `json:"customer_name"`
	MobileNumber string        `json:"mobile_number"`
	Source       Source        `json:"source"`
	Fingerprint  string        `json:"fingerprint"`
	Pages        int           `json:"pages"`
	Transactions []Transaction `json:"transactions"`
	Warnings     []string      `json:"warnings,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Len returns the number of transactions, tolerating a nil statement.
func (s *Statement) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Transactions)
}

// IsEmpty reports whether there is nothing to analyze.
func (s *Statement) IsEmpty() bool {
	return s.Len() == 0
}

// Period returns the earliest and latest parsed completion times.
func (s *Statement) Period() (from, to *time.Time) {
	if s == nil {
		return nil, nil
	}
	for i := range s.Transactions {
		ts := s.Transactions[i].CompletionTime
		if ts == nil {
			continue
		}
		if from == nil || ts.Before(*from) {
			from = ts
		}
		if to == nil || ts.After(*to) {
			to = ts
		}
	}
	return from, to
}
