// Package categorization assigns a transaction type to every ledger row
// from an ordered table of detail substrings.
package categorization

import (
	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

// Result is the outcome of classifying one statement.
type Result struct {
	Transactions []statement.Transaction
	// ChargesDropped counts rows removed because they were M-Pesa charges.
	ChargesDropped int
	// ByType counts kept rows per transaction type.
	ByType map[string]int
}

// Service classifies transactions with a rule engine.
type Service struct {
	engine *Engine
}

// NewService creates a classifier over the given rules. Nil rules select
// DefaultRules.
func NewService(rules []Rule) *Service {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Service{engine: NewEngine(rules)}
}

// Engine exposes the underlying matcher.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Classify labels a single details text. Unmatched text is "Other".
func (s *Service) Classify(details string) string {
	return s.engine.Label(details, statement.TypeOther)
}

// ClassifyAll returns copies of txs with TransactionType set and charge rows
// removed. Running it again over its own output changes nothing.
func (s *Service) ClassifyAll(txs []statement.Transaction) Result {
	details := make([]string, len(txs))
	for i, tx := range txs {
		details[i] = tx.Details
	}
	matches := s.engine.MatchBatch(details)

	res := Result{
		Transactions: make([]statement.Transaction, 0, len(txs)),
		ByType:       make(map[string]int),
	}
	for i, tx := range txs {
		tx.TransactionType = statement.TypeOther
		if matches[i] != nil {
			tx.TransactionType = matches[i].Label
		}
		if tx.TransactionType == statement.TypeMpesaCharges {
			res.ChargesDropped++
			continue
		}
		res.ByType[tx.TransactionType]++
		res.Transactions = append(res.Transactions, tx)
	}
	return res
}
