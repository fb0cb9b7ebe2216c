package insights

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/features"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
	"github.com/FACorreiaa/mpesa-insights/pkg/money"
)

// bettingNumbers are the paybills of the major Kenyan bookmakers.
var bettingNumbers = map[string]bool{
	"4097371": true,
	"290290":  true,
	"290680":  true,
	"955100":  true,
}

var savingsPattern = regexp.MustCompile(`(?i)M-Shwari Lock Activate|SANLAM|M-Shwari Deposit`)

var merchants = features.NewMerchantSanitizer()

func counterpartyNumberIn(set map[string]bool) func(statement.Transaction) bool {
	return func(tx statement.Transaction) bool {
		if tx.CounterpartyNumber == nil {
			return false
		}
		return set[strings.TrimLeft(*tx.CounterpartyNumber, "0")]
	}
}

func betting(txs []statement.Transaction, _ string) (any, error) {
	return summaryOf(txs, "betting transactions", counterpartyNumberIn(bettingNumbers))
}

func savings(txs []statement.Transaction, _ string) (any, error) {
	return summaryOf(txs, "savings transactions", func(tx statement.Transaction) bool {
		return savingsPattern.MatchString(tx.Details)
	})
}

// MerchantTotal is the spend at one normalized merchant.
type MerchantTotal struct {
	Merchant string       `json:"merchant"`
	Count    int          `json:"count"`
	Amount   money.Amount `json:"amount"`
}

// ShoppingStats are supermarket summary stats with a per-chain breakdown.
type ShoppingStats struct {
	SummaryStats
	Merchants []MerchantTotal `json:"merchants"`
}

func shopping(txs []statement.Transaction, _ string) (any, error) {
	type acc struct {
		count  int
		amount decimal.Decimal
	}

	var matched []statement.Transaction
	byMerchant := make(map[string]*acc)
	for _, tx := range txs {
		info := merchants.Sanitize(tx.CounterpartyName)
		if info.Category != features.CategoryShopping {
			continue
		}
		matched = append(matched, tx)
		a, ok := byMerchant[info.NormalizedName]
		if !ok {
			a = &acc{}
			byMerchant[info.NormalizedName] = a
		}
		a.count++
		a.amount = a.amount.Add(tx.AmountOrZero())
	}
	if len(matched) == 0 {
		return nil, noData("no supermarket transactions in this statement")
	}

	out := ShoppingStats{SummaryStats: summarize(matched)}
	for name, a := range byMerchant {
		out.Merchants = append(out.Merchants, MerchantTotal{
			Merchant: name,
			Count:    a.count,
			Amount:   money.KESAmount(a.amount),
		})
	}
	sort.Slice(out.Merchants, func(i, j int) bool {
		if out.Merchants[i].Count != out.Merchants[j].Count {
			return out.Merchants[i].Count > out.Merchants[j].Count
		}
		return out.Merchants[i].Merchant < out.Merchants[j].Merchant
	})
	return out, nil
}
