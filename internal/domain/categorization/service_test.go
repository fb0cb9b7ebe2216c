package categorization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

func txs(details ...string) []statement.Transaction {
	out := make([]statement.Transaction, len(details))
	for i, d := range details {
		out[i] = statement.Transaction{Details: d}
	}
	return out
}

func TestService_ClassifyAll(t *testing.T) {
	svc := NewService(nil)

	in := txs(
		"Customer Transfer to 0722000000 - JOHN DOE",
		"Customer Transfer of Funds Charge",
		"Pay Bill Online to 888880 - KPLC PREPAID",
		"Pay Bill Charge",
		"Unmatched entry",
	)

	res := svc.ClassifyAll(in)

	t.Run("drops charge rows", func(t *testing.T) {
		require.Len(t, res.Transactions, 3)
		assert.Equal(t, 2, res.ChargesDropped)
		for _, tx := range res.Transactions {
			assert.NotEqual(t, statement.TypeMpesaCharges, tx.TransactionType)
		}
	})

	t.Run("unmatched rows are Other", func(t *testing.T) {
		assert.Equal(t, statement.TypeOther, res.Transactions[2].TransactionType)
	})

	t.Run("counts kept rows per type", func(t *testing.T) {
		assert.Equal(t, map[string]int{"Send Money": 1, "Pay Bill": 1, statement.TypeOther: 1}, res.ByType)
	})

	t.Run("is idempotent", func(t *testing.T) {
		again := svc.ClassifyAll(res.Transactions)
		assert.Equal(t, res.Transactions, again.Transactions)
		assert.Zero(t, again.ChargesDropped)
	})

	t.Run("input is not modified", func(t *testing.T) {
		assert.Empty(t, in[0].TransactionType)
	})
}

func TestService_CustomRules(t *testing.T) {
	svc := NewService([]Rule{{"SANLAM", "Savings"}})

	assert.Equal(t, "Savings", svc.Classify("Pay Bill to 123 - SANLAM UNIT TRUST"))
	assert.Equal(t, statement.TypeOther, svc.Classify("Customer Transfer to 0722000000 - JOHN"))
	assert.Equal(t, 1, svc.Engine().PatternCount())
}
