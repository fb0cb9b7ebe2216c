package categorization

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/import/normalizer"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement/statementtest"
)

// TestClassifyGeneratedLedger runs generated ledgers through normalization
// and classification.
func TestClassifyGeneratedLedger(t *testing.T) {
	n := normalizer.NewNormalizer(slog.New(slog.NewTextHandler(io.Discard, nil))).WithLocation(time.UTC)
	svc := NewService(nil)

	gen := statementtest.New(7)
	rows := gen.Mixed(200)
	rows = append(rows, gen.Charge(), gen.Charge())

	normalized, err := n.Normalize(context.Background(), statementtest.Table(rows))
	require.NoError(t, err)

	res := svc.ClassifyAll(normalized.Transactions)

	t.Run("every kept row has a type", func(t *testing.T) {
		for _, tx := range res.Transactions {
			assert.NotEmpty(t, tx.TransactionType)
			assert.NotEqual(t, statement.TypeMpesaCharges, tx.TransactionType)
		}
	})

	t.Run("charges are accounted for", func(t *testing.T) {
		assert.GreaterOrEqual(t, res.ChargesDropped, 2)
		assert.Equal(t, len(normalized.Transactions), len(res.Transactions)+res.ChargesDropped)
	})

	t.Run("type counts add up", func(t *testing.T) {
		total := 0
		for _, c := range res.ByType {
			total += c
		}
		assert.Equal(t, len(res.Transactions), total)
	})
}

func BenchmarkService_ClassifyAll(b *testing.B) {
	svc := NewService(nil)
	gen := statementtest.New(1)

	rows := gen.Mixed(1000)
	in := make([]statement.Transaction, len(rows))
	for i, r := range rows {
		in[i] = statement.Transaction{Details: r.Details}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		svc.ClassifyAll(in)
	}
}
