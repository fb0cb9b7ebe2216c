package creditscore

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

func credit(txType string, amount int64) statement.Transaction {
	return statement.Transaction{
		TransactionType: txType,
		PaidIn:          decimal.NewFromInt(amount),
		SaveOrSpend:     statement.LabelSpend,
	}
}

func debit(txType, label string, amount int64) statement.Transaction {
	return statement.Transaction{
		TransactionType: txType,
		Withdrawn:       decimal.NewFromInt(amount),
		SaveOrSpend:     label,
	}
}

func TestCompute(t *testing.T) {
	t.Run("saver without loans scores Good", func(t *testing.T) {
		res := Compute([]statement.Transaction{
			credit("Received Money", 1000),
			debit("Mshwari Deposit", statement.LabelSave, 1000),
		})

		assert.GreaterOrEqual(t, res.Score, 670)
		assert.Equal(t, 712, res.Score)
		assert.Equal(t, BandGood, res.Band)
		assert.Equal(t, 1.0, res.SubScores.PaymentHistory)
		assert.Equal(t, 1.0, res.SubScores.Savings)
	})

	t.Run("unpaid loans score Poor", func(t *testing.T) {
		res := Compute([]statement.Transaction{
			credit("Fuliza Loan", 500),
			credit("Fuliza Loan", 500),
		})

		assert.Equal(t, 410, res.Score)
		assert.Equal(t, BandPoor, res.Band)
		assert.Equal(t, 0.0, res.SubScores.PaymentHistory)
		assert.Equal(t, 0.0, res.SubScores.LoanDiscipline)
		assert.Equal(t, 2, res.Totals.LoanRequests)
	})

	t.Run("repayments count toward payment history and loan requests", func(t *testing.T) {
		res := Compute([]statement.Transaction{
			credit("Fuliza Loan", 1000),
			debit("Fuliza Loan Repayment", statement.LabelSpend, 300),
			credit("Received Money", 9000),
			credit("Hustler", 0),
		})

		assert.True(t, res.Totals.Loans.Equal(decimal.NewFromInt(1000)))
		assert.True(t, res.Totals.Repayments.Equal(decimal.NewFromInt(300)))
		assert.Equal(t, 3, res.Totals.LoanRequests)
		assert.InDelta(t, 1.0, res.SubScores.PaymentHistory, 1e-9)
		assert.InDelta(t, 0.25, res.SubScores.LoanDiscipline, 1e-9)
	})

	t.Run("empty statement stays in range", func(t *testing.T) {
		res := Compute(nil)
		assert.GreaterOrEqual(t, res.Score, MinScore)
		assert.LessOrEqual(t, res.Score, MaxScore)
		assert.Equal(t, 0, res.Totals.Transactions)
	})

	t.Run("overspending floors the ratio at zero", func(t *testing.T) {
		res := Compute([]statement.Transaction{
			credit("Received Money", 100),
			debit("Send Money", statement.LabelSpend, 5000),
		})
		assert.Equal(t, 0.0, res.SubScores.IncomeSpending)
	})

	t.Run("every sub-score is within the unit interval", func(t *testing.T) {
		res := Compute([]statement.Transaction{
			credit("Fuliza Loan", 100000),
			debit("Fuliza Loan Repayment", statement.LabelSpend, 1),
			debit("Mshwari Deposit", statement.LabelSave, 1000000),
		})
		for _, v := range []float64{
			res.SubScores.PaymentHistory,
			res.SubScores.IncomeSpending,
			res.SubScores.LoanDiscipline,
			res.SubScores.Savings,
			res.SubScores.Debt,
		} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	})
}

func TestScale(t *testing.T) {
	assert.Equal(t, MinScore, Scale(0))
	assert.Equal(t, MaxScore, Scale(1))
	assert.Equal(t, 712, Scale(0.75))
	assert.Equal(t, MinScore, Scale(-3))
	assert.Equal(t, MaxScore, Scale(7))
}

func TestBand(t *testing.T) {
	tests := []struct {
		score int
		band  string
	}{
		{850, BandExcellent},
		{800, BandExcellent},
		{799, BandVeryGood},
		{740, BandVeryGood},
		{739, BandGood},
		{670, BandGood},
		{669, BandFair},
		{580, BandFair},
		{579, BandPoor},
		{300, BandPoor},
	}

	for _, tt := range tests {
		t.Run(tt.band, func(t *testing.T) {
			require.Equal(t, tt.band, Band(tt.score))
		})
	}
}
