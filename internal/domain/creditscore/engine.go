// Package creditscore computes a FICO-like credit score from a statement's
// classified transactions.
package creditscore

import (
	"math"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

const (
	MinScore = 300
	MaxScore = 850

	scoreRange = MaxScore - MinScore
)

// Sub-score weights. They sum to 0.75, so the reachable maximum is below
// MaxScore.
const (
	WeightPaymentHistory = 0.25
	WeightIncomeSpending = 0.20
	WeightLoanDiscipline = 0.10
	WeightSavings        = 0.10
	WeightDebt           = 0.10
)

// Bands.
const (
	BandExcellent = "Excellent"
	BandVeryGood  = "Very Good"
	BandGood      = "Good"
	BandFair      = "Fair"
	BandPoor      = "Poor"
)

var (
	// Repayment types also contain "Fuliza Loan", so they count as loans too.
	loanPattern      = regexp.MustCompile(`(?i)Fuliza Loan|Hustler`)
	repaymentPattern = regexp.MustCompile(`(?i)Fuliza Loan Repayment|Hustler Repayment`)
)

// SubScores are the five components, each in [0, 1].
type SubScores struct {
	PaymentHistory float64 `json:"payment_history"`
	IncomeSpending float64 `json:"income_spending_ratio"`
	LoanDiscipline float64 `json:"loan_discipline"`
	Savings        float64 `json:"savings_ratio"`
	Debt           float64 `json:"debt_score"`
}

// Composite returns the weighted sum.
func (s SubScores) Composite() float64 {
	return s.PaymentHistory*WeightPaymentHistory +
		s.IncomeSpending*WeightIncomeSpending +
		s.LoanDiscipline*WeightLoanDiscipline +
		s.Savings*WeightSavings +
		s.Debt*WeightDebt
}

// Totals are the aggregates the sub-scores are computed from.
type Totals struct {
	Loans        decimal.Decimal `json:"total_loans"`
	Repayments   decimal.Decimal `json:"total_repayments"`
	Income       decimal.Decimal `json:"total_income"`
	Expense      decimal.Decimal `json:"total_expense"`
	Saved        decimal.Decimal `json:"total_saved"`
	LoanRequests int             `json:"loan_requests"`
	Transactions int             `json:"transactions"`
}

// Result is a computed score.
type Result struct {
	Score     int       `json:"score"`
	Band      string    `json:"band"`
	Composite float64   `json:"composite"`
	SubScores SubScores `json:"sub_scores"`
	Totals    Totals    `json:"totals"`
}

// Compute scores txs. It is a pure function of its input.
func Compute(txs []statement.Transaction) Result {
	totals := aggregate(txs)
	sub := subScores(totals)
	composite := sub.Composite()
	score := Scale(composite)

	return Result{
		Score:     score,
		Band:      Band(score),
		Composite: composite,
		SubScores: sub,
		Totals:    totals,
	}
}

func aggregate(txs []statement.Transaction) Totals {
	t := Totals{Transactions: len(txs)}
	for _, tx := range txs {
		t.Income = t.Income.Add(tx.PaidIn)

		switch tx.SaveOrSpend {
		case statement.LabelSave:
			t.Saved = t.Saved.Add(tx.Withdrawn)
		case statement.LabelSpend:
			t.Expense = t.Expense.Add(tx.Withdrawn)
		}

		if loanPattern.MatchString(tx.TransactionType) {
			t.Loans = t.Loans.Add(tx.PaidIn)
			t.LoanRequests++
		}
		if repaymentPattern.MatchString(tx.TransactionType) {
			t.Repayments = t.Repayments.Add(tx.Withdrawn)
		}
	}
	return t
}

func subScores(t Totals) SubScores {
	income := math.Max(t.Income.InexactFloat64(), 1)
	loans := t.Loans.InexactFloat64()
	repayments := t.Repayments.InexactFloat64()

	// Nothing borrowed means nothing owed.
	paymentHistory := 1.0
	if loans > 0 {
		paymentHistory = math.Min(1, repayments/(loans*0.3))
	}

	count := math.Max(float64(t.Transactions), 1)

	return SubScores{
		PaymentHistory: clamp01(paymentHistory),
		IncomeSpending: clamp01((income - t.Expense.InexactFloat64()) / income),
		LoanDiscipline: clamp01(1 - float64(t.LoanRequests)/count),
		Savings:        clamp01(t.Saved.InexactFloat64() / income),
		Debt:           clamp01(1 - math.Min(1, loans/income)),
	}
}

// Scale maps a composite in [0, 1] to an integer score, truncating and
// clamping to [MinScore, MaxScore].
func Scale(composite float64) int {
	if math.IsNaN(composite) {
		return MinScore
	}
	score := int(MinScore + composite*scoreRange)
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Band returns the qualitative band for score.
func Band(score int) string {
	switch {
	case score >= 800:
		return BandExcellent
	case score >= 740:
		return BandVeryGood
	case score >= 670:
		return BandGood
	case score >= 580:
		return BandFair
	default:
		return BandPoor
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
