package insights

import (
	"regexp"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
	"github.com/FACorreiaa/mpesa-insights/pkg/money"
)

const topBanksLimit = 5

// bankKeyword maps a spelling found in transaction details to the bank it
// refers to.
type bankKeyword struct {
	keyword string
	bank    string
	pattern *regexp.Regexp
}

func keyword(word, bank string) bankKeyword {
	return bankKeyword{
		keyword: word,
		bank:    bank,
		pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`),
	}
}

// bankKeywords covers the 29 banks licensed in Kenya. Order matters: the
// last keyword found in the details names the row's bank.
var bankKeywords = []bankKeyword{
	keyword("Kenya Commercial Bank", "KCB"),
	keyword("KCB", "KCB"),
	keyword("KCB Bank", "KCB"),
	keyword("Equity Bank Kenya", "Equity"),
	keyword("Equity Bank", "Equity"),
	keyword("Equity", "Equity"),
	keyword("Cooperative Bank of Kenya", "Co-op Bank"),
	keyword("Co-op Bank", "Co-op Bank"),
	keyword("Coop Bank", "Co-op Bank"),
	keyword("Absa Bank Kenya", "Absa"),
	keyword("Absa", "Absa"),
	keyword("Standard Chartered Bank Kenya", "StanChart"),
	keyword("Standard Chartered", "StanChart"),
	keyword("StanChart", "StanChart"),
	keyword("NCBA Bank Kenya", "NCBA"),
	keyword("NCBA", "NCBA"),
	keyword("Diamond Trust Bank Kenya", "DTB"),
	keyword("Diamond Trust Bank", "DTB"),
	keyword("DTB", "DTB"),
	keyword("I&M Bank Kenya", "I&M"),
	keyword("I&M Bank", "I&M"),
	keyword("I&M", "I&M"),
	keyword("Stanbic Bank Kenya", "Stanbic"),
	keyword("Stanbic", "Stanbic"),
	keyword("Family Bank Kenya", "Family Bank"),
	keyword("Family Bank", "Family Bank"),
	keyword("National Bank of Kenya", "National Bank"),
	keyword("National Bank", "National Bank"),
	keyword("NBK", "National Bank"),
	keyword("Bank of Africa Kenya", "Bank of Africa"),
	keyword("Bank of Africa", "Bank of Africa"),
	keyword("BOA", "Bank of Africa"),
	keyword("CitiBank Kenya", "CitiBank"),
	keyword("CitiBank", "CitiBank"),
	keyword("Citi", "CitiBank"),
	keyword("Housing Finance Group Kenya", "HF Group"),
	keyword("HF Group", "HF Group"),
	keyword("HF", "HF Group"),
	keyword("Prime Bank Kenya", "Prime Bank"),
	keyword("Prime Bank", "Prime Bank"),
	keyword("Spire Bank Kenya", "Spire Bank"),
	keyword("Spire Bank", "Spire Bank"),
	keyword("Gulf African Bank", "Gulf Bank"),
	keyword("Gulf Bank", "Gulf Bank"),
	keyword("Credit Bank Kenya", "Credit Bank"),
	keyword("Credit Bank", "Credit Bank"),
	keyword("First Community Bank", "First Community Bank"),
	keyword("FCB", "First Community Bank"),
	keyword("Victoria Commercial Bank", "Victoria Bank"),
	keyword("Victoria Bank", "Victoria Bank"),
	keyword("Consolidated Bank of Kenya", "Consolidated Bank"),
	keyword("Consolidated Bank", "Consolidated Bank"),
	keyword("SBM Bank Kenya", "SBM Bank Kenya"),
	keyword("SBM", "SBM Bank Kenya"),
	keyword("Ecobank Kenya", "Ecobank"),
	keyword("Ecobank", "Ecobank"),
	keyword("Guaranty Trust Bank Kenya", "GT Bank"),
	keyword("GT Bank", "GT Bank"),
	keyword("GTB", "GT Bank"),
	keyword("Sidian Bank Kenya", "Sidian Bank"),
	keyword("Sidian Bank", "Sidian Bank"),
	keyword("Mayfair CIB Bank Kenya", "Mayfair Bank"),
	keyword("Mayfair Bank", "Mayfair Bank"),
	keyword("UBA Kenya Bank", "UBA Kenya Bank"),
	keyword("United Bank for Africa", "UBA Kenya Bank"),
	keyword("UBA", "UBA Kenya Bank"),
	keyword("ABC Bank Kenya", "ABC Bank"),
	keyword("ABC Bank", "ABC Bank"),
	keyword("Transnational Bank Kenya", "Transnational Bank"),
	keyword("Transnational Bank", "Transnational Bank"),
}

// matchBank returns the last keyword found in details, or nil.
func matchBank(details string) *bankKeyword {
	var found *bankKeyword
	for i := range bankKeywords {
		if bankKeywords[i].pattern.MatchString(details) {
			found = &bankKeywords[i]
		}
	}
	return found
}

// BankTransaction is a transaction attributed to a bank keyword.
type BankTransaction struct {
	Bank string `json:"bank"`
	statement.Transaction
}

// BankActivity is every transaction that mentions a bank.
type BankActivity struct {
	Banks        []string          `json:"banks"`
	Count        int               `json:"count"`
	Transactions []BankTransaction `json:"transactions"`
}

func bankTransactions(txs []statement.Transaction) []BankTransaction {
	var out []BankTransaction
	for _, tx := range txs {
		if kw := matchBank(tx.Details); kw != nil {
			out = append(out, BankTransaction{Bank: kw.keyword, Transaction: tx})
		}
	}
	return out
}

func banks(txs []statement.Transaction, _ string) (any, error) {
	rows := bankTransactions(txs)
	if len(rows) == 0 {
		return nil, noData("no bank transactions in this statement")
	}

	seen := make(map[string]bool)
	var names []string
	for _, r := range rows {
		if !seen[r.Bank] {
			seen[r.Bank] = true
			names = append(names, r.Bank)
		}
	}
	return BankActivity{Banks: names, Count: len(rows), Transactions: rows}, nil
}

// BankFlow summarizes money moved in one direction through banks. The
// lowest amount and its bank ignore zero cells.
type BankFlow struct {
	Total       money.Amount  `json:"total"`
	Highest     money.Amount  `json:"highest"`
	Lowest      *money.Amount `json:"lowest"`
	HighestBank string        `json:"highest_bank"`
	LowestBank  string        `json:"lowest_bank,omitempty"`
}

func bankFlow(txs []statement.Transaction, side func(statement.Transaction) decimal.Decimal) (any, error) {
	rows := bankTransactions(txs)
	if len(rows) == 0 {
		return nil, noData("no bank transactions in this statement")
	}

	var f BankFlow
	var total decimal.Decimal
	var hi, lo extreme
	for _, r := range rows {
		v := side(r.Transaction)
		total = total.Add(v)
		if !hi.set || v.GreaterThan(hi.value) {
			f.HighestBank = r.Bank
		}
		hi.max(v)
		if v.IsZero() {
			continue
		}
		if !lo.set || v.LessThan(lo.value) {
			f.LowestBank = r.Bank
		}
		lo.min(v)
	}
	f.Total = money.KESAmount(total)
	f.Highest = money.KESAmount(hi.value)
	f.Lowest = lo.amount()
	return f, nil
}

func banksReceived(txs []statement.Transaction, _ string) (any, error) {
	return bankFlow(txs, func(tx statement.Transaction) decimal.Decimal { return tx.PaidIn })
}

func banksSent(txs []statement.Transaction, _ string) (any, error) {
	return bankFlow(txs, func(tx statement.Transaction) decimal.Decimal { return tx.Withdrawn })
}

// BankCount is the number of movements through one bank.
type BankCount struct {
	Bank  string `json:"bank"`
	Count int    `json:"count"`
}

func topBanks(txs []statement.Transaction, side func(statement.Transaction) decimal.Decimal, direction string) (any, error) {
	counts := make(map[string]int)
	for _, tx := range txs {
		if side(tx).IsZero() {
			continue
		}
		if kw := matchBank(tx.Details); kw != nil {
			counts[kw.bank]++
		}
	}
	if len(counts) == 0 {
		return nil, noData("no money %s through a bank", direction)
	}

	out := make([]BankCount, 0, len(counts))
	for bank, n := range counts {
		out = append(out, BankCount{Bank: bank, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Bank < out[j].Bank
	})
	if len(out) > topBanksLimit {
		out = out[:topBanksLimit]
	}
	return map[string][]BankCount{"top_banks": out}, nil
}

func topBanksReceived(txs []statement.Transaction, _ string) (any, error) {
	return topBanks(txs, func(tx statement.Transaction) decimal.Decimal { return tx.PaidIn }, "received")
}

func topBanksSent(txs []statement.Transaction, _ string) (any, error) {
	return topBanks(txs, func(tx statement.Transaction) decimal.Decimal { return tx.Withdrawn }, "sent")
}

// safaricomServices are Safaricom's financial products as they appear in
// details. As with banks, the last match wins.
var safaricomServices = []struct {
	label   string
	pattern *regexp.Regexp
}{
	{"MShwari", regexp.MustCompile(`(?i)M-Shwari`)},
	{"KCB Mpesa", regexp.MustCompile(`(?i)KCB M-Pesa`)},
	{"M-Pesa Fuliza", regexp.MustCompile(`(?i)Fuliza`)},
	{"Global M-Pesa", regexp.MustCompile(`(?i)M-Pesa Global`)},
	{"HustlerFund", regexp.MustCompile(`(?i)H-\s?Fund`)},
}

// ServiceUsage is the activity on one Safaricom financial service.
type ServiceUsage struct {
	Service   string       `json:"service"`
	Count     int          `json:"count"`
	PaidIn    money.Amount `json:"paid_in"`
	Withdrawn money.Amount `json:"withdrawn"`
}

func safaricomServiceUsage(txs []statement.Transaction, _ string) (any, error) {
	type acc struct {
		count         int
		in, withdrawn decimal.Decimal
	}
	usage := make([]acc, len(safaricomServices))
	total := 0
	for _, tx := range txs {
		match := -1
		for i, svc := range safaricomServices {
			if svc.pattern.MatchString(tx.Details) {
				match = i
			}
		}
		if match < 0 {
			continue
		}
		u := &usage[match]
		u.count++
		u.in = u.in.Add(tx.PaidIn)
		u.withdrawn = u.withdrawn.Add(tx.Withdrawn)
		total++
	}
	if total == 0 {
		return nil, noData("no Safaricom financial services in this statement")
	}

	var out []ServiceUsage
	for i, u := range usage {
		if u.count == 0 {
			continue
		}
		out = append(out, ServiceUsage{
			Service:   safaricomServices[i].label,
			Count:     u.count,
			PaidIn:    money.KESAmount(u.in),
			Withdrawn: money.KESAmount(u.withdrawn),
		})
	}
	return map[string]any{"count": total, "services": out}, nil
}

var mshwariPattern = regexp.MustCompile(`(?i)M-?Shwari`)

// LoanSummary describes borrowing and repayment on one loan product.
// Balance is reported for Fuliza only.
type LoanSummary struct {
	Count            int           `json:"total_loan_count"`
	HighestDisbursed money.Amount  `json:"highest_loan_disbursed"`
	HighestPaidBack  money.Amount  `json:"highest_loan_paid_back"`
	LastDisbursedAt  *time.Time    `json:"date_of_last_loan_disbursement"`
	LastRepaidAt     *time.Time    `json:"date_of_last_loan_repayment"`
	LastBorrowed     money.Amount  `json:"last_amount_borrowed"`
	LastPaidBack     money.Amount  `json:"last_amount_paid_back"`
	TotalDisbursed   money.Amount  `json:"total_loan_disbursed_amount"`
	TotalPaidBack    money.Amount  `json:"total_loan_paid_back_amount"`
	Balance          *money.Amount `json:"total_loan_balance,omitempty"`
}

// loanSide accumulates one of disbursements or repayments.
type loanSide struct {
	count   int
	total   decimal.Decimal
	highest decimal.Decimal
	lastAt  *time.Time
	last    decimal.Decimal
}

func (s *loanSide) add(tx statement.Transaction, v decimal.Decimal) {
	s.count++
	s.total = s.total.Add(v)
	s.highest = decimal.Max(s.highest, v)
	if tx.HasTime() && (s.lastAt == nil || tx.CompletionTime.After(*s.lastAt)) {
		s.lastAt = tx.CompletionTime
		s.last = v
	}
}

func loanSummary(txs []statement.Transaction, product, disbursed, repaid string, withBalance bool) (any, error) {
	var out, back loanSide
	for _, tx := range txs {
		switch tx.TransactionType {
		case disbursed:
			out.add(tx, tx.PaidIn)
		case repaid:
			back.add(tx, tx.Withdrawn)
		}
	}
	if out.count == 0 && back.count == 0 {
		return nil, noData("no %s loans in this statement", product)
	}

	s := LoanSummary{
		Count:            out.count,
		HighestDisbursed: money.KESAmount(out.highest),
		HighestPaidBack:  money.KESAmount(back.highest),
		LastDisbursedAt:  out.lastAt,
		LastRepaidAt:     back.lastAt,
		LastBorrowed:     money.KESAmount(out.last),
		LastPaidBack:     money.KESAmount(back.last),
		TotalDisbursed:   money.KESAmount(out.total),
		TotalPaidBack:    money.KESAmount(back.total),
	}
	if withBalance {
		b := money.KESAmount(out.total.Sub(back.total))
		s.Balance = &b
	}
	return s, nil
}

func mshwariLoans(txs []statement.Transaction, _ string) (any, error) {
	mshwari := filter(txs, func(tx statement.Transaction) bool {
		return mshwariPattern.MatchString(tx.Details)
	})
	return loanSummary(mshwari, "M-Shwari", "M-Shwari Loan", "M-Shwari Repayment", false)
}

func fulizaLoans(txs []statement.Transaction, _ string) (any, error) {
	return loanSummary(txs, "Fuliza", "Fuliza Loan", "Fuliza Loan Repayment", true)
}
