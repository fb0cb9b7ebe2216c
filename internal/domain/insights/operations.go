package insights

import (
	"fmt"
	"strings"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/creditscore"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

// Operation groups.
const (
	GroupTransactions = "transactions"
	GroupInstitutions = "institutions"
	GroupLifestyle    = "lifestyle"
	GroupUtility      = "utility"
	GroupCredit       = "credit"
)

type opFunc func(txs []statement.Transaction, param string) (any, error)

// Operation is one named analytics computation. Param names the query
// parameter it reads, if any, and Values lists what that parameter accepts.
type Operation struct {
	Name   string   `json:"name"`
	Group  string   `json:"group"`
	Param  string   `json:"param,omitempty"`
	Values []string `json:"values,omitempty"`

	run opFunc
}

// normalize maps param onto the canonical spelling of an accepted value.
// Operations without a parameter ignore it.
func (op Operation) normalize(param string) (string, error) {
	if op.Param == "" {
		return "", nil
	}
	param = strings.TrimSpace(param)
	for _, v := range op.Values {
		if strings.EqualFold(v, param) {
			return v, nil
		}
	}
	return "", &statement.InvalidInputError{
		Message: fmt.Sprintf("%s must be one of: %s", op.Param, strings.Join(op.Values, ", ")),
	}
}

func registry() []Operation {
	return []Operation{
		{Name: "types", Group: GroupTransactions, run: transactionTypes},
		{Name: "totals", Group: GroupTransactions, run: transactionTotals},
		{Name: "counts", Group: GroupTransactions, run: transactionCounts},
		{Name: "extremes", Group: GroupTransactions, run: transactionExtremes},
		{Name: "top-counterparties", Group: GroupTransactions, Param: "type", Values: counterpartyTypes, run: topCounterparties},
		{Name: "by-day", Group: GroupTransactions, run: byDay},
		{Name: "by-hour", Group: GroupTransactions, run: byHour},

		{Name: "banks", Group: GroupInstitutions, run: banks},
		{Name: "banks-received", Group: GroupInstitutions, run: banksReceived},
		{Name: "banks-sent", Group: GroupInstitutions, run: banksSent},
		{Name: "top-banks-received", Group: GroupInstitutions, run: topBanksReceived},
		{Name: "top-banks-sent", Group: GroupInstitutions, run: topBanksSent},
		{Name: "safaricom-services", Group: GroupInstitutions, run: safaricomServiceUsage},
		{Name: "mshwari-loans", Group: GroupInstitutions, run: mshwariLoans},
		{Name: "fuliza-loans", Group: GroupInstitutions, run: fulizaLoans},

		{Name: "betting", Group: GroupLifestyle, run: betting},
		{Name: "savings", Group: GroupLifestyle, run: savings},
		{Name: "shopping", Group: GroupLifestyle, run: shopping},

		{Name: "kplc", Group: GroupUtility, run: kplc},
		{Name: "wifi", Group: GroupUtility, run: safaricomWifi},
		{Name: "zuku", Group: GroupUtility, run: zuku},
		{Name: "fuel", Group: GroupUtility, run: fuel},

		{Name: "credit-score", Group: GroupCredit, run: creditScore},
	}
}

func creditScore(txs []statement.Transaction, _ string) (any, error) {
	return creditscore.Compute(txs), nil
}
