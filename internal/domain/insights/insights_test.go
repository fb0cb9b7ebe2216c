package insights

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/features"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

func at(month time.Month, day, hour int) *time.Time {
	t := time.Date(2024, month, day, hour, 15, 0, 0, time.UTC)
	return &t
}

func row(details, txType, paidIn, withdrawn string, when *time.Time) statement.Transaction {
	tx := statement.Transaction{
		ReceiptNo:       "SBC1XYZ000",
		CompletionTime:  when,
		Details:         details,
		PaidIn:          decimal.RequireFromString(paidIn),
		Withdrawn:       decimal.RequireFromString(withdrawn),
		TransactionType: txType,
	}
	if when != nil {
		tx.MonthName = when.Month().String()
		tx.DayName = when.Weekday().String()
		h := when.Hour()
		tx.Hour = &h
	}
	return tx
}

// ledger is a classified two-month statement touching every analytics
// group. The betting row has no completion time.
func ledger() []statement.Transaction {
	return features.NewDeriver().Derive([]statement.Transaction{
		row("Customer Transfer to 0722000000 - John Doe", "Send Money", "0", "500", at(time.March, 4, 9)),
		row("Customer Transfer to 0722000000 - John Doe", "Send Money", "0", "300", at(time.March, 5, 9)),
		row("Funds received from 0733000000 - MARY W", "Received Money", "2000", "0", at(time.March, 6, 18)),
		row("Pay Bill Online to 888880 - KPLC PREPAID Acc. 1234", "Pay Bill", "0", "1000", at(time.March, 10, 20)),
		row("Pay Bill Online to 888880 - KPLC PREPAID Acc. 1234", "Pay Bill", "0", "1500", at(time.April, 10, 20)),
		row("Merchant Payment to 123456 - NAIVAS WESTLANDS", "Till No", "0", "2400", at(time.April, 12, 12)),
		row("Business Payment from 300600 - Equity Bank via API", "Bank Transfer", "10000", "0", at(time.April, 15, 8)),
		row("Pay Bill to 247247 - KCB Bank Acc 0011", "Pay Bill", "0", "4000", at(time.April, 16, 14)),
		row("OverDraft of Credit Party", "Fuliza Loan", "150", "0", at(time.April, 18, 7)),
		row("OD Loan Repayment to 232323 - M-PESA Overdraw", "Fuliza Loan Repayment", "0", "150", at(time.April, 20, 10)),
		row("Pay Bill to 290290 - BETIKA", "Pay Bill", "0", "50", nil),
		row("M-Shwari Deposit", "Mshwari Deposit", "0", "1000", at(time.April, 22, 21)),
	})
}
