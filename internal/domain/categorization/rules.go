package categorization

import "github.com/FACorreiaa/mpesa-insights/internal/domain/statement"

// DefaultRules is the M-Pesa rule table. Order matters: when a later
// pattern also occurs in the details it overrides an earlier one, so
// "M-Shwari Loan Repayment" beats "M-Shwari Loan" and "Recharge for Customer
// With Fuliza" beats "Recharge for Customer".
//
// "Other" is matched as a substring like any other pattern and therefore
// overrides everything when the details contain that word.
func DefaultRules() []Rule {
	return []Rule{
		{"Customer Transfer to", "Send Money"},
		{"Pay Bill Fuliza M-Pesa to", "Fuliza Loan"},
		{"Customer Transfer Fuliza MPesa", "Send Money"},
		{"Pay Bill Online", "Pay Bill"},
		{"Pay Bill to", "Pay Bill"},
		{"Customer Transfer of Funds Charge", statement.TypeMpesaCharges},
		{"Pay Bill Charge", statement.TypeMpesaCharges},
		{"Merchant Payment Online", "Till No"},
		{"Customer Send Money to Micro", "Pochi"},
		{"M-Shwari Withdraw", "Mshwari Withdraw"},
		{"Business Payment from", "Bank Transfer"},
		{"Airtime Purchase", "Airtime Purchase"},
		{"Airtime Purchase For Other", "Airtime Purchase"},
		{"Recharge for Customer", "safaricom bundles"},
		{"Customer Bundle Purchase with Fuliza", "safaricom bundles"},
		{"Funds received from", "Received Money"},
		{"Merchant Payment", "Till No"},
		{"Customer Withdrawal", "Cash Withdrawal"},
		{"Withdrawal Charge", statement.TypeMpesaCharges},
		{"Pay Merchant Charge", statement.TypeMpesaCharges},
		{"M-Shwari Deposit", "Mshwari Deposit"},
		{"M-Shwari Loan", "M-Shwari Loan"},
		{"M-Shwari Loan Repayment", "M-Shwari Repayment"},
		{"Deposit of Funds at Agent", "Customer Deposit"},
		{"OD Loan Repayment to", "Fuliza Loan Repayment"},
		{"OverDraft of Credit Party", "Fuliza Loan"},
		{"Customer Transfer Fuliza M-Pesa to", "Send Money"},
		{"KCB M-PESA Withdraw", "KCB M-PESA Withdraw"},
		{"KCB M-PESA Deposit", "KCB M-PESA Deposit"},
		{"KCB M-PESA Target Deposit", "KCB M-PESA Deposit"},
		{"Recharge for Customer With Fuliza", "Fuliza Airtime"},
		{"Promotion Payment", "Received Money"},
		{"KCB M-PESA Target First Deposit", "KCB M-PESA Deposit"},
		{"Customer Payment to Small Business", "Pochi"},
		{"Merchant Customer Payment from", "Till No"},
		{"Reversal", "Reversal"},
		{"Merchant Payment Fuliza M-Pesa", "Till No"},
		{"H-fund", "Hustler"},
		{"Other", statement.TypeOther},
	}
}
