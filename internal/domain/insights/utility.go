package insights

import (
	"regexp"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/features"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

// billNumberPattern captures the paybill or till in "Pay Bill Online to
// 888880 - KPLC PREPAID".
var billNumberPattern = regexp.MustCompile(`to (\d+) -`)

var (
	kplcBills = map[string]bool{"888888": true, "888880": true}
	wifiBills = map[string]bool{"150501": true}
	zukuBills = map[string]bool{"320320": true}
	billTypes = map[string]bool{"Pay Bill": true, "Till No": true}
)

func isBill(tx statement.Transaction) bool {
	return billTypes[tx.TransactionType]
}

// billNumber returns the paybill or till a bill row was paid to.
func billNumber(details string) string {
	m := billNumberPattern.FindStringSubmatch(details)
	if m == nil {
		return ""
	}
	return m[1]
}

func paidTo(numbers map[string]bool) func(statement.Transaction) bool {
	return func(tx statement.Transaction) bool {
		return isBill(tx) && numbers[billNumber(tx.Details)]
	}
}

func kplc(txs []statement.Transaction, _ string) (any, error) {
	return summaryOf(txs, "KPLC payments", paidTo(kplcBills))
}

func safaricomWifi(txs []statement.Transaction, _ string) (any, error) {
	return summaryOf(txs, "Safaricom Wi-Fi payments", paidTo(wifiBills))
}

func zuku(txs []statement.Transaction, _ string) (any, error) {
	return summaryOf(txs, "Zuku payments", paidTo(zukuBills))
}

func fuel(txs []statement.Transaction, _ string) (any, error) {
	return summaryOf(txs, "fuel purchases", func(tx statement.Transaction) bool {
		return isBill(tx) && merchants.InCategory(tx.CounterpartyName, features.CategoryFuel)
	})
}
