// Package money provides currency-safe amounts in integer minor units using
// the Fowler Money pattern, with Kenyan shilling defaults.
package money

import (
	"encoding/json"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// KES is the Kenyan shilling, the currency of every M-Pesa statement.
const KES = "KES"

// Money represents a monetary value with currency.
type Money struct {
	m *money.Money
}

// New creates a new Money value from cents (minor units) and currency code.
func New(amountCents int64, currencyCode string) *Money {
	return &Money{
		m: money.New(amountCents, currencyCode),
	}
}

// NewFromDecimal creates Money from a decimal.Decimal value, rounding to the
// currency's minor unit.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) *Money {
	currency := money.GetCurrency(currencyCode)
	if currency == nil {
		currency = money.GetCurrency(KES)
		currencyCode = KES
	}

	multiplier := decimal.New(1, int32(currency.Fraction))
	cents := amount.Mul(multiplier).Round(0).IntPart()

	return New(cents, currencyCode)
}

// Shillings is shorthand for NewFromDecimal(amount, KES).
func Shillings(amount decimal.Decimal) *Money {
	return NewFromDecimal(amount, KES)
}

// Zero returns a zero Money value for the given currency
func Zero(currencyCode string) *Money {
	return New(0, currencyCode)
}

// Amount returns the amount in minor units (cents)
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 currency code
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

// IsZero returns true if the amount is zero
func (m *Money) IsZero() bool {
	return m == nil || m.m == nil || m.m.IsZero()
}

// Add adds two Money values. Returns error if currencies don't match.
func (m *Money) Add(other *Money) (*Money, error) {
	if m == nil || m.m == nil {
		return other, nil
	}
	if other == nil || other.m == nil {
		return m, nil
	}

	result, err := m.m.Add(other.m)
	if err != nil {
		return nil, err
	}
	return &Money{m: result}, nil
}

// Display returns a formatted string for display (e.g., "KSh1,234.56")
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return Zero(KES).Display()
	}
	return m.m.Display()
}

// String returns the amount as a decimal string (e.g., "1234.56")
func (m *Money) String() string {
	return m.ToDecimal().StringFixed(2)
}

// ToDecimal converts to decimal.Decimal for precise calculations
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	currency := m.m.Currency()
	d := decimal.NewFromInt(m.m.Amount())
	divisor := decimal.New(1, int32(currency.Fraction))
	return d.Div(divisor)
}

// ToFloat64 converts to float64 (use with caution for display only)
func (m *Money) ToFloat64() float64 {
	return m.ToDecimal().InexactFloat64()
}

// MarshalJSON renders the value as an Amount.
func (m *Money) MarshalJSON() ([]byte, error) {
	if m == nil || m.m == nil {
		return json.Marshal(nil)
	}
	return json.Marshal(m.Amounted())
}

// Amount is the JSON shape used for money in API payloads: a number for
// clients that compute, and a display string for clients that only render.
type Amount struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
	Display  string  `json:"display"`
}

// Amounted returns m as an Amount.
func (m *Money) Amounted() Amount {
	return Amount{
		Value:    m.ToFloat64(),
		Currency: m.Currency(),
		Display:  m.Display(),
	}
}

// KESAmount converts a decimal shilling value to an Amount.
func KESAmount(d decimal.Decimal) Amount {
	return Shillings(d).Amounted()
}
