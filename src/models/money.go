package models

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"github.com/username/bondfolio/backend/src/security/validation"
)

// FormatAmount renders amount for display in the given ISO currency, rounded
// half-up to the currency's minor unit. Unknown currencies fall back to two
// decimals followed by the code.
func FormatAmount(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	minor := amount.Round(int32(cur.Fraction)).Shift(int32(cur.Fraction))
	return money.New(minor.IntPart(), cur.Code).Display()
}

// IsKnownCurrency reports whether code is an ISO currency go-money can format.
func IsKnownCurrency(code string) bool {
	return money.GetCurrency(code) != nil
}

// NormalizeReportCurrency upper-cases code and checks it is three letters.
func NormalizeReportCurrency(code string) (string, error) {
	if err := validation.ValidateCurrencyCode(code); err != nil {
		return "", err
	}
	return strings.ToUpper(strings.TrimSpace(code)), nil
}
