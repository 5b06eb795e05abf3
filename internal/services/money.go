package services

import (
	"github.com/shopspring/decimal"
)

// maxAmount mirrors the NUMERIC(15, 2) money columns.
var maxAmount = decimal.RequireFromString("9999999999999.99")

// validateAmount accepts positive PKR amounts with at most two decimal places.
func validateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalid(field, "must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return invalid(field, "must have at most two decimal places")
	}
	if amount.GreaterThan(maxAmount) {
		return invalid(field, "exceeds maximum amount")
	}
	return nil
}
