package models

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// HoldingSummary represents a user's bond position with the terms of its bond.
type HoldingSummary struct {
	ID                  int64           `json:"id"`
	BondID              int64           `json:"bond_id"`
	Series              string          `json:"series"`
	Quantity            int64           `json:"quantity"`
	PurchaseDate        civil.Date      `json:"purchase_date"`
	NominalValue        decimal.Decimal `json:"nominal_value"`
	FaceValue           decimal.Decimal `json:"face_value"` // Quantity * NominalValue
	FaceValueFormatted  string          `json:"face_value_formatted"`
	InitialInterestRate decimal.Decimal `json:"initial_interest_rate"`
	FirstInterestPeriod int             `json:"first_interest_period"`
	ReferenceRateMargin decimal.Decimal `json:"reference_rate_margin"`
	MaturityDate        civil.Date      `json:"maturity_date"`
	IsMatured           bool            `json:"is_matured"`
}

// EquityPoint is one sample of the portfolio's total face value, for charting.
type EquityPoint struct {
	Date      civil.Date      `json:"date"`
	Equity    decimal.Decimal `json:"equity"`
	Formatted string          `json:"formatted"`
}
