package models

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// IncomePoint is the net income recognized on one payment date.
type IncomePoint struct {
	Date      civil.Date      `json:"date"`
	NetAmount decimal.Decimal `json:"net_amount"`
	Formatted string          `json:"formatted"`
}

// IncomeReport holds the payment series of one holding over a date range.
type IncomeReport struct {
	HolderID       int64           `json:"holder_id"`
	Series         string          `json:"series"`
	Start          civil.Date      `json:"start"`
	End            civil.Date      `json:"end"`
	Points         []IncomePoint   `json:"points"`
	Total          decimal.Decimal `json:"total"`
	TotalFormatted string          `json:"total_formatted"`
	Currency       string          `json:"currency"`
}

// PortfolioIncomeReport aggregates the income reports of every holding of a user.
type PortfolioIncomeReport struct {
	Start          civil.Date      `json:"start"`
	End            civil.Date      `json:"end"`
	Holdings       []IncomeReport  `json:"holdings"`
	Total          decimal.Decimal `json:"total"`
	TotalFormatted string          `json:"total_formatted"`
	Currency       string          `json:"currency"`
}

// MonthlyIncome is the income of one holding on a single evaluation date.
type MonthlyIncome struct {
	HolderID  int64           `json:"holder_id"`
	Date      civil.Date      `json:"date"`
	Regime    string          `json:"regime"` // "fixed" or "variable"
	NetAmount decimal.Decimal `json:"net_amount"`
	Formatted string          `json:"formatted"`
	Currency  string          `json:"currency"`
}
