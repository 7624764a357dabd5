// backend/src/services/interfaces.go
package services

import (
	"errors"
	"io"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/username/bondfolio/backend/src/model"
	"github.com/username/bondfolio/backend/src/models"
)

// Define common service errors
var (
	ErrNotFound  = errors.New("resource not found")
	ErrForbidden = errors.New("resource belongs to another user")
	ErrConflict  = errors.New("resource conflicts with existing data")
)

// BondInput carries the terms of a new bond issuance.
type BondInput struct {
	Series              string          `json:"series"`
	NominalValue        decimal.Decimal `json:"nominal_value"`
	MaturityPeriod      int             `json:"maturity_period"`
	InitialInterestRate decimal.Decimal `json:"initial_interest_rate"`
	FirstInterestPeriod int             `json:"first_interest_period"`
	ReferenceRateMargin decimal.Decimal `json:"reference_rate_margin"`
}

// BondService manages the catalogue of bond issuances.
type BondService interface {
	CreateBond(input BondInput) (*model.Bond, error)
	ListBonds() ([]model.Bond, error)
	GetBond(id int64) (*model.Bond, error)
}

// PurchaseRequest identifies the bond either by ID or by series.
type PurchaseRequest struct {
	BondID       int64      `json:"bond_id"`
	Series       string     `json:"series"`
	Quantity     int64      `json:"quantity"`
	PurchaseDate civil.Date `json:"purchase_date"`
}

// HoldingService manages a user's bond positions.
type HoldingService interface {
	Purchase(userID int64, req PurchaseRequest) (*model.BondHolder, error)
	ListHoldings(userID int64) ([]models.HoldingSummary, error)
	UpdateQuantity(userID, holderID, quantity int64) (*model.BondHolder, error)
	Delete(userID, holderID int64) error
	HasHoldings(userID int64) (bool, error)
}

// ReferenceRateService maintains the reference rate history.
type ReferenceRateService interface {
	ListRates() ([]model.ReferenceRate, error)
	AddRate(value decimal.Decimal, start civil.Date, end *civil.Date) (*model.ReferenceRate, error)
	ImportRates(file io.Reader) (int, error)
}

// IncomeService builds income and equity reports from positions and rates.
type IncomeService interface {
	MonthlyIncome(userID, holderID int64, on *civil.Date) (*models.MonthlyIncome, error)
	IncomeForPeriod(userID, holderID int64, start, end civil.Date) (*models.IncomeReport, error)
	PortfolioIncomeForPeriod(userID int64, start, end civil.Date) (*models.PortfolioIncomeReport, error)
	EquityHistory(userID int64) ([]models.EquityPoint, error)
	InvalidateUserCache(userID int64)
	FlushCache()
}

// EmailService sends account e-mails.
type EmailService interface {
	SendVerificationEmail(toEmail, username, token string) error
	SendPasswordResetEmail(toEmail, username, token string) error
}
