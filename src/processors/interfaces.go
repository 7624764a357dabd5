package processors

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/username/bondfolio/backend/src/model"
)

// AccrualProcessor computes net interest income for a single bond position.
type AccrualProcessor interface {
	// ResolveRegime picks the accrual regime that applies on the given date.
	ResolveRegime(holder model.BondHolder, bond model.Bond, rate *model.ReferenceRate, on civil.Date) (Regime, error)
	// MonthlyIncome returns the net income recognized on the given date.
	MonthlyIncome(holder model.BondHolder, bond model.Bond, rate *model.ReferenceRate, on civil.Date) (decimal.Decimal, error)
	// IncomeUnder is MonthlyIncome for a regime the caller already resolved.
	IncomeUnder(holder model.BondHolder, bond model.Bond, r Regime, on civil.Date) (decimal.Decimal, error)
	// CurrentMonthlyIncome is MonthlyIncome evaluated on the clock's today.
	CurrentMonthlyIncome(holder model.BondHolder, bond model.Bond, rate *model.ReferenceRate) (decimal.Decimal, error)
	// IncomeForPeriod returns the income of every payment date in [start, end].
	IncomeForPeriod(holder model.BondHolder, bond model.Bond, rates []model.ReferenceRate, start, end civil.Date) ([]PaymentIncome, error)
}

// EquityProcessor samples the face value of a portfolio over time.
type EquityProcessor interface {
	History(positions []HoldingValue) []EquityPoint
}
