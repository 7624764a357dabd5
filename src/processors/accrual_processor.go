// backend/src/processors/accrual_processor.go
package processors

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/username/bondfolio/backend/src/calendar"
	"github.com/username/bondfolio/backend/src/model"
)

var (
	ErrNoReferenceRate = errors.New("no reference rate for payment date")
	ErrInvalidPosition = errors.New("invalid position")
)

var (
	taxRate    = decimal.RequireFromString("0.19")
	netOfTax   = decimal.NewFromInt(1).Sub(taxRate)
	dayBasis   = decimal.NewFromInt(365 * 100) // Actual/365 with rates quoted in percent
	grossScale = int32(2)
)

// Regime is either FixedRegime or VariableRegime.
type Regime interface {
	isRegime()
}

// FixedRegime accrues at the bond's initial interest rate.
type FixedRegime struct{}

// VariableRegime accrues at the reference rate plus the bond's margin.
type VariableRegime struct {
	ReferenceRate decimal.Decimal
}

func (FixedRegime) isRegime()    {}
func (VariableRegime) isRegime() {}

// PaymentIncome is the net income recognized on one payment date.
type PaymentIncome struct {
	Date   civil.Date      `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

type accrualProcessorImpl struct {
	clock calendar.Clock
}

// NewAccrualProcessor creates an AccrualProcessor that resolves "today" through clock.
func NewAccrualProcessor(clock calendar.Clock) AccrualProcessor {
	return &accrualProcessorImpl{clock: clock}
}

// RegimeBoundary is the first date on which the variable regime applies.
func RegimeBoundary(holder model.BondHolder, bond model.Bond) civil.Date {
	return calendar.AdvanceMonths(holder.PurchaseDate, bond.FirstInterestPeriod)
}

func validatePosition(holder model.BondHolder, bond model.Bond) error {
	if holder.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidPosition, holder.Quantity)
	}
	if !bond.NominalValue.IsPositive() {
		return fmt.Errorf("%w: nominal value must be positive, got %s", ErrInvalidPosition, bond.NominalValue)
	}
	return nil
}

func (p *accrualProcessorImpl) ResolveRegime(holder model.BondHolder, bond model.Bond, rate *model.ReferenceRate, on civil.Date) (Regime, error) {
	if on.Before(RegimeBoundary(holder, bond)) {
		return FixedRegime{}, nil
	}
	if rate == nil {
		return nil, fmt.Errorf("%w %s", ErrNoReferenceRate, on)
	}
	return VariableRegime{ReferenceRate: rate.Value}, nil
}

// annualRate returns the annual percentage the regime accrues at.
func annualRate(r Regime, bond model.Bond) decimal.Decimal {
	switch r := r.(type) {
	case FixedRegime:
		return bond.InitialInterestRate
	case VariableRegime:
		return r.ReferenceRate.Add(bond.ReferenceRateMargin)
	default:
		panic(fmt.Sprintf("processors: unknown accrual regime %T", r))
	}
}

// GrossPerUnit returns one unit's gross income over a period of the given
// length, rounded half-up to cents.
func GrossPerUnit(nominal, annualRatePercent decimal.Decimal, days int) decimal.Decimal {
	return nominal.Mul(annualRatePercent).Mul(decimal.NewFromInt(int64(days))).Div(dayBasis).Round(grossScale)
}

// NetOfTax applies the 19% withholding to a rounded per-unit gross amount.
func NetOfTax(gross decimal.Decimal) decimal.Decimal {
	return gross.Mul(netOfTax)
}

func (p *accrualProcessorImpl) income(holder model.BondHolder, bond model.Bond, r Regime, on civil.Date) decimal.Decimal {
	days := calendar.CurrentPeriod(holder.PurchaseDate, on).Days()
	gross := GrossPerUnit(bond.NominalValue, annualRate(r, bond), days)
	return NetOfTax(gross).Mul(decimal.NewFromInt(holder.Quantity))
}

func (p *accrualProcessorImpl) MonthlyIncome(holder model.BondHolder, bond model.Bond, rate *model.ReferenceRate, on civil.Date) (decimal.Decimal, error) {
	r, err := p.ResolveRegime(holder, bond, rate, on)
	if err != nil {
		return decimal.Zero, err
	}
	return p.IncomeUnder(holder, bond, r, on)
}

// IncomeUnder computes the net income on a date for an already resolved regime.
func (p *accrualProcessorImpl) IncomeUnder(holder model.BondHolder, bond model.Bond, r Regime, on civil.Date) (decimal.Decimal, error) {
	if err := validatePosition(holder, bond); err != nil {
		return decimal.Zero, err
	}
	return p.income(holder, bond, r, on), nil
}

func (p *accrualProcessorImpl) CurrentMonthlyIncome(holder model.BondHolder, bond model.Bond, rate *model.ReferenceRate) (decimal.Decimal, error) {
	return p.MonthlyIncome(holder, bond, rate, p.clock.Today())
}

// ApplicableRate returns the rate with the latest start date on or before d,
// or nil when none has started.
func ApplicableRate(rates []model.ReferenceRate, d civil.Date) *model.ReferenceRate {
	var best *model.ReferenceRate
	for i := range rates {
		r := &rates[i]
		if r.StartDate.After(d) {
			continue
		}
		if best == nil || r.StartDate.After(best.StartDate) {
			best = r
		}
	}
	return best
}

// IncomeForPeriod fails as a whole when any payment date has no applicable rate.
func (p *accrualProcessorImpl) IncomeForPeriod(holder model.BondHolder, bond model.Bond, rates []model.ReferenceRate, start, end civil.Date) ([]PaymentIncome, error) {
	if err := validatePosition(holder, bond); err != nil {
		return nil, err
	}

	dates := calendar.PaymentDates(holder.PurchaseDate, start, end)
	result := make([]PaymentIncome, 0, len(dates))
	for _, d := range dates {
		rate := ApplicableRate(rates, d)
		if rate == nil {
			return nil, fmt.Errorf("%w %s", ErrNoReferenceRate, d)
		}
		r, err := p.ResolveRegime(holder, bond, rate, d)
		if err != nil {
			return nil, err
		}
		result = append(result, PaymentIncome{Date: d, Amount: p.income(holder, bond, r, d)})
	}
	return result, nil
}

// TotalIncome sums the amounts of a payment series.
func TotalIncome(payments []PaymentIncome) decimal.Decimal {
	total := decimal.Zero
	for _, pi := range payments {
		total = total.Add(pi.Amount)
	}
	return total
}
