package processors

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/bondfolio/backend/src/calendar"
	"github.com/username/bondfolio/backend/src/model"
)

func date(y, m, d int) civil.Date {
	return civil.Date{Year: y, Month: time.Month(m), Day: d}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testBond(nominal string, firstPeriod int) model.Bond {
	return model.Bond{
		ID:                  1,
		Series:              "ROD0130",
		NominalValue:        dec(nominal),
		MaturityPeriod:      12,
		InitialInterestRate: dec("4.75"),
		FirstInterestPeriod: firstPeriod,
		ReferenceRateMargin: dec("0.1"),
	}
}

func testHolder(quantity int64) model.BondHolder {
	return model.BondHolder{ID: 7, BondID: 1, UserID: 3, Quantity: quantity, PurchaseDate: date(2024, 1, 15)}
}

func rate(value string, start civil.Date, end *civil.Date) model.ReferenceRate {
	return model.ReferenceRate{Value: dec(value), StartDate: start, EndDate: end}
}

func TestMonthlyIncome_FixedRegime(t *testing.T) {
	p := NewAccrualProcessor(calendar.FixedClock(date(2024, 2, 1)))

	// 100 * 4.75% * 31/365 = 0.4034 -> 0.40 per unit
	got, err := p.MonthlyIncome(testHolder(10), testBond("100", 1), nil, date(2024, 2, 1))
	require.NoError(t, err)
	assert.True(t, dec("3.24").Equal(got), "got %s", got)

	// 1000 * 4.75% * 31/365 = 4.0342 -> 4.03, net 3.2643 per unit
	got, err = p.MonthlyIncome(testHolder(10), testBond("1000", 1), nil, date(2024, 2, 1))
	require.NoError(t, err)
	assert.True(t, dec("32.643").Equal(got), "got %s", got)
}

func TestCurrentMonthlyIncome_UsesClock(t *testing.T) {
	p := NewAccrualProcessor(calendar.FixedClock(date(2024, 2, 1)))

	got, err := p.CurrentMonthlyIncome(testHolder(10), testBond("1000", 1), nil)
	require.NoError(t, err)
	assert.Equal(t, "32.643", got.String())
}

func TestResolveRegime_Boundary(t *testing.T) {
	p := NewAccrualProcessor(calendar.SystemClock{})
	holder, bond := testHolder(10), testBond("1000", 1)
	ref := rate("5.75", date(2023, 10, 5), nil)

	assert.Equal(t, date(2024, 2, 15), RegimeBoundary(holder, bond))

	r, err := p.ResolveRegime(holder, bond, nil, date(2024, 2, 10))
	require.NoError(t, err)
	assert.Equal(t, FixedRegime{}, r)

	r, err = p.ResolveRegime(holder, bond, &ref, date(2024, 2, 15))
	require.NoError(t, err)
	assert.Equal(t, VariableRegime{ReferenceRate: dec("5.75")}, r)

	_, err = p.ResolveRegime(holder, bond, nil, date(2024, 2, 16))
	assert.ErrorIs(t, err, ErrNoReferenceRate)
}

func TestIncomeUnder_ResolvedRegime(t *testing.T) {
	p := NewAccrualProcessor(calendar.SystemClock{})
	holder, bond := testHolder(10), testBond("1000", 1)

	got, err := p.IncomeUnder(holder, bond, FixedRegime{}, date(2024, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, "32.643", got.String())

	got, err = p.IncomeUnder(holder, bond, VariableRegime{ReferenceRate: dec("5.75")}, date(2024, 2, 16))
	require.NoError(t, err)
	assert.Equal(t, "37.665", got.String())

	_, err = p.IncomeUnder(testHolder(0), bond, FixedRegime{}, date(2024, 2, 1))
	assert.ErrorIs(t, err, ErrInvalidPosition)
}

func TestAnnualRate_UnknownRegimePanics(t *testing.T) {
	bond := testBond("1000", 1)
	assert.True(t, dec("4.75").Equal(annualRate(FixedRegime{}, bond)))
	assert.True(t, dec("5.85").Equal(annualRate(VariableRegime{ReferenceRate: dec("5.75")}, bond)))
	assert.Panics(t, func() { annualRate(nil, bond) })
}

func TestMonthlyIncome_VariableRegime(t *testing.T) {
	p := NewAccrualProcessor(calendar.SystemClock{})
	ref := rate("5.75", date(2023, 10, 5), nil)

	// period 2024-02-15..2024-03-15 is 29 days; 1000 * 5.85% * 29/365 = 4.6479 -> 4.65
	got, err := p.MonthlyIncome(testHolder(10), testBond("1000", 1), &ref, date(2024, 2, 16))
	require.NoError(t, err)
	assert.Equal(t, "37.665", got.String())

	_, err = p.MonthlyIncome(testHolder(10), testBond("1000", 1), nil, date(2024, 2, 16))
	assert.ErrorIs(t, err, ErrNoReferenceRate)
	assert.Contains(t, err.Error(), "2024-02-16")
}

func TestMonthlyIncome_FixedRegimeIgnoresRate(t *testing.T) {
	p := NewAccrualProcessor(calendar.SystemClock{})
	ref := rate("9.99", date(2023, 10, 5), nil)

	withRate, err := p.MonthlyIncome(testHolder(10), testBond("1000", 1), &ref, date(2024, 2, 10))
	require.NoError(t, err)
	withoutRate, err := p.MonthlyIncome(testHolder(10), testBond("1000", 1), nil, date(2024, 2, 10))
	require.NoError(t, err)
	assert.True(t, withRate.Equal(withoutRate))
}

func TestMonthlyIncome_InvalidPosition(t *testing.T) {
	p := NewAccrualProcessor(calendar.SystemClock{})

	_, err := p.MonthlyIncome(testHolder(0), testBond("1000", 1), nil, date(2024, 2, 1))
	assert.ErrorIs(t, err, ErrInvalidPosition)

	_, err = p.MonthlyIncome(testHolder(-2), testBond("1000", 1), nil, date(2024, 2, 1))
	assert.ErrorIs(t, err, ErrInvalidPosition)

	_, err = p.MonthlyIncome(testHolder(1), testBond("0", 1), nil, date(2024, 2, 1))
	assert.ErrorIs(t, err, ErrInvalidPosition)

	_, err = p.IncomeForPeriod(testHolder(1), testBond("-5", 1), nil, date(2024, 1, 1), date(2024, 12, 31))
	assert.ErrorIs(t, err, ErrInvalidPosition)
}

func TestNetOfTax(t *testing.T) {
	for _, g := range []string{"0", "0.01", "0.40", "4.03", "4.65", "123.45"} {
		gross := dec(g)
		assert.True(t, gross.Mul(dec("0.81")).Equal(NetOfTax(gross)), "gross %s", g)
	}
	assert.Equal(t, "3.2643", NetOfTax(dec("4.03")).String())
}

func TestGrossPerUnit_RoundsHalfUp(t *testing.T) {
	// 1000 * 3.65 * 1 / 36500 = 0.1 exactly
	assert.Equal(t, "0.1", GrossPerUnit(dec("1000"), dec("3.65"), 1).String())
	// 100 * 36.5 * 3 / 36500 = 0.3 exactly; 100 * 0.1825 * 1 / 36500 = 0.0005 -> 0.00
	assert.Equal(t, "0.3", GrossPerUnit(dec("100"), dec("36.5"), 3).String())
	assert.True(t, GrossPerUnit(dec("100"), dec("0.1825"), 1).IsZero())
	// 100 * 1.825 * 1 / 36500 = 0.005 -> 0.01
	assert.Equal(t, "0.01", GrossPerUnit(dec("100"), dec("1.825"), 1).String())
}

func TestMonthlyIncome_QuantityLinearity(t *testing.T) {
	p := NewAccrualProcessor(calendar.SystemClock{})
	ref := rate("5.75", date(2023, 10, 5), nil)

	for _, k := range []int64{1, 3, 7, 250} {
		for _, on := range []civil.Date{date(2024, 2, 1), date(2024, 5, 20)} {
			single, err := p.MonthlyIncome(testHolder(k), testBond("100", 1), &ref, on)
			require.NoError(t, err)
			double, err := p.MonthlyIncome(testHolder(2*k), testBond("100", 1), &ref, on)
			require.NoError(t, err)
			assert.True(t, single.Mul(decimal.NewFromInt(2)).Equal(double), "k=%d on=%s", k, on)
		}
	}
}

func TestIncomeForPeriod_AcrossRegimesAndRates(t *testing.T) {
	p := NewAccrualProcessor(calendar.SystemClock{})
	closed := date(2024, 3, 31)
	rates := []model.ReferenceRate{
		rate("5.25", date(2024, 4, 1), nil),
		rate("5.75", date(2023, 10, 5), &closed),
	}

	got, err := p.IncomeForPeriod(testHolder(10), testBond("1000", 2), rates, date(2024, 1, 1), date(2024, 4, 30))
	require.NoError(t, err)
	require.Len(t, got, 3)

	// fixed: 29 days at 4.75 -> 3.77
	assert.Equal(t, date(2024, 2, 15), got[0].Date)
	assert.Equal(t, "30.537", got[0].Amount.String())
	// variable: 31 days at 5.85 -> 4.97
	assert.Equal(t, date(2024, 3, 15), got[1].Date)
	assert.Equal(t, "40.257", got[1].Amount.String())
	// variable: 30 days at 5.35 -> 4.40
	assert.Equal(t, date(2024, 4, 15), got[2].Date)
	assert.Equal(t, "35.64", got[2].Amount.String())

	assert.Equal(t, "106.434", TotalIncome(got).String())
}

func TestIncomeForPeriod_MissingRateFailsWhole(t *testing.T) {
	p := NewAccrualProcessor(calendar.SystemClock{})
	rates := []model.ReferenceRate{rate("5.75", date(2024, 3, 1), nil)}

	got, err := p.IncomeForPeriod(testHolder(10), testBond("1000", 1), rates, date(2024, 1, 1), date(2024, 6, 30))
	assert.ErrorIs(t, err, ErrNoReferenceRate)
	assert.Contains(t, err.Error(), "2024-02-15")
	assert.Nil(t, got)
}

func TestIncomeForPeriod_NoPaymentsBeforeFirstAnniversary(t *testing.T) {
	p := NewAccrualProcessor(calendar.SystemClock{})

	got, err := p.IncomeForPeriod(testHolder(10), testBond("1000", 1), nil, date(2023, 1, 1), date(2024, 2, 14))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestApplicableRate(t *testing.T) {
	rates := []model.ReferenceRate{
		rate("6.75", date(2023, 1, 1), nil),
		rate("5.75", date(2023, 10, 5), nil),
		rate("5.25", date(2024, 4, 1), nil),
	}

	assert.Nil(t, ApplicableRate(rates, date(2022, 12, 31)))
	assert.Equal(t, "6.75", ApplicableRate(rates, date(2023, 1, 1)).Value.String())
	assert.Equal(t, "5.75", ApplicableRate(rates, date(2024, 3, 31)).Value.String())
	assert.Equal(t, "5.25", ApplicableRate(rates, date(2030, 1, 1)).Value.String())
	assert.Nil(t, ApplicableRate(nil, date(2024, 1, 1)))
}
