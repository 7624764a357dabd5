// backend/src/calendar/calendar.go
package calendar

import (
	"time"

	"cloud.google.com/go/civil"
)

// Period is a monthly accrual interval anchored to a purchase day.
// Start is inclusive and End is exclusive.
type Period struct {
	Start civil.Date `json:"start"`
	End   civil.Date `json:"end"`
}

// Days returns the number of days between Start and End.
func (p Period) Days() int {
	return p.End.DaysSince(p.Start)
}

// Contains reports whether d falls in [Start, End).
func (p Period) Contains(d civil.Date) bool {
	return !d.Before(p.Start) && d.Before(p.End)
}

// daysIn returns the number of days of the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AdvanceMonths adds n calendar months to d. When the target month is shorter
// than d's day of month, the day is clamped to the last day of that month
// (Jan 31 + 1 month is Feb 28, or Feb 29 in leap years). n may be negative.
func AdvanceMonths(d civil.Date, n int) civil.Date {
	first := time.Date(d.Year, d.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	day := d.Day
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return civil.Date{Year: first.Year(), Month: first.Month(), Day: day}
}

// monthsBetween counts whole calendar month steps from a to b, ignoring days.
func monthsBetween(a, b civil.Date) int {
	return (b.Year-a.Year)*12 + int(b.Month) - int(a.Month)
}

// CurrentPeriod returns the period anchored on purchase that contains ref.
// Every boundary is purchase advanced by a whole number of months, so an
// end-of-month purchase keeps returning to its original day when it can.
//
// A reference date before the purchase yields the month that ends on the
// purchase date.
func CurrentPeriod(purchase, ref civil.Date) Period {
	if ref.Before(purchase) {
		return Period{Start: AdvanceMonths(purchase, -1), End: purchase}
	}

	k := monthsBetween(purchase, ref) - 1
	if k < 0 {
		k = 0
	}
	for {
		p := Period{Start: AdvanceMonths(purchase, k), End: AdvanceMonths(purchase, k+1)}
		if p.Contains(ref) {
			return p
		}
		k++
	}
}

// MaturityDate returns the date a bond bought on purchase matures.
func MaturityDate(purchase civil.Date, maturityPeriodMonths int) civil.Date {
	return AdvanceMonths(purchase, maturityPeriodMonths)
}

// IsMatured reports whether the bond has reached maturity as of asOf.
func IsMatured(purchase civil.Date, maturityPeriodMonths int, asOf civil.Date) bool {
	return !asOf.Before(MaturityDate(purchase, maturityPeriodMonths))
}

// PaymentDates lists the monthly anniversaries of purchase (purchase + 1, 2, ...
// months) falling within [start, end], in ascending order.
func PaymentDates(purchase, start, end civil.Date) []civil.Date {
	var dates []civil.Date
	for k := 1; ; k++ {
		d := AdvanceMonths(purchase, k)
		if d.After(end) {
			return dates
		}
		if !d.Before(start) {
			dates = append(dates, d)
		}
	}
}
