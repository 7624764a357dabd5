// backend/src/processors/equity_processor.go
package processors

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/username/bondfolio/backend/src/calendar"
	"github.com/username/bondfolio/backend/src/model"
)

// HoldingValue pairs a position with the face value of one unit.
type HoldingValue struct {
	Holder    model.BondHolder
	FaceValue decimal.Decimal
}

// EquityPoint is the total face value held on a date.
type EquityPoint struct {
	Date   civil.Date      `json:"date"`
	Equity decimal.Decimal `json:"equity"`
}

type equityProcessorImpl struct {
	clock calendar.Clock
}

// NewEquityProcessor creates an EquityProcessor whose series ends on the clock's today.
func NewEquityProcessor(clock calendar.Clock) EquityProcessor {
	return &equityProcessorImpl{clock: clock}
}

// SamplingInterval picks the step, in days, for a series spanning spanDays.
func SamplingInterval(spanDays int) int {
	switch {
	case spanDays <= 30:
		return 5
	case spanDays <= 90:
		return 15
	case spanDays <= 180:
		return 14
	case spanDays <= 365:
		return 28
	default:
		return 30
	}
}

// Timeline returns first, first+step, ... up to but excluding last, followed by last.
func Timeline(first, last civil.Date) []civil.Date {
	step := SamplingInterval(last.DaysSince(first))
	points := []civil.Date{first}
	for d := first.AddDays(step); d.Before(last); d = d.AddDays(step) {
		points = append(points, d)
	}
	if points[len(points)-1] != last {
		points = append(points, last)
	}
	return points
}

// History returns the running face value of the positions from the earliest
// purchase date to today. Positions bought after today are left out.
func (p *equityProcessorImpl) History(positions []HoldingValue) []EquityPoint {
	today := p.clock.Today()

	sorted := make([]HoldingValue, 0, len(positions))
	for _, pos := range positions {
		if !pos.Holder.PurchaseDate.After(today) {
			sorted = append(sorted, pos)
		}
	}
	if len(sorted) == 0 {
		return []EquityPoint{}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Holder.PurchaseDate.Before(sorted[j].Holder.PurchaseDate)
	})

	timeline := Timeline(sorted[0].Holder.PurchaseDate, today)
	series := make([]EquityPoint, 0, len(timeline))
	total := decimal.Zero
	next := 0
	for _, point := range timeline {
		for next < len(sorted) && !sorted[next].Holder.PurchaseDate.After(point) {
			pos := sorted[next]
			total = total.Add(pos.FaceValue.Mul(decimal.NewFromInt(pos.Holder.Quantity)))
			next++
		}
		series = append(series, EquityPoint{Date: point, Equity: total})
	}
	return series
}
