package calendar

import (
	"time"

	"cloud.google.com/go/civil"
)

// Clock supplies the current calendar date.
type Clock interface {
	Today() civil.Date
}

// SystemClock reads the date from the process clock in the local time zone.
type SystemClock struct{}

func (SystemClock) Today() civil.Date { return civil.DateOf(time.Now()) }

// FixedClock always returns the same date.
type FixedClock civil.Date

func (c FixedClock) Today() civil.Date { return civil.Date(c) }
