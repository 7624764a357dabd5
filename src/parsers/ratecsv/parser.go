// backend/src/parsers/ratecsv/parser.go
package ratecsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/username/bondfolio/backend/src/model"
	"github.com/username/bondfolio/backend/src/security/validation"
)

var (
	ErrEmptyFile   = errors.New("reference rate file has no data rows")
	ErrInvalidRow  = errors.New("invalid reference rate row")
	ErrOverlapping = errors.New("reference rate intervals overlap")
)

// RawRate holds the direct string values of one CSV row.
type RawRate struct {
	StartDate, EndDate, Value string
	Line                      int
}

// Parser reads reference-rate history exported as start_date,end_date,value.
type Parser struct{}

// NewParser creates a new instance of the Parser.
func NewParser() *Parser {
	return &Parser{}
}

// stripPercent drops the quotes and percent sign some exports put around rates.
func stripPercent(s string) string {
	return strings.TrimSuffix(strings.Trim(strings.TrimSpace(s), "\""), "%")
}

// Parse reads the file, validates every row and returns the rates ordered by
// start date. The whole file is rejected on the first invalid row.
func (p *Parser) Parse(file io.Reader) ([]model.ReferenceRate, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	// Read and discard the header row
	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("ratecsv parser: failed to read CSV header: %w", err)
	}

	var raws []RawRate
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("ratecsv parser: failed to read CSV record: %w", err)
		}
		if len(record) < 3 {
			return nil, fmt.Errorf("%w on line %d: expected 3 columns, got %d", ErrInvalidRow, line, len(record))
		}
		raws = append(raws, RawRate{StartDate: record[0], EndDate: record[1], Value: record[2], Line: line})
	}
	if len(raws) == 0 {
		return nil, ErrEmptyFile
	}

	rates := make([]model.ReferenceRate, 0, len(raws))
	for _, raw := range raws {
		r, err := convert(raw)
		if err != nil {
			return nil, err
		}
		rates = append(rates, r)
	}

	sort.SliceStable(rates, func(i, j int) bool { return rates[i].StartDate.Before(rates[j].StartDate) })
	if err := checkIntervals(rates); err != nil {
		return nil, err
	}
	return rates, nil
}

func convert(raw RawRate) (model.ReferenceRate, error) {
	start, err := civil.ParseDate(strings.TrimSpace(raw.StartDate))
	if err != nil {
		return model.ReferenceRate{}, fmt.Errorf("%w on line %d: bad start date %q", ErrInvalidRow, raw.Line, raw.StartDate)
	}

	var end *civil.Date
	if s := strings.TrimSpace(raw.EndDate); s != "" {
		e, err := civil.ParseDate(s)
		if err != nil {
			return model.ReferenceRate{}, fmt.Errorf("%w on line %d: bad end date %q", ErrInvalidRow, raw.Line, raw.EndDate)
		}
		if e.Before(start) {
			return model.ReferenceRate{}, fmt.Errorf("%w on line %d: end date %s before start date %s", ErrInvalidRow, raw.Line, e, start)
		}
		end = &e
	}

	zero := decimal.Zero
	value, err := validation.ValidateDecimalString(stripPercent(raw.Value), "value", &zero, nil)
	if err != nil {
		return model.ReferenceRate{}, fmt.Errorf("%w on line %d: %w", ErrInvalidRow, raw.Line, err)
	}

	return model.ReferenceRate{Value: value, StartDate: start, EndDate: end}, nil
}

// checkIntervals expects rates sorted by start date. Only the last rate may be open.
func checkIntervals(rates []model.ReferenceRate) error {
	for i := 0; i < len(rates)-1; i++ {
		cur, next := rates[i], rates[i+1]
		if cur.EndDate == nil {
			return fmt.Errorf("%w: open rate starting %s is followed by rate starting %s", ErrOverlapping, cur.StartDate, next.StartDate)
		}
		if !cur.EndDate.Before(next.StartDate) {
			return fmt.Errorf("%w: rate starting %s ends %s, after next start %s", ErrOverlapping, cur.StartDate, *cur.EndDate, next.StartDate)
		}
	}
	return nil
}
