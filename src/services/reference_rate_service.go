// backend/src/services/reference_rate_service.go
package services

import (
	"database/sql"
	"fmt"
	"io"

	"cloud.google.com/go/civil"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/bondfolio/backend/src/logger"
	"github.com/username/bondfolio/backend/src/model"
	"github.com/username/bondfolio/backend/src/parsers/ratecsv"
	"github.com/username/bondfolio/backend/src/security/validation"
)

type referenceRateServiceImpl struct {
	db          *sql.DB
	parser      *ratecsv.Parser
	reportCache *cache.Cache
}

func NewReferenceRateService(db *sql.DB, parser *ratecsv.Parser, reportCache *cache.Cache) ReferenceRateService {
	return &referenceRateServiceImpl{db: db, parser: parser, reportCache: reportCache}
}

func (s *referenceRateServiceImpl) ListRates() ([]model.ReferenceRate, error) {
	rates, err := model.ListReferenceRates(s.db)
	if err != nil {
		return nil, err
	}
	if rates == nil {
		rates = []model.ReferenceRate{}
	}
	return rates, nil
}

// checkOverlap rejects a new rate that would overlap the existing history.
// An open new rate may only follow every existing rate; the open rate it
// supersedes is closed by the caller.
func checkOverlap(existing []model.ReferenceRate, start civil.Date, end *civil.Date) error {
	for _, r := range existing {
		if end == nil {
			if !r.StartDate.Before(start) {
				return fmt.Errorf("%w: rate starting %s is not before new open rate starting %s", ErrConflict, r.StartDate, start)
			}
			if r.EndDate != nil && !r.EndDate.Before(start) {
				return fmt.Errorf("%w: rate starting %s runs until %s", ErrConflict, r.StartDate, *r.EndDate)
			}
			continue
		}
		startsBeforeEnd := !r.StartDate.After(*end)
		endsAfterStart := r.EndDate == nil || !r.EndDate.Before(start)
		if startsBeforeEnd && endsAfterStart {
			return fmt.Errorf("%w: rate starting %s overlaps %s..%s", ErrConflict, r.StartDate, start, *end)
		}
	}
	return nil
}

func (s *referenceRateServiceImpl) AddRate(value decimal.Decimal, start civil.Date, end *civil.Date) (*model.ReferenceRate, error) {
	zero := decimal.Zero
	if err := validation.ValidateDecimalRange(value, "value", &zero, nil); err != nil {
		return nil, err
	}
	if !start.IsValid() {
		return nil, fmt.Errorf("%w: start_date is required", validation.ErrValidationFailed)
	}
	if end != nil {
		if err := validation.ValidateDateRange(start, *end); err != nil {
			return nil, err
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	existing, err := model.ListReferenceRates(tx)
	if err != nil {
		return nil, err
	}
	if err := checkOverlap(existing, start, end); err != nil {
		return nil, err
	}
	if end == nil {
		closed, err := model.CloseOpenReferenceRate(tx, start.AddDays(-1))
		if err != nil {
			return nil, fmt.Errorf("error closing open reference rate: %w", err)
		}
		logger.L.Debug("Closed open reference rate", "count", closed, "endDate", start.AddDays(-1).String())
	}

	r := &model.ReferenceRate{Value: value, StartDate: start, EndDate: end}
	if err := r.CreateReferenceRate(tx); err != nil {
		return nil, fmt.Errorf("error creating reference rate: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.reportCache.Flush()
	logger.L.Info("Reference rate added", "value", value.String(), "start", start.String())
	return r, nil
}

// ImportRates replaces the whole history with the rates read from file.
func (s *referenceRateServiceImpl) ImportRates(file io.Reader) (int, error) {
	rates, err := s.parser.Parse(file)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", validation.ErrValidationFailed, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := model.DeleteAllReferenceRates(tx); err != nil {
		return 0, fmt.Errorf("error clearing reference rates: %w", err)
	}
	for i := range rates {
		if err := rates[i].CreateReferenceRate(tx); err != nil {
			return 0, fmt.Errorf("error inserting reference rate starting %s: %w", rates[i].StartDate, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	s.reportCache.Flush()
	logger.L.Info("Reference rates imported", "count", len(rates))
	return len(rates), nil
}
