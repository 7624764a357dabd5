// backend/src/services/holding_service.go
package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/bondfolio/backend/src/calendar"
	"github.com/username/bondfolio/backend/src/logger"
	"github.com/username/bondfolio/backend/src/model"
	"github.com/username/bondfolio/backend/src/models"
	"github.com/username/bondfolio/backend/src/security/validation"
)

type holdingServiceImpl struct {
	db          *sql.DB
	clock       calendar.Clock
	reportCache *cache.Cache
	currency    string
}

func NewHoldingService(db *sql.DB, clock calendar.Clock, reportCache *cache.Cache, currency string) HoldingService {
	return &holdingServiceImpl{db: db, clock: clock, reportCache: reportCache, currency: currency}
}

func (s *holdingServiceImpl) resolveBond(req PurchaseRequest) (*model.Bond, error) {
	var (
		b   *model.Bond
		err error
	)
	switch {
	case req.BondID > 0:
		b, err = model.GetBondByID(s.db, req.BondID)
	case strings.TrimSpace(req.Series) != "":
		b, err = model.GetBondBySeries(s.db, strings.ToUpper(strings.TrimSpace(req.Series)))
	default:
		return nil, fmt.Errorf("%w: bond_id or series is required", validation.ErrValidationFailed)
	}
	if errors.Is(err, model.ErrBondNotFound) {
		return nil, fmt.Errorf("%w: bond", ErrNotFound)
	}
	return b, err
}

func (s *holdingServiceImpl) Purchase(userID int64, req PurchaseRequest) (*model.BondHolder, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", validation.ErrValidationFailed, req.Quantity)
	}
	if !req.PurchaseDate.IsValid() {
		return nil, fmt.Errorf("%w: purchase_date is required", validation.ErrValidationFailed)
	}
	if today := s.clock.Today(); req.PurchaseDate.After(today) {
		return nil, fmt.Errorf("%w: purchase_date %s is in the future", validation.ErrValidationFailed, req.PurchaseDate)
	}

	bond, err := s.resolveBond(req)
	if err != nil {
		return nil, err
	}

	h := &model.BondHolder{
		BondID:       bond.ID,
		UserID:       userID,
		Quantity:     req.Quantity,
		PurchaseDate: req.PurchaseDate,
	}
	if err := h.CreateBondHolder(s.db); err != nil {
		return nil, fmt.Errorf("error creating holding for userID %d: %w", userID, err)
	}
	invalidateUserReports(s.reportCache, userID)
	logger.L.Info("Bond purchase recorded", "userID", userID, "holderID", h.ID, "series", bond.Series, "quantity", h.Quantity)
	return h, nil
}

func (s *holdingServiceImpl) ListHoldings(userID int64) ([]models.HoldingSummary, error) {
	holders, err := model.ListBondHoldersByUser(s.db, userID)
	if err != nil {
		return nil, err
	}

	today := s.clock.Today()
	bonds := make(map[int64]*model.Bond)
	summaries := make([]models.HoldingSummary, 0, len(holders))
	for _, h := range holders {
		b, ok := bonds[h.BondID]
		if !ok {
			if b, err = model.GetBondByID(s.db, h.BondID); err != nil {
				return nil, fmt.Errorf("error loading bond %d: %w", h.BondID, err)
			}
			bonds[h.BondID] = b
		}
		faceValue := b.NominalValue.Mul(decimal.NewFromInt(h.Quantity))
		summaries = append(summaries, models.HoldingSummary{
			ID:                  h.ID,
			BondID:              b.ID,
			Series:              b.Series,
			Quantity:            h.Quantity,
			PurchaseDate:        h.PurchaseDate,
			NominalValue:        b.NominalValue,
			FaceValue:           faceValue,
			FaceValueFormatted:  models.FormatAmount(faceValue, s.currency),
			InitialInterestRate: b.InitialInterestRate,
			FirstInterestPeriod: b.FirstInterestPeriod,
			ReferenceRateMargin: b.ReferenceRateMargin,
			MaturityDate:        calendar.MaturityDate(h.PurchaseDate, b.MaturityPeriod),
			IsMatured:           calendar.IsMatured(h.PurchaseDate, b.MaturityPeriod, today),
		})
	}
	return summaries, nil
}

func (s *holdingServiceImpl) ownedHolding(userID, holderID int64) (*model.BondHolder, error) {
	h, err := model.GetBondHolderByID(s.db, holderID)
	if err != nil {
		if errors.Is(err, model.ErrBondHolderNotFound) {
			return nil, fmt.Errorf("%w: holding %d", ErrNotFound, holderID)
		}
		return nil, err
	}
	if h.UserID != userID {
		logger.L.Warn("Attempt to access another user's holding", "userID", userID, "holderID", holderID)
		return nil, fmt.Errorf("%w: holding %d", ErrForbidden, holderID)
	}
	return h, nil
}

func (s *holdingServiceImpl) UpdateQuantity(userID, holderID, quantity int64) (*model.BondHolder, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", validation.ErrValidationFailed, quantity)
	}
	h, err := s.ownedHolding(userID, holderID)
	if err != nil {
		return nil, err
	}
	if err := h.UpdateQuantity(s.db, quantity); err != nil {
		return nil, fmt.Errorf("error updating holding %d: %w", holderID, err)
	}
	invalidateUserReports(s.reportCache, userID)
	return h, nil
}

func (s *holdingServiceImpl) Delete(userID, holderID int64) error {
	if _, err := s.ownedHolding(userID, holderID); err != nil {
		return err
	}
	if err := model.DeleteBondHolder(s.db, holderID); err != nil {
		return fmt.Errorf("error deleting holding %d: %w", holderID, err)
	}
	invalidateUserReports(s.reportCache, userID)
	logger.L.Info("Holding deleted", "userID", userID, "holderID", holderID)
	return nil
}

func (s *holdingServiceImpl) HasHoldings(userID int64) (bool, error) {
	count, err := model.CountBondHoldersByUser(s.db, userID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
