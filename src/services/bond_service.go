// backend/src/services/bond_service.go
package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/bondfolio/backend/src/logger"
	"github.com/username/bondfolio/backend/src/model"
	"github.com/username/bondfolio/backend/src/security/validation"
)

const maxMaturityMonths = 600

type bondServiceImpl struct {
	db *sql.DB
}

func NewBondService(db *sql.DB) BondService {
	return &bondServiceImpl{db: db}
}

func validateBondInput(in BondInput) error {
	if err := validation.ValidateSeries(in.Series); err != nil {
		return err
	}
	if err := validation.ValidatePositiveDecimal(in.NominalValue, "nominal_value"); err != nil {
		return err
	}
	if err := validation.ValidateIntRange(in.MaturityPeriod, "maturity_period", 1, maxMaturityMonths); err != nil {
		return err
	}
	if err := validation.ValidateIntRange(in.FirstInterestPeriod, "first_interest_period", 0, in.MaturityPeriod); err != nil {
		return err
	}
	zero := decimal.Zero
	if err := validation.ValidateDecimalRange(in.InitialInterestRate, "initial_interest_rate", &zero, nil); err != nil {
		return err
	}
	return validation.ValidateDecimalRange(in.ReferenceRateMargin, "reference_rate_margin", &zero, nil)
}

func (s *bondServiceImpl) CreateBond(in BondInput) (*model.Bond, error) {
	in.Series = strings.ToUpper(validation.CleanInput(in.Series))
	if err := validateBondInput(in); err != nil {
		return nil, err
	}

	if _, err := model.GetBondBySeries(s.db, in.Series); err == nil {
		return nil, fmt.Errorf("%w: bond series %s already exists", ErrConflict, in.Series)
	} else if !errors.Is(err, model.ErrBondNotFound) {
		return nil, fmt.Errorf("error checking bond series %s: %w", in.Series, err)
	}

	b := &model.Bond{
		Series:              in.Series,
		NominalValue:        in.NominalValue,
		MaturityPeriod:      in.MaturityPeriod,
		InitialInterestRate: in.InitialInterestRate,
		FirstInterestPeriod: in.FirstInterestPeriod,
		ReferenceRateMargin: in.ReferenceRateMargin,
	}
	if err := b.CreateBond(s.db); err != nil {
		return nil, fmt.Errorf("error creating bond %s: %w", in.Series, err)
	}
	logger.L.Info("Bond created", "bondID", b.ID, "series", b.Series)
	return b, nil
}

func (s *bondServiceImpl) ListBonds() ([]model.Bond, error) {
	bonds, err := model.ListBonds(s.db)
	if err != nil {
		return nil, err
	}
	if bonds == nil {
		bonds = []model.Bond{}
	}
	return bonds, nil
}

func (s *bondServiceImpl) GetBond(id int64) (*model.Bond, error) {
	b, err := model.GetBondByID(s.db, id)
	if errors.Is(err, model.ErrBondNotFound) {
		return nil, fmt.Errorf("%w: bond %d", ErrNotFound, id)
	}
	return b, err
}
