// backend/src/services/income_service.go
package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/bondfolio/backend/src/calendar"
	"github.com/username/bondfolio/backend/src/logger"
	"github.com/username/bondfolio/backend/src/model"
	"github.com/username/bondfolio/backend/src/models"
	"github.com/username/bondfolio/backend/src/processors"
)

const (
	ckMonthlyIncome        = "user_%d_monthly_income_holder_%d_%s"
	ckIncomeForPeriod      = "user_%d_income_holder_%d_%s_%s"
	ckPortfolioIncome      = "user_%d_portfolio_income_%s_%s"
	ckEquityHistory        = "user_%d_equity_history_%s"
	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

// NewReportCache creates the shared cache for derived reports.
func NewReportCache(expiration time.Duration) *cache.Cache {
	if expiration <= 0 {
		expiration = DefaultCacheExpiration
	}
	return cache.New(expiration, CacheCleanupInterval)
}

// invalidateUserReports drops every cached report of one user.
func invalidateUserReports(c *cache.Cache, userID int64) {
	prefix := fmt.Sprintf("user_%d_", userID)
	removed := 0
	for key := range c.Items() {
		if strings.HasPrefix(key, prefix) {
			c.Delete(key)
			removed++
		}
	}
	logger.L.Debug("Invalidated cached reports", "userID", userID, "count", removed)
}

type incomeServiceImpl struct {
	db               *sql.DB
	accrualProcessor processors.AccrualProcessor
	equityProcessor  processors.EquityProcessor
	clock            calendar.Clock
	reportCache      *cache.Cache
	currency         string
}

func NewIncomeService(
	db *sql.DB,
	accrualProcessor processors.AccrualProcessor,
	equityProcessor processors.EquityProcessor,
	clock calendar.Clock,
	reportCache *cache.Cache,
	currency string,
) IncomeService {
	return &incomeServiceImpl{
		db:               db,
		accrualProcessor: accrualProcessor,
		equityProcessor:  equityProcessor,
		clock:            clock,
		reportCache:      reportCache,
		currency:         currency,
	}
}

func (s *incomeServiceImpl) InvalidateUserCache(userID int64) {
	invalidateUserReports(s.reportCache, userID)
}

func (s *incomeServiceImpl) FlushCache() {
	s.reportCache.Flush()
	logger.L.Info("Report cache flushed")
}

// loadOwnedHolding fetches the holding and its bond, enforcing ownership.
func loadOwnedHolding(db *sql.DB, userID, holderID int64) (*model.BondHolder, *model.Bond, error) {
	holder, err := model.GetBondHolderByID(db, holderID)
	if err != nil {
		if errors.Is(err, model.ErrBondHolderNotFound) {
			return nil, nil, fmt.Errorf("%w: holding %d", ErrNotFound, holderID)
		}
		return nil, nil, fmt.Errorf("error loading holding %d: %w", holderID, err)
	}
	if holder.UserID != userID {
		return nil, nil, fmt.Errorf("%w: holding %d", ErrForbidden, holderID)
	}
	bond, err := model.GetBondByID(db, holder.BondID)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading bond %d of holding %d: %w", holder.BondID, holderID, err)
	}
	return holder, bond, nil
}

func regimeName(r processors.Regime) string {
	if _, ok := r.(processors.VariableRegime); ok {
		return "variable"
	}
	return "fixed"
}

func (s *incomeServiceImpl) MonthlyIncome(userID, holderID int64, on *civil.Date) (*models.MonthlyIncome, error) {
	date := s.clock.Today()
	if on != nil {
		date = *on
	}

	cacheKey := fmt.Sprintf(ckMonthlyIncome, userID, holderID, date)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.(*models.MonthlyIncome), nil
	}

	holder, bond, err := loadOwnedHolding(s.db, userID, holderID)
	if err != nil {
		return nil, err
	}
	rate, err := model.GetApplicableReferenceRate(s.db, date)
	if err != nil {
		return nil, fmt.Errorf("error loading reference rate for %s: %w", date, err)
	}

	regime, err := s.accrualProcessor.ResolveRegime(*holder, *bond, rate, date)
	if err != nil {
		logger.L.Error("Reference rate history incomplete", "holderID", holderID, "date", date.String(), "error", err)
		return nil, err
	}
	amount, err := s.accrualProcessor.IncomeUnder(*holder, *bond, regime, date)
	if err != nil {
		return nil, err
	}

	result := &models.MonthlyIncome{
		HolderID:  holderID,
		Date:      date,
		Regime:    regimeName(regime),
		NetAmount: amount,
		Formatted: models.FormatAmount(amount, s.currency),
		Currency:  s.currency,
	}
	s.reportCache.Set(cacheKey, result, cache.DefaultExpiration)
	return result, nil
}

func (s *incomeServiceImpl) buildIncomeReport(holder *model.BondHolder, bond *model.Bond, rates []model.ReferenceRate, start, end civil.Date) (*models.IncomeReport, error) {
	payments, err := s.accrualProcessor.IncomeForPeriod(*holder, *bond, rates, start, end)
	if err != nil {
		if errors.Is(err, processors.ErrNoReferenceRate) {
			logger.L.Error("Reference rate history incomplete", "holderID", holder.ID, "start", start.String(), "end", end.String(), "error", err)
		}
		return nil, err
	}

	points := make([]models.IncomePoint, 0, len(payments))
	for _, p := range payments {
		points = append(points, models.IncomePoint{
			Date:      p.Date,
			NetAmount: p.Amount,
			Formatted: models.FormatAmount(p.Amount, s.currency),
		})
	}
	total := processors.TotalIncome(payments)
	return &models.IncomeReport{
		HolderID:       holder.ID,
		Series:         bond.Series,
		Start:          start,
		End:            end,
		Points:         points,
		Total:          total,
		TotalFormatted: models.FormatAmount(total, s.currency),
		Currency:       s.currency,
	}, nil
}

func (s *incomeServiceImpl) IncomeForPeriod(userID, holderID int64, start, end civil.Date) (*models.IncomeReport, error) {
	cacheKey := fmt.Sprintf(ckIncomeForPeriod, userID, holderID, start, end)
	if cached, found := s.reportCache.Get(cacheKey); found {
		logger.L.Debug("Income report served from cache", "userID", userID, "holderID", holderID)
		return cached.(*models.IncomeReport), nil
	}

	holder, bond, err := loadOwnedHolding(s.db, userID, holderID)
	if err != nil {
		return nil, err
	}
	rates, err := model.ListReferenceRatesUpTo(s.db, end)
	if err != nil {
		return nil, err
	}

	report, err := s.buildIncomeReport(holder, bond, rates, start, end)
	if err != nil {
		return nil, err
	}
	logger.L.Debug("Income report computed", "userID", userID, "holderID", holderID, "points", len(report.Points))
	s.reportCache.Set(cacheKey, report, cache.DefaultExpiration)
	return report, nil
}

func (s *incomeServiceImpl) PortfolioIncomeForPeriod(userID int64, start, end civil.Date) (*models.PortfolioIncomeReport, error) {
	cacheKey := fmt.Sprintf(ckPortfolioIncome, userID, start, end)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.(*models.PortfolioIncomeReport), nil
	}

	holders, err := model.ListBondHoldersByUser(s.db, userID)
	if err != nil {
		return nil, err
	}
	rates, err := model.ListReferenceRatesUpTo(s.db, end)
	if err != nil {
		return nil, err
	}
	bonds, err := s.bondsByID(holders)
	if err != nil {
		return nil, err
	}

	result := &models.PortfolioIncomeReport{
		Start:    start,
		End:      end,
		Holdings: make([]models.IncomeReport, 0, len(holders)),
		Total:    decimal.Zero,
		Currency: s.currency,
	}
	for i := range holders {
		report, err := s.buildIncomeReport(&holders[i], bonds[holders[i].BondID], rates, start, end)
		if err != nil {
			return nil, fmt.Errorf("holding %d: %w", holders[i].ID, err)
		}
		result.Holdings = append(result.Holdings, *report)
		result.Total = result.Total.Add(report.Total)
	}
	result.TotalFormatted = models.FormatAmount(result.Total, s.currency)

	s.reportCache.Set(cacheKey, result, cache.DefaultExpiration)
	return result, nil
}

func (s *incomeServiceImpl) bondsByID(holders []model.BondHolder) (map[int64]*model.Bond, error) {
	bonds := make(map[int64]*model.Bond)
	for _, h := range holders {
		if _, ok := bonds[h.BondID]; ok {
			continue
		}
		b, err := model.GetBondByID(s.db, h.BondID)
		if err != nil {
			return nil, fmt.Errorf("error loading bond %d: %w", h.BondID, err)
		}
		bonds[h.BondID] = b
	}
	return bonds, nil
}

func (s *incomeServiceImpl) EquityHistory(userID int64) ([]models.EquityPoint, error) {
	today := s.clock.Today()
	cacheKey := fmt.Sprintf(ckEquityHistory, userID, today)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.([]models.EquityPoint), nil
	}

	holders, err := model.ListBondHoldersByUser(s.db, userID)
	if err != nil {
		return nil, err
	}
	bonds, err := s.bondsByID(holders)
	if err != nil {
		return nil, err
	}

	positions := make([]processors.HoldingValue, 0, len(holders))
	for _, h := range holders {
		positions = append(positions, processors.HoldingValue{Holder: h, FaceValue: bonds[h.BondID].NominalValue})
	}

	series := s.equityProcessor.History(positions)
	points := make([]models.EquityPoint, 0, len(series))
	for _, p := range series {
		points = append(points, models.EquityPoint{
			Date:      p.Date,
			Equity:    p.Equity,
			Formatted: models.FormatAmount(p.Equity, s.currency),
		})
	}
	logger.L.Debug("Equity history computed", "userID", userID, "points", len(points))
	s.reportCache.Set(cacheKey, points, cache.DefaultExpiration)
	return points, nil
}
