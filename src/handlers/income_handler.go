// backend/src/handlers/income_handler.go
package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/username/bondfolio/backend/src/logger"
	"github.com/username/bondfolio/backend/src/models"
	"github.com/username/bondfolio/backend/src/security/validation"
	"github.com/username/bondfolio/backend/src/services"
	"github.com/username/bondfolio/backend/src/utils"
)

type IncomeHandler struct {
	incomeService services.IncomeService
}

func NewIncomeHandler(incomeService services.IncomeService) *IncomeHandler {
	return &IncomeHandler{incomeService: incomeService}
}

func dateRangeParams(r *http.Request) (civil.Date, civil.Date, error) {
	start, err := validation.ValidateDateString(r.URL.Query().Get("start"), "start")
	if err != nil {
		return civil.Date{}, civil.Date{}, err
	}
	end, err := validation.ValidateDateString(r.URL.Query().Get("end"), "end")
	if err != nil {
		return civil.Date{}, civil.Date{}, err
	}
	if err := validation.ValidateDateRange(start, end); err != nil {
		return civil.Date{}, civil.Date{}, err
	}
	return start, end, nil
}

// writeWithETag answers 304 when If-None-Match carries the current ETag of data.
func writeWithETag(w http.ResponseWriter, r *http.Request, data any) {
	ctxLogger := logger.FromContext(r.Context())
	w.Header().Set("Cache-Control", "no-cache, private")

	etag, err := utils.GenerateETag(data)
	if err != nil {
		ctxLogger.Error("Failed to generate ETag", "error", err)
	} else {
		w.Header().Set("ETag", etag)
		for _, clientETag := range strings.Split(r.Header.Get("If-None-Match"), ",") {
			if strings.TrimSpace(clientETag) == etag {
				ctxLogger.Debug("ETag match", "etag", etag)
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	}
	utils.SendJSON(w, data, http.StatusOK)
}

func writeIncomeCSV(w http.ResponseWriter, r *http.Request, report *models.IncomeReport) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="income_%d_%s_%s.csv"`, report.HolderID, report.Start, report.End))

	cw := csv.NewWriter(w)
	series := validation.SanitizeForFormulaInjection(report.Series)
	records := [][]string{{"series", "date", "net_amount"}}
	for _, p := range report.Points {
		records = append(records, []string{series, p.Date.String(), p.NetAmount.String()})
	}
	records = append(records, []string{series, "total", report.Total.String()})
	if err := cw.WriteAll(records); err != nil {
		logger.FromContext(r.Context()).Error("Failed to write income CSV", "holderID", report.HolderID, "error", err)
	}
}

// HandleGetMonthlyIncome returns the income of one holding on ?date=, or today.
func (h *IncomeHandler) HandleGetMonthlyIncome(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	holderID, ok := idParam(r, "id")
	if !ok {
		utils.SendJSONError(w, "Invalid holding ID", http.StatusBadRequest)
		return
	}

	var on *civil.Date
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := validation.ValidateDateString(raw, "date")
		if err != nil {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		on = &d
	}

	income, err := h.incomeService.MonthlyIncome(userID, holderID, on)
	if err != nil {
		writeServiceError(w, r, err, "Failed to compute monthly income")
		return
	}
	utils.SendJSON(w, income, http.StatusOK)
}

func (h *IncomeHandler) HandleGetIncomeForPeriod(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	holderID, ok := idParam(r, "id")
	if !ok {
		utils.SendJSONError(w, "Invalid holding ID", http.StatusBadRequest)
		return
	}
	start, end, err := dateRangeParams(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := h.incomeService.IncomeForPeriod(userID, holderID, start, end)
	if err != nil {
		writeServiceError(w, r, err, "Failed to compute income for period")
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		writeIncomeCSV(w, r, report)
		return
	}
	writeWithETag(w, r, report)
}

func (h *IncomeHandler) HandleGetPortfolioIncome(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	start, end, err := dateRangeParams(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := h.incomeService.PortfolioIncomeForPeriod(userID, start, end)
	if err != nil {
		writeServiceError(w, r, err, "Failed to compute portfolio income")
		return
	}
	writeWithETag(w, r, report)
}

func (h *IncomeHandler) HandleGetEquityHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	points, err := h.incomeService.EquityHistory(userID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to compute equity history")
		return
	}
	writeWithETag(w, r, points)
}
