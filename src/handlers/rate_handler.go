// backend/src/handlers/rate_handler.go
package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/username/bondfolio/backend/src/config"
	"github.com/username/bondfolio/backend/src/logger"
	"github.com/username/bondfolio/backend/src/security/validation"
	"github.com/username/bondfolio/backend/src/services"
	"github.com/username/bondfolio/backend/src/utils"
)

type RateHandler struct {
	rateService services.ReferenceRateService
}

func NewRateHandler(rateService services.ReferenceRateService) *RateHandler {
	return &RateHandler{rateService: rateService}
}

type addRateRequest struct {
	Value     decimal.Decimal `json:"value"`
	StartDate civil.Date      `json:"start_date"`
	EndDate   *civil.Date     `json:"end_date"`
}

func (h *RateHandler) HandleListRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.rateService.ListRates()
	if err != nil {
		writeServiceError(w, r, err, "Failed to list reference rates")
		return
	}
	utils.SendJSON(w, rates, http.StatusOK)
}

func (h *RateHandler) HandleAddRate(w http.ResponseWriter, r *http.Request) {
	var req addRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	rate, err := h.rateService.AddRate(req.Value, req.StartDate, req.EndDate)
	if err != nil {
		writeServiceError(w, r, err, "Failed to add reference rate")
		return
	}
	utils.SendJSON(w, rate, http.StatusCreated)
}

// HandleUploadRates replaces the rate history with an uploaded CSV file.
func (h *RateHandler) HandleUploadRates(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	maxSize := config.Cfg.MaxUploadSizeBytes
	tooLarge := fmt.Sprintf("File too large (max %d KB)", maxSize/1024)

	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1024)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		ctxLogger.Warn("Failed to parse multipart form or request too large", "error", err, "limit", maxSize)
		utils.SendJSONError(w, tooLarge, http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		ctxLogger.Warn("Failed to retrieve file from request", "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > maxSize {
		ctxLogger.Warn("Uploaded file header reports size too large", "fileSize", fileHeader.Size, "limit", maxSize)
		utils.SendJSONError(w, tooLarge, http.StatusBadRequest)
		return
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(clientContentType); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	detectedContentType, err := validation.ValidateFileContentByMagicBytes(file)
	if err != nil {
		ctxLogger.Warn("Server-side file content validation failed", "filename", fileHeader.Filename, "error", err)
		writeServiceError(w, r, err, "Failed to inspect uploaded file")
		return
	}
	ctxLogger.Debug("File content validated", "filename", fileHeader.Filename, "clientType", clientContentType, "detectedType", detectedContentType)

	content, err := io.ReadAll(io.LimitReader(file, maxSize))
	if err != nil {
		ctxLogger.Error("Failed to read uploaded file", "error", err)
		utils.SendJSONError(w, "Failed to read uploaded file", http.StatusBadRequest)
		return
	}
	if err := validation.ScanCSVContent(string(content), fileHeader.Filename); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	count, err := h.rateService.ImportRates(bytes.NewReader(content))
	if err != nil {
		writeServiceError(w, r, err, "Failed to import reference rates")
		return
	}

	ctxLogger.Info("Reference rates uploaded", "filename", fileHeader.Filename, "count", count)
	utils.SendJSON(w, map[string]any{"imported": count}, http.StatusOK)
}
