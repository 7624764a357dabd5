// backend/src/handlers/holding_handler.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/bondfolio/backend/src/services"
	"github.com/username/bondfolio/backend/src/utils"
)

type HoldingHandler struct {
	holdingService services.HoldingService
}

func NewHoldingHandler(holdingService services.HoldingService) *HoldingHandler {
	return &HoldingHandler{holdingService: holdingService}
}

func (h *HoldingHandler) HandleListHoldings(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	holdings, err := h.holdingService.ListHoldings(userID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to list holdings")
		return
	}
	utils.SendJSON(w, holdings, http.StatusOK)
}

func (h *HoldingHandler) HandlePurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req services.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	holding, err := h.holdingService.Purchase(userID, req)
	if err != nil {
		writeServiceError(w, r, err, "Failed to record purchase")
		return
	}
	utils.SendJSON(w, holding, http.StatusCreated)
}

func (h *HoldingHandler) HandleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
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

	var req struct {
		Quantity int64 `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	holding, err := h.holdingService.UpdateQuantity(userID, holderID, req.Quantity)
	if err != nil {
		writeServiceError(w, r, err, "Failed to update holding")
		return
	}
	utils.SendJSON(w, holding, http.StatusOK)
}

func (h *HoldingHandler) HandleDeleteHolding(w http.ResponseWriter, r *http.Request) {
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

	if err := h.holdingService.Delete(userID, holderID); err != nil {
		writeServiceError(w, r, err, "Failed to delete holding")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
