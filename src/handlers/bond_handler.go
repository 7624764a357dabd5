// backend/src/handlers/bond_handler.go
package handlers

import (
	"encoding/json"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/username/bondfolio/backend/src/logger"
	"github.com/username/bondfolio/backend/src/security/validation"
	"github.com/username/bondfolio/backend/src/services"
	"github.com/username/bondfolio/backend/src/utils"
)

type BondHandler struct {
	bondService services.BondService
}

func NewBondHandler(bondService services.BondService) *BondHandler {
	return &BondHandler{bondService: bondService}
}

// idParam reads a positive int64 URL parameter.
func idParam(r *http.Request, name string) (int64, bool) {
	id, err := validation.ValidateIntString(chi.URLParam(r, name), name, 1, math.MaxInt)
	if err != nil {
		return 0, false
	}
	return int64(id), true
}

func (h *BondHandler) HandleListBonds(w http.ResponseWriter, r *http.Request) {
	bonds, err := h.bondService.ListBonds()
	if err != nil {
		writeServiceError(w, r, err, "Failed to list bonds")
		return
	}
	utils.SendJSON(w, bonds, http.StatusOK)
}

func (h *BondHandler) HandleGetBond(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		utils.SendJSONError(w, "Invalid bond ID", http.StatusBadRequest)
		return
	}
	bond, err := h.bondService.GetBond(id)
	if err != nil {
		writeServiceError(w, r, err, "Failed to load bond")
		return
	}
	utils.SendJSON(w, bond, http.StatusOK)
}

func (h *BondHandler) HandleCreateBond(w http.ResponseWriter, r *http.Request) {
	var input services.BondInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	bond, err := h.bondService.CreateBond(input)
	if err != nil {
		writeServiceError(w, r, err, "Failed to create bond")
		return
	}
	logger.FromContext(r.Context()).Info("Bond created by admin", "bondID", bond.ID, "series", bond.Series)
	utils.SendJSON(w, bond, http.StatusCreated)
}
