package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/bondfolio/backend/src/database"
	"github.com/username/bondfolio/backend/src/logger"
	"github.com/username/bondfolio/backend/src/model"
	"github.com/username/bondfolio/backend/src/utils"
)

type DeleteAccountRequest struct {
	Password string `json:"password"`
}

func (h *UserHandler) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req DeleteAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := model.GetUserByID(database.DB, userID)
	if err != nil {
		ctxLogger.Error("Failed to get user for account deletion", "error", err)
		sendJSONError(w, "Failed to retrieve user information", http.StatusInternalServerError)
		return
	}

	// Only local accounts have a password to confirm.
	if user.AuthProvider == "local" {
		if err := user.CheckPassword(req.Password); err != nil {
			ctxLogger.Warn("Password mismatch for account deletion")
			sendJSONError(w, "Incorrect password. Account deletion failed.", http.StatusForbidden)
			return
		}
	}

	if err := model.DeleteUserAccount(database.DB, userID); err != nil {
		ctxLogger.Error("Failed to delete account", "error", err)
		sendJSONError(w, "Failed to delete account", http.StatusInternalServerError)
		return
	}
	h.incomeService.InvalidateUserCache(userID)

	ctxLogger.Info("Account deleted successfully")
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) HandleCheckUserData(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	hasData, err := h.holdingService.HasHoldings(userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Error checking user data", "error", err)
		sendJSONError(w, "failed to check user data", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, map[string]bool{"hasData": hasData}, http.StatusOK)
}
