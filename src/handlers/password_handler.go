package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/username/bondfolio/backend/src/config"
	"github.com/username/bondfolio/backend/src/database"
	"github.com/username/bondfolio/backend/src/logger"
	"github.com/username/bondfolio/backend/src/model"
	"github.com/username/bondfolio/backend/src/security/validation"
	"github.com/username/bondfolio/backend/src/utils"
)

const passwordResetGenericMessage = "If an account with that email exists and is verified, a password reset link has been sent."

type ChangePasswordRequest struct {
	CurrentPassword    string `json:"current_password"`
	NewPassword        string `json:"new_password"`
	ConfirmNewPassword string `json:"confirm_new_password"`
}

func (h *UserHandler) RequestPasswordResetHandler(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validation.ValidateEmail(req.Email); err != nil {
		sendJSONError(w, "Invalid email format", http.StatusBadRequest)
		return
	}

	user, err := model.GetUserByEmail(database.DB, req.Email)
	if err != nil {
		ctxLogger.Info("Password reset requested for unknown email, sending generic response", "errorIfAny", err)
		utils.SendJSON(w, map[string]string{"message": passwordResetGenericMessage}, http.StatusOK)
		return
	}
	if !user.IsEmailVerified || user.AuthProvider != "local" {
		ctxLogger.Info("Password reset requested for ineligible account, sending generic response", "userID", user.ID)
		utils.SendJSON(w, map[string]string{"message": passwordResetGenericMessage}, http.StatusOK)
		return
	}

	resetToken, err := newOpaqueToken()
	if err != nil {
		ctxLogger.Error("Failed to generate password reset token", "error", err)
		sendJSONError(w, "Failed to process password reset request", http.StatusInternalServerError)
		return
	}

	if err := user.SetPasswordResetToken(database.DB, resetToken, time.Now().Add(config.Cfg.PasswordResetTokenExpiry)); err != nil {
		ctxLogger.Error("Failed to set password reset token in DB", "userID", user.ID, "error", err)
		sendJSONError(w, "Failed to process password reset request", http.StatusInternalServerError)
		return
	}

	if err := h.emailService.SendPasswordResetEmail(user.Email, user.Username, resetToken); err != nil {
		ctxLogger.Error("Failed to send password reset email", "userID", user.ID, "error", err)
	}

	ctxLogger.Info("Password reset email process initiated", "userID", user.ID)
	utils.SendJSON(w, map[string]string{"message": passwordResetGenericMessage}, http.StatusOK)
}

func (h *UserHandler) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	var req struct {
		Token           string `json:"token"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Token == "" {
		sendJSONError(w, "Password reset token is missing", http.StatusBadRequest)
		return
	}
	if req.Password != req.ConfirmPassword {
		sendJSONError(w, "Passwords do not match", http.StatusBadRequest)
		return
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := model.GetUserByPasswordResetToken(database.DB, req.Token)
	if err != nil {
		ctxLogger.Warn("Password reset token lookup failed or token expired", "tokenPrefix", tokenPrefix(req.Token), "error", err)
		sendJSONError(w, "Invalid or expired password reset token.", http.StatusBadRequest)
		return
	}

	hashedPassword, err := h.authService.HashPassword(req.Password)
	if err != nil {
		ctxLogger.Error("Failed to hash new password", "userID", user.ID, "error", err)
		sendJSONError(w, "Failed to reset password", http.StatusInternalServerError)
		return
	}

	if err := user.UpdatePassword(database.DB, hashedPassword); err != nil {
		ctxLogger.Error("Failed to update password in DB", "userID", user.ID, "error", err)
		sendJSONError(w, "Failed to reset password", http.StatusInternalServerError)
		return
	}

	ctxLogger.Info("Password reset successfully", "userID", user.ID)
	utils.SendJSON(w, map[string]string{"message": "Password has been reset successfully. You can now log in with your new password."}, http.StatusOK)
}

func (h *UserHandler) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.NewPassword != req.ConfirmNewPassword {
		sendJSONError(w, "New passwords do not match", http.StatusBadRequest)
		return
	}
	if err := validation.ValidatePassword(req.NewPassword); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := model.GetUserByID(database.DB, userID)
	if err != nil {
		ctxLogger.Error("Failed to get user for password change", "error", err)
		sendJSONError(w, "Failed to retrieve user information", http.StatusInternalServerError)
		return
	}

	if user.AuthProvider != "local" {
		ctxLogger.Warn("Attempt to change password for non-local account", "provider", user.AuthProvider)
		sendJSONError(w, "Password cannot be changed for accounts created via Google.", http.StatusForbidden)
		return
	}

	if err := user.CheckPassword(req.CurrentPassword); err != nil {
		ctxLogger.Warn("Current password mismatch for password change")
		sendJSONError(w, "Incorrect current password", http.StatusForbidden)
		return
	}

	hashedNewPassword, err := h.authService.HashPassword(req.NewPassword)
	if err != nil {
		ctxLogger.Error("Failed to hash new password", "error", err)
		sendJSONError(w, "Failed to process new password", http.StatusInternalServerError)
		return
	}

	if err := user.UpdatePassword(database.DB, hashedNewPassword); err != nil {
		ctxLogger.Error("Failed to update password in DB", "error", err)
		sendJSONError(w, "Failed to change password", http.StatusInternalServerError)
		return
	}

	ctxLogger.Info("Password changed successfully")
	utils.SendJSON(w, map[string]string{"message": "Password changed successfully."}, http.StatusOK)
}
