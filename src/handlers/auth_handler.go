package handlers

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
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

func newOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func recordLogin(r *http.Request, userID int64) {
	if err := model.RecordLogin(database.DB, userID, r.RemoteAddr, r.UserAgent()); err != nil {
		logger.FromContext(r.Context()).Error("Failed to record login", "userID", userID, "error", err)
	}
}

// issueSession creates an access/refresh token pair backed by a session row.
func (h *UserHandler) issueSession(r *http.Request, userID int64) (accessToken, refreshToken string, err error) {
	accessToken, err = h.authService.GenerateToken(fmt.Sprintf("%d", userID))
	if err != nil {
		return "", "", err
	}
	refreshToken, err = h.authService.GenerateRefreshToken()
	if err != nil {
		return "", "", err
	}
	session := &model.Session{
		UserID:       userID,
		Token:        accessToken,
		RefreshToken: refreshToken,
		UserAgent:    r.UserAgent(),
		ClientIP:     r.RemoteAddr,
		ExpiresAt:    time.Now().Add(config.Cfg.RefreshTokenExpiry),
	}
	if err := model.CreateSession(database.DB, session); err != nil {
		return "", "", fmt.Errorf("failed to create session: %w", err)
	}
	return accessToken, refreshToken, nil
}

func userPayload(user *model.User) map[string]any {
	return map[string]any{
		"id":            user.ID,
		"username":      user.Username,
		"email":         user.Email,
		"auth_provider": user.AuthProvider,
		"is_admin":      config.Cfg.IsAdminEmail(user.Email),
		"mfa_enabled":   user.MfaEnabled,
	}
}

func (h *UserHandler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	var credentials struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	credentials.Username = validation.CleanInput(credentials.Username)
	credentials.Email = strings.ToLower(validation.SanitizeText(strings.TrimSpace(credentials.Email)))
	credentials.Password = strings.TrimSpace(credentials.Password)

	if credentials.Username == "" && strings.Contains(credentials.Email, "@") {
		credentials.Username = strings.Split(credentials.Email, "@")[0]
	}

	if err := validation.ValidateUsername(credentials.Username); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateEmail(credentials.Email); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidatePassword(credentials.Password); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := model.GetUserByUsername(database.DB, credentials.Username); err == nil {
		sendJSONError(w, "Username already exists", http.StatusConflict)
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		ctxLogger.Error("Error checking username uniqueness", "error", err)
		sendJSONError(w, "Failed to process registration", http.StatusInternalServerError)
		return
	}

	if _, err := model.GetUserByEmail(database.DB, credentials.Email); err == nil {
		sendJSONError(w, "Email address already in use", http.StatusConflict)
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		ctxLogger.Error("Error checking email uniqueness", "error", err)
		sendJSONError(w, "Failed to process registration", http.StatusInternalServerError)
		return
	}

	hashedPassword, err := h.authService.HashPassword(credentials.Password)
	if err != nil {
		ctxLogger.Error("Failed to hash password", "error", err)
		sendJSONError(w, "Failed to process registration", http.StatusInternalServerError)
		return
	}

	verificationToken, err := newOpaqueToken()
	if err != nil {
		ctxLogger.Error("Failed to generate verification token", "error", err)
		sendJSONError(w, "Failed to process registration", http.StatusInternalServerError)
		return
	}

	user := &model.User{
		Username:                        credentials.Username,
		Email:                           credentials.Email,
		Password:                        hashedPassword,
		AuthProvider:                    "local",
		EmailVerificationToken:          verificationToken,
		EmailVerificationTokenExpiresAt: time.Now().Add(config.Cfg.VerificationTokenExpiry),
	}
	if err := user.CreateUser(database.DB); err != nil {
		ctxLogger.Error("Failed to create user in DB", "error", err)
		sendJSONError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}
	ctxLogger.Info("User registered, verification email to be sent", "userID", user.ID)

	if err := h.emailService.SendVerificationEmail(user.Email, user.Username, verificationToken); err != nil {
		ctxLogger.Error("Failed to send verification email after user creation", "userID", user.ID, "error", err)
		utils.SendJSON(w, map[string]string{
			"message": "User registered, but the verification e-mail could not be sent. Please try again later.",
			"warning": "email_not_sent",
		}, http.StatusCreated)
		return
	}

	utils.SendJSON(w, map[string]string{
		"message": "User registered. Please check your e-mail to confirm your account.",
	}, http.StatusCreated)
}

func (h *UserHandler) resendVerification(r *http.Request, user *model.User) {
	ctxLogger := logger.FromContext(r.Context())
	token, err := newOpaqueToken()
	if err != nil {
		ctxLogger.Error("Failed to generate new verification token on login attempt", "userID", user.ID, "error", err)
		return
	}
	if err := user.UpdateUserVerificationToken(database.DB, token, time.Now().Add(config.Cfg.VerificationTokenExpiry)); err != nil {
		ctxLogger.Error("Failed to update verification token in DB on login attempt", "userID", user.ID, "error", err)
		return
	}
	if err := h.emailService.SendVerificationEmail(user.Email, user.Username, token); err != nil {
		ctxLogger.Error("Failed to resend verification email on login attempt", "userID", user.ID, "error", err)
		return
	}
	ctxLogger.Info("Resent verification email on login attempt", "userID", user.ID)
}

func (h *UserHandler) LoginUserHandler(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	var credentials struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		MfaCode  string `json:"mfa_code"`
	}

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		ctxLogger.Warn("Invalid request body for login", "error", err)
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	credentials.Email = strings.ToLower(validation.SanitizeText(strings.TrimSpace(credentials.Email)))

	user, err := model.GetUserByEmail(database.DB, credentials.Email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			ctxLogger.Error("User lookup by email failed for login", "error", err)
		}
		sendJSONError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	if user.AuthProvider != "local" || user.CheckPassword(credentials.Password) != nil {
		ctxLogger.Warn("Password check failed for login", "userID", user.ID)
		sendJSONError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	if !user.IsEmailVerified {
		ctxLogger.Warn("Login attempt failed: email not verified", "userID", user.ID)
		h.resendVerification(r, user)
		utils.SendJSON(w, map[string]string{
			"error": "Your e-mail address is not verified yet. A new verification link has been sent.",
			"code":  "EMAIL_NOT_VERIFIED",
		}, http.StatusForbidden)
		return
	}

	if user.MfaEnabled {
		if credentials.MfaCode == "" {
			utils.SendJSON(w, map[string]string{
				"error": "MFA code required",
				"code":  "MFA_REQUIRED",
			}, http.StatusUnauthorized)
			return
		}
		if !h.mfaService.ValidateToken(user.MfaSecret, credentials.MfaCode) {
			ctxLogger.Warn("Invalid MFA code on login", "userID", user.ID)
			sendJSONError(w, "Invalid MFA code", http.StatusUnauthorized)
			return
		}
	}

	recordLogin(r, user.ID)

	accessToken, refreshToken, err := h.issueSession(r, user.ID)
	if err != nil {
		ctxLogger.Error("Failed to issue session", "userID", user.ID, "error", err)
		sendJSONError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	ctxLogger.Info("User login successful", "userID", user.ID)
	utils.SendJSON(w, map[string]any{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"user":          userPayload(user),
	}, http.StatusOK)
}

func (h *UserHandler) RefreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	var requestBody struct {
		RefreshToken string `json:"refresh_token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if requestBody.RefreshToken == "" {
		sendJSONError(w, "Refresh token is required", http.StatusBadRequest)
		return
	}

	oldSession, err := model.GetSessionByRefreshToken(database.DB, requestBody.RefreshToken)
	if err != nil {
		ctxLogger.Warn("Refresh token lookup failed or token invalid/expired", "error", err)
		sendJSONError(w, "Invalid or expired refresh token", http.StatusUnauthorized)
		return
	}

	if err := model.DeleteSessionByRefreshToken(database.DB, requestBody.RefreshToken); err != nil {
		ctxLogger.Error("Failed to delete old session during refresh", "refreshTokenPrefix", tokenPrefix(requestBody.RefreshToken), "error", err)
	}

	accessToken, refreshToken, err := h.issueSession(r, oldSession.UserID)
	if err != nil {
		ctxLogger.Error("Failed to issue session on refresh", "userID", oldSession.UserID, "error", err)
		sendJSONError(w, "Failed to create new session on refresh", http.StatusInternalServerError)
		return
	}

	ctxLogger.Info("Token refreshed successfully", "userID", oldSession.UserID)
	utils.SendJSON(w, map[string]string{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	}, http.StatusOK)
}

func (h *UserHandler) LogoutUserHandler(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	tokenString := bearerToken(r)
	if tokenString == "" {
		ctxLogger.Warn("Logout attempt with no token in Authorization header")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := model.DeleteSessionByToken(database.DB, tokenString); err != nil {
		ctxLogger.Warn("Failed to delete session on logout", "tokenPrefix", tokenPrefix(tokenString), "error", err)
	} else {
		ctxLogger.Info("Session invalidated on logout", "tokenPrefix", tokenPrefix(tokenString))
	}
	w.WriteHeader(http.StatusNoContent)
}
