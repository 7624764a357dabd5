// backend/src/handlers/oauth_handler.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/username/bondfolio/backend/src/config"
	"github.com/username/bondfolio/backend/src/database"
	"github.com/username/bondfolio/backend/src/logger"
	"github.com/username/bondfolio/backend/src/model"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var googleOauthConfig *oauth2.Config

func InitializeGoogleOAuthConfig() {
	googleOauthConfig = &oauth2.Config{
		RedirectURL:  config.Cfg.GoogleRedirectURL,
		ClientID:     config.Cfg.GoogleClientID,
		ClientSecret: config.Cfg.GoogleClientSecret,
		Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email", "https://www.googleapis.com/auth/userinfo.profile"},
		Endpoint:     google.Endpoint,
	}
}

func signinRedirect(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, config.Cfg.FrontendBaseURL+"/signin?error="+url.QueryEscape(reason), http.StatusTemporaryRedirect)
}

func (h *UserHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if googleOauthConfig == nil || googleOauthConfig.ClientID == "" {
		sendJSONError(w, "Google sign-in is not configured", http.StatusServiceUnavailable)
		return
	}
	http.Redirect(w, r, googleOauthConfig.AuthCodeURL(config.Cfg.OAuthStateString), http.StatusTemporaryRedirect)
}

type googleUserInfo struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Verified bool   `json:"verified_email"`
	ID       string `json:"id"`
}

func (h *UserHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	if googleOauthConfig == nil || r.FormValue("state") != config.Cfg.OAuthStateString {
		ctxLogger.Warn("Invalid OAuth state from Google callback")
		signinRedirect(w, r, "invalid_state")
		return
	}

	token, err := googleOauthConfig.Exchange(r.Context(), r.FormValue("code"))
	if err != nil {
		ctxLogger.Error("Failed to exchange code for token", "error", err)
		signinRedirect(w, r, "token_exchange_failed")
		return
	}

	response, err := googleOauthConfig.Client(r.Context(), token).Get(googleUserInfoURL)
	if err != nil {
		ctxLogger.Error("Failed to get user info from Google", "error", err)
		signinRedirect(w, r, "userinfo_failed")
		return
	}
	defer response.Body.Close()

	var googleUser googleUserInfo
	if err := json.NewDecoder(response.Body).Decode(&googleUser); err != nil {
		ctxLogger.Error("Failed to decode Google user info", "error", err)
		signinRedirect(w, r, "userinfo_parse_failed")
		return
	}
	if !googleUser.Verified {
		signinRedirect(w, r, "email_not_verified_by_google")
		return
	}

	user, err := model.GetUserByEmail(database.DB, googleUser.Email)
	if err != nil {
		newUser := &model.User{
			Username:        googleUser.Email,
			Email:           googleUser.Email,
			AuthProvider:    "google",
			IsEmailVerified: true,
		}
		if err := newUser.CreateUser(database.DB); err != nil {
			ctxLogger.Error("Failed to create Google user", "error", err)
			signinRedirect(w, r, "user_creation_failed")
			return
		}
		user = newUser
	} else if user.AuthProvider == "local" || user.Password != "" {
		ctxLogger.Warn("Google login attempt for existing local account", "userID", user.ID)
		signinRedirect(w, r, "email_already_exists_local")
		return
	}

	recordLogin(r, user.ID)

	userJSON, err := json.Marshal(userPayload(user))
	if err != nil {
		ctxLogger.Error("Failed to marshal user object for frontend", "error", err)
		signinRedirect(w, r, "user_data_build_failed")
		return
	}

	accessToken, refreshToken, err := h.issueSession(r, user.ID)
	if err != nil {
		ctxLogger.Error("Failed to issue session for Google user", "userID", user.ID, "error", err)
		signinRedirect(w, r, "token_generation_failed")
		return
	}

	redirectURL := fmt.Sprintf("%s/auth/google/callback?token=%s&refresh_token=%s&user=%s",
		config.Cfg.FrontendBaseURL,
		url.QueryEscape(accessToken),
		url.QueryEscape(refreshToken),
		url.QueryEscape(string(userJSON)))
	http.Redirect(w, r, redirectURL, http.StatusTemporaryRedirect)
}
