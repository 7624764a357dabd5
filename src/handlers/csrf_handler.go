package handlers

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/username/bondfolio/backend/src/logger"
	"github.com/username/bondfolio/backend/src/utils"
)

const (
	csrfCookieName = "_bondfolio_csrf"
	csrfHeaderName = "X-CSRF-Token"
)

func csrfSignature(csrfKey []byte, nonce string) string {
	mac := hmac.New(sha256.New, csrfKey)
	mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// newCSRFToken returns "<nonce>.<hmac(nonce)>".
func newCSRFToken(csrfKey []byte) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error generating random bytes for CSRF token: %w", err)
	}
	nonce := base64.RawURLEncoding.EncodeToString(b)
	return nonce + "." + csrfSignature(csrfKey, nonce), nil
}

func validCSRFToken(csrfKey []byte, token string) bool {
	nonce, sig, ok := strings.Cut(token, ".")
	if !ok || nonce == "" {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(csrfSignature(csrfKey, nonce)))
}

// GetCSRFToken issues a signed token both as a cookie and in the response body.
func GetCSRFToken(csrfKey []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := newCSRFToken(csrfKey)
		if err != nil {
			logger.FromContext(r.Context()).Error("Failed to generate CSRF token", "error", err)
			utils.SendJSONError(w, "Failed to generate CSRF token", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     csrfCookieName,
			Value:    token,
			Path:     "/",
			SameSite: http.SameSiteLaxMode,
			HttpOnly: true,
			Secure:   r.TLS != nil,
			MaxAge:   3600,
		})
		w.Header().Set(csrfHeaderName, token)
		utils.SendJSON(w, map[string]string{"csrfToken": token}, http.StatusOK)
	}
}

// CSRFMiddleware enforces the double-submit check on state-changing methods.
func CSRFMiddleware(csrfKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			headerToken := r.Header.Get(csrfHeaderName)
			cookie, errCookie := r.Cookie(csrfCookieName)
			if headerToken != "" && errCookie == nil &&
				hmac.Equal([]byte(headerToken), []byte(cookie.Value)) &&
				validCSRFToken(csrfKey, headerToken) {
				next.ServeHTTP(w, r)
				return
			}

			logger.FromContext(r.Context()).Warn("CSRF validation failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Bool("headerTokenPresent", headerToken != ""),
				slog.Bool("cookiePresent", errCookie == nil),
				slog.String("origin", r.Header.Get("Origin")),
			)
			utils.SendJSONError(w, "CSRF token validation failed", http.StatusForbidden)
		})
	}
}
