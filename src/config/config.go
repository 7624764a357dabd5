package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port         string
	DatabasePath string
	LogLevel     string

	// Security settings
	JWTSecret          string
	CSRFAuthKey        []byte
	OAuthStateString   string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	MaxUploadSizeBytes int64

	// Reporting
	ReportCurrency        string
	ReportCacheExpiration time.Duration

	// Email Service settings
	EmailServiceProvider string
	SenderEmail          string
	SenderName           string

	// SMTP specific settings
	SMTPServer   string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string

	// URL and Token Expiry settings for user actions
	VerificationEmailBaseURL string
	VerificationTokenExpiry  time.Duration
	PasswordResetBaseURL     string
	PasswordResetTokenExpiry time.Duration

	// Google OAuth settings
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Frontend URL for reference (e.g., CORS, redirects)
	FrontendBaseURL string

	// Admin Users
	AdminEmails []string

	// Issuer shown by authenticator apps for admin MFA
	MFAIssuer string
}

// Cfg is a global instance of the AppConfig.
var Cfg = Defaults()

// Defaults returns a configuration with every optional value at its default
// and no secrets. LoadConfig starts from the same values.
func Defaults() *AppConfig {
	return &AppConfig{
		Port:                     "8080",
		DatabasePath:             "./bondfolio.db",
		LogLevel:                 "info",
		AccessTokenExpiry:        60 * time.Minute,
		RefreshTokenExpiry:       168 * time.Hour,
		MaxUploadSizeBytes:       1024 * 1024,
		ReportCurrency:           "PLN",
		ReportCacheExpiration:    15 * time.Minute,
		EmailServiceProvider:     "smtp",
		SenderEmail:              "noreply@example.com",
		SenderName:               "Bondfolio",
		SMTPPort:                 587,
		FrontendBaseURL:          "http://localhost:3000",
		VerificationEmailBaseURL: "http://localhost:3000/verify-email",
		VerificationTokenExpiry:  24 * time.Hour,
		PasswordResetBaseURL:     "http://localhost:3000/reset-password",
		PasswordResetTokenExpiry: 1 * time.Hour,
		AdminEmails:              []string{},
		MFAIssuer:                "Bondfolio",
	}
}

// LoadConfig loads configuration from environment variables or a .env file.
func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}

	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found in current or parent directory. Relying on OS environment variables.")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")
	d := Defaults()

	jwtSecret := getRequiredEnv("JWT_SECRET")
	csrfAuthKeyStr := getRequiredEnv("CSRF_AUTH_KEY")

	oauthStateString := getEnv("OAUTH_STATE_STRING", "secure-random-state-string-for-dev-only")
	if oauthStateString == "secure-random-state-string-for-dev-only" {
		log.Println("WARNING: Using default OAUTH_STATE_STRING. Set this in production.")
	}

	maxUploadSizeBytesStr := getEnv("MAX_UPLOAD_SIZE_BYTES", strconv.FormatInt(d.MaxUploadSizeBytes, 10))
	maxUploadSizeBytes, err := strconv.ParseInt(maxUploadSizeBytesStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default. Error: %v", maxUploadSizeBytesStr, err)
		maxUploadSizeBytes = d.MaxUploadSizeBytes
	}

	frontendBaseURL := getEnv("APP_BASE_URL", d.FrontendBaseURL)
	apiBaseURL := getEnv("REACT_APP_API_BASE_URL", "http://localhost:8080")

	Cfg = &AppConfig{
		Port:         getEnv("PORT", d.Port),
		DatabasePath: getEnv("DATABASE_PATH", d.DatabasePath),
		LogLevel:     getEnv("LOG_LEVEL", d.LogLevel),

		JWTSecret:          jwtSecret,
		CSRFAuthKey:        []byte(csrfAuthKeyStr),
		OAuthStateString:   oauthStateString,
		AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", d.AccessTokenExpiry),
		RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", d.RefreshTokenExpiry),
		MaxUploadSizeBytes: maxUploadSizeBytes,

		ReportCurrency:        strings.ToUpper(getEnv("REPORT_CURRENCY", d.ReportCurrency)),
		ReportCacheExpiration: getEnvAsDuration("REPORT_CACHE_EXPIRATION", d.ReportCacheExpiration),

		EmailServiceProvider: getEnv("EMAIL_SERVICE_PROVIDER", d.EmailServiceProvider),
		SenderEmail:          getEnv("SENDER_EMAIL", d.SenderEmail),
		SenderName:           getEnv("SENDER_NAME", d.SenderName),
		SMTPServer:           getEnv("SMTP_SERVER", ""),
		SMTPPort:             getEnvAsInt("SMTP_PORT", d.SMTPPort),
		SMTPUser:             getEnv("SMTP_USER", ""),
		SMTPPassword:         getEnv("SMTP_PASSWORD", ""),

		FrontendBaseURL:          frontendBaseURL,
		VerificationEmailBaseURL: getEnv("VERIFICATION_EMAIL_BASE_URL", frontendBaseURL+"/verify-email"),
		VerificationTokenExpiry:  getEnvAsDuration("VERIFICATION_TOKEN_EXPIRY", d.VerificationTokenExpiry),
		PasswordResetBaseURL:     getEnv("PASSWORD_RESET_BASE_URL", frontendBaseURL+"/reset-password"),
		PasswordResetTokenExpiry: getEnvAsDuration("PASSWORD_RESET_TOKEN_EXPIRY", d.PasswordResetTokenExpiry),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", apiBaseURL+"/api/auth/google/callback"),

		AdminEmails: getAdminEmails("ADMIN_EMAILS"),
		MFAIssuer:   getEnv("MFA_ISSUER", d.MFAIssuer),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, FrontendURL=%s, ReportCurrency=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.FrontendBaseURL, Cfg.ReportCurrency)
	log.Printf("Admin emails loaded: %d", len(Cfg.AdminEmails))
}

// IsAdminEmail reports whether email is listed in ADMIN_EMAILS.
func (c *AppConfig) IsAdminEmail(email string) bool {
	for _, adminEmail := range c.AdminEmails {
		if strings.EqualFold(email, adminEmail) {
			return true
		}
	}
	return false
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getRequiredEnv retrieves an environment variable or terminates the application if not set.
func getRequiredEnv(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set or is empty. Application cannot start securely.", key)
	}
	return value
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

// getAdminEmails retrieves and parses the comma-separated list of admin emails.
func getAdminEmails(key string) []string {
	emailsStr := getEnv(key, "")
	if emailsStr == "" {
		return []string{}
	}
	emails := strings.Split(emailsStr, ",")
	for i, email := range emails {
		emails[i] = strings.TrimSpace(email)
	}
	return emails
}
