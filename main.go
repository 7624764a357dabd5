package main

import (
	"crypto/tls"
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/username/bondfolio/backend/src/calendar"
	"github.com/username/bondfolio/backend/src/config"
	"github.com/username/bondfolio/backend/src/database"
	"github.com/username/bondfolio/backend/src/handlers"
	"github.com/username/bondfolio/backend/src/logger"
	"github.com/username/bondfolio/backend/src/models"
	"github.com/username/bondfolio/backend/src/parsers/ratecsv"
	"github.com/username/bondfolio/backend/src/processors"
	"github.com/username/bondfolio/backend/src/security"
	"github.com/username/bondfolio/backend/src/services"
	"golang.org/x/time/rate"
)

func proxyHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-Proto") == "https" {
			r.URL.Scheme = "https"
			r.TLS = &tls.ConnectionState{}
		}
		next.ServeHTTP(w, r)
	})
}

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			logger.FromContext(r.Context()).Warn("Rate limit exceeded", "path", r.URL.Path)
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{"http://localhost:3000": true}
	allowedOrigins[strings.TrimSuffix(config.Cfg.FrontendBaseURL, "/")] = true
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Requested-With, Cookie, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "X-CSRF-Token, ETag, X-Request-ID")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("Bondfolio backend server starting...")

	if len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid: at least 32 characters are required")
		os.Exit(1)
	}
	currency, err := models.NormalizeReportCurrency(config.Cfg.ReportCurrency)
	if err != nil {
		logger.L.Error("REPORT_CURRENCY configuration invalid", "error", err)
		os.Exit(1)
	}
	config.Cfg.ReportCurrency = currency
	if !models.IsKnownCurrency(config.Cfg.ReportCurrency) {
		logger.L.Warn("REPORT_CURRENCY is not a known ISO code, amounts will be shown without a symbol", "currency", config.Cfg.ReportCurrency)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations()

	handlers.InitializeGoogleOAuthConfig()

	clock := calendar.SystemClock{}
	reportCache := services.NewReportCache(config.Cfg.ReportCacheExpiration)

	authService := security.NewAuthService(config.Cfg.JWTSecret, config.Cfg.AccessTokenExpiry)
	emailService := services.NewEmailService(config.Cfg)
	mfaService := services.NewMFAService(config.Cfg.MFAIssuer)

	accrualProcessor := processors.NewAccrualProcessor(clock)
	equityProcessor := processors.NewEquityProcessor(clock)

	bondService := services.NewBondService(database.DB)
	holdingService := services.NewHoldingService(database.DB, clock, reportCache, config.Cfg.ReportCurrency)
	rateService := services.NewReferenceRateService(database.DB, ratecsv.NewParser(), reportCache)
	incomeService := services.NewIncomeService(database.DB, accrualProcessor, equityProcessor, clock, reportCache, config.Cfg.ReportCurrency)

	userHandler := handlers.NewUserHandler(authService, emailService, mfaService, holdingService, incomeService)
	bondHandler := handlers.NewBondHandler(bondService)
	holdingHandler := handlers.NewHoldingHandler(holdingService)
	incomeHandler := handlers.NewIncomeHandler(incomeService)
	rateHandler := handlers.NewRateHandler(rateService)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(proxyHeadersMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Bondfolio backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		// Public
		r.Group(func(r chi.Router) {
			r.Get("/auth/csrf", handlers.GetCSRFToken(config.Cfg.CSRFAuthKey))
			r.Get("/auth/verify-email", userHandler.VerifyEmailHandler)
			r.Get("/auth/google/login", userHandler.HandleGoogleLogin)
			r.Get("/auth/google/callback", userHandler.HandleGoogleCallback)
		})

		// Authentication, CSRF protected
		r.Group(func(r chi.Router) {
			r.Use(handlers.CSRFMiddleware(config.Cfg.CSRFAuthKey))
			r.Post("/auth/login", userHandler.LoginUserHandler)
			r.Post("/auth/register", userHandler.RegisterUserHandler)
			r.Post("/auth/refresh", userHandler.RefreshTokenHandler)
			r.With(userHandler.AuthMiddleware).Post("/auth/logout", userHandler.LogoutUserHandler)
			r.Post("/auth/request-password-reset", userHandler.RequestPasswordResetHandler)
			r.Post("/auth/reset-password", userHandler.ResetPasswordHandler)
		})

		// Authenticated, CSRF protected
		r.Group(func(r chi.Router) {
			r.Use(handlers.CSRFMiddleware(config.Cfg.CSRFAuthKey))
			r.Use(userHandler.AuthMiddleware)

			r.Get("/bonds", bondHandler.HandleListBonds)
			r.Get("/bonds/{id}", bondHandler.HandleGetBond)

			r.Get("/holdings", holdingHandler.HandleListHoldings)
			r.Post("/holdings", holdingHandler.HandlePurchase)
			r.Patch("/holdings/{id}", holdingHandler.HandleUpdateQuantity)
			r.Delete("/holdings/{id}", holdingHandler.HandleDeleteHolding)
			r.Get("/holdings/{id}/income", incomeHandler.HandleGetMonthlyIncome)
			r.Get("/holdings/{id}/income/period", incomeHandler.HandleGetIncomeForPeriod)

			r.Get("/income/period", incomeHandler.HandleGetPortfolioIncome)
			r.Get("/equity/history", incomeHandler.HandleGetEquityHistory)
			r.Get("/reference-rates", rateHandler.HandleListRates)

			r.Get("/user/has-data", userHandler.HandleCheckUserData)
			r.Post("/user/change-password", userHandler.ChangePasswordHandler)
			r.Post("/user/delete-account", userHandler.DeleteAccountHandler)

			// Admin
			r.Group(func(r chi.Router) {
				r.Use(userHandler.AdminMiddleware)
				r.Post("/admin/bonds", bondHandler.HandleCreateBond)
				r.Post("/admin/reference-rates", rateHandler.HandleAddRate)
				r.Post("/admin/reference-rates/upload", rateHandler.HandleUploadRates)
				r.Post("/admin/cache/clear", userHandler.HandleAdminClearReportCache)
				r.Get("/admin/mfa/setup", userHandler.HandleSetupMFA)
				r.Post("/admin/mfa/enable", userHandler.HandleActivateMFA)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Not found"})
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
