package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/bondfolio/backend/src/calendar"
	"github.com/username/bondfolio/backend/src/config"
	"github.com/username/bondfolio/backend/src/database"
	"github.com/username/bondfolio/backend/src/model"
	"github.com/username/bondfolio/backend/src/parsers/ratecsv"
	"github.com/username/bondfolio/backend/src/processors"
	"github.com/username/bondfolio/backend/src/security"
	"github.com/username/bondfolio/backend/src/security/validation"
	"github.com/username/bondfolio/backend/src/services"
)

const (
	testPassword = "correct-horse-battery"
	adminEmail   = "admin@example.com"
)

type testServer struct {
	router http.Handler
	csrf   []byte
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := database.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	prevDB, prevCfg := database.DB, config.Cfg
	database.DB = db
	cfg := config.Defaults()
	cfg.AdminEmails = []string{adminEmail}
	cfg.CSRFAuthKey = []byte("csrf-test-key")
	config.Cfg = cfg
	t.Cleanup(func() {
		database.DB, config.Cfg = prevDB, prevCfg
		db.Close()
	})

	clock := calendar.FixedClock(civil.Date{Year: 2024, Month: time.June, Day: 1})
	reportCache := services.NewReportCache(time.Minute)
	authService := security.NewAuthService("test-secret-with-at-least-32-characters", time.Hour)
	holdingService := services.NewHoldingService(db, clock, reportCache, "PLN")
	incomeService := services.NewIncomeService(db,
		processors.NewAccrualProcessor(clock), processors.NewEquityProcessor(clock),
		clock, reportCache, "PLN")

	userHandler := NewUserHandler(authService, services.NewEmailService(cfg), services.NewMFAService(cfg.MFAIssuer), holdingService, incomeService)
	bondHandler := NewBondHandler(services.NewBondService(db))
	holdingHandler := NewHoldingHandler(holdingService)
	incomeHandler := NewIncomeHandler(incomeService)
	rateHandler := NewRateHandler(services.NewReferenceRateService(db, ratecsv.NewParser(), reportCache))

	r := chi.NewRouter()
	r.Use(ContextualLoggerMiddleware)
	r.Route("/api", func(r chi.Router) {
		r.Get("/auth/csrf", GetCSRFToken(cfg.CSRFAuthKey))
		r.Post("/auth/login", userHandler.LoginUserHandler)
		r.Group(func(r chi.Router) {
			r.Use(userHandler.AuthMiddleware)
			r.Get("/bonds", bondHandler.HandleListBonds)
			r.Get("/holdings", holdingHandler.HandleListHoldings)
			r.Post("/holdings", holdingHandler.HandlePurchase)
			r.Patch("/holdings/{id}", holdingHandler.HandleUpdateQuantity)
			r.Delete("/holdings/{id}", holdingHandler.HandleDeleteHolding)
			r.Get("/holdings/{id}/income", incomeHandler.HandleGetMonthlyIncome)
			r.Get("/holdings/{id}/income/period", incomeHandler.HandleGetIncomeForPeriod)
			r.Get("/income/period", incomeHandler.HandleGetPortfolioIncome)
			r.Get("/equity/history", incomeHandler.HandleGetEquityHistory)
			r.Get("/user/has-data", userHandler.HandleCheckUserData)
			r.Group(func(r chi.Router) {
				r.Use(userHandler.AdminMiddleware)
				r.Post("/admin/bonds", bondHandler.HandleCreateBond)
				r.Post("/admin/reference-rates", rateHandler.HandleAddRate)
				r.Post("/admin/reference-rates/upload", rateHandler.HandleUploadRates)
			})
		})
	})
	return &testServer{router: r, csrf: cfg.CSRFAuthKey}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// login creates a verified local user and returns an access token for it.
func (s *testServer) login(t *testing.T, username, email string) string {
	t.Helper()
	u := &model.User{Username: username, Email: email, IsEmailVerified: true}
	require.NoError(t, u.HashPassword(testPassword))
	require.NoError(t, u.CreateUser(database.DB))

	rec := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": testPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func (s *testServer) seedBond(t *testing.T, adminToken string, firstPeriod int) int64 {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/admin/bonds", adminToken, map[string]any{
		"series":                "ROD0136",
		"nominal_value":         "1000",
		"maturity_period":       144,
		"initial_interest_rate": "4.75",
		"first_interest_period": firstPeriod,
		"reference_rate_margin": "0.1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var bond model.Bond
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bond))
	return bond.ID
}

func (s *testServer) purchase(t *testing.T, token string, bondID int64) int64 {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/holdings", token, map[string]any{
		"bond_id":       bondID,
		"quantity":      10,
		"purchase_date": "2024-01-15",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var h model.BondHolder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	return h.ID
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/bonds", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/bonds", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := s.login(t, "jan", "jan@example.com")
	rec = s.do(t, http.MethodGet, "/api/bonds", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestLogin_RejectsBadPassword(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "jan", "jan@example.com")

	rec := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "jan@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid email or password", decodeError(t, rec))
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "jan", "jan@example.com")

	rec := s.do(t, http.MethodPost, "/api/admin/bonds", token, map[string]any{"series": "ROD0136"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := s.login(t, "admin", adminEmail)
	s.seedBond(t, admin, 1)

	rec = s.do(t, http.MethodPost, "/api/admin/bonds", admin, map[string]any{
		"series": "ROD0136", "nominal_value": "1000", "maturity_period": 144,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/admin/bonds", admin, map[string]any{
		"series": "ROD0137", "nominal_value": "0", "maturity_period": 144,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHoldingLifecycle(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin", adminEmail)
	bondID := s.seedBond(t, admin, 1)

	alice := s.login(t, "alice", "alice@example.com")
	bob := s.login(t, "bob", "bob@example.com")

	rec := s.do(t, http.MethodGet, "/api/user/has-data", alice, nil)
	assert.JSONEq(t, `{"hasData": false}`, rec.Body.String())

	holderID := s.purchase(t, alice, bondID)

	rec = s.do(t, http.MethodPost, "/api/holdings", alice, map[string]any{
		"bond_id": bondID, "quantity": 1, "purchase_date": "2030-01-01",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/holdings", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var holdings []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &holdings))
	require.Len(t, holdings, 1)
	assert.Equal(t, "2036-01-15", holdings[0]["maturity_date"])
	assert.Equal(t, false, holdings[0]["is_matured"])

	path := fmt.Sprintf("/api/holdings/%d", holderID)
	rec = s.do(t, http.MethodPatch, path, bob, map[string]any{"quantity": 3})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, http.MethodPatch, path, alice, map[string]any{"quantity": 3})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, path, bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, http.MethodDelete, path, alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, path, alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/holdings/abc", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodDelete, "/api/holdings/0", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIncomeEndpoints(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin", adminEmail)
	bondID := s.seedBond(t, admin, 2)
	alice := s.login(t, "alice", "alice@example.com")
	holderID := s.purchase(t, alice, bondID)
	periodPath := fmt.Sprintf("/api/holdings/%d/income/period?start=2024-01-01&end=2024-04-30", holderID)

	rec := s.do(t, http.MethodGet, periodPath, alice, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeError(t, rec), "2024-02-15")

	closed := "2024-03-31"
	rec = s.do(t, http.MethodPost, "/api/admin/reference-rates", admin, map[string]any{
		"value": "5.75", "start_date": "2023-10-05", "end_date": closed,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/api/admin/reference-rates", admin, map[string]any{
		"value": "5.25", "start_date": "2024-04-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, periodPath, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report struct {
		Points []struct {
			Date      string `json:"date"`
			NetAmount string `json:"net_amount"`
		} `json:"points"`
		Total string `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.Points, 3)
	assert.Equal(t, "2024-02-15", report.Points[0].Date)
	assert.Equal(t, "30.537", report.Points[0].NetAmount)
	assert.Equal(t, "106.434", report.Total)

	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	rec = s.do(t, http.MethodGet, periodPath, alice, nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = s.do(t, http.MethodGet, periodPath+"&format=csv", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "series,date,net_amount", lines[0])
	assert.Equal(t, "ROD0136,total,106.434", lines[4])

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/holdings/%d/income?date=2024-02-01", holderID), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"regime":"fixed"`)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/holdings/%d/income?date=2024-02-30", holderID), alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/income/period?start=2024-05-01&end=2024-04-01", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/income/period?start=2024-01-01&end=2024-04-30", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":"106.434"`)

	rec = s.do(t, http.MethodGet, "/api/equity/history", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var equity []struct {
		Date   string `json:"date"`
		Equity string `json:"equity"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &equity))
	require.NotEmpty(t, equity)
	assert.Equal(t, "2024-01-15", equity[0].Date)
	assert.Equal(t, "2024-06-01", equity[len(equity)-1].Date)
	assert.Equal(t, "10000", equity[len(equity)-1].Equity)
}

func multipartCSV(t *testing.T, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="rates.csv"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadRates(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin", adminEmail)

	upload := func(contentType, content string) *httptest.ResponseRecorder {
		body, formType := multipartCSV(t, contentType, content)
		req := httptest.NewRequest(http.MethodPost, "/api/admin/reference-rates/upload", body)
		req.Header.Set("Content-Type", formType)
		req.Header.Set("Authorization", "Bearer "+admin)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("text/csv", "start_date,end_date,value\n2023-10-05,2024-03-31,5.75\n2024-04-01,,5.25\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"imported": 2}`, rec.Body.String())

	rec = upload("application/pdf", "start_date,end_date,value\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload("text/csv", "start_date,end_date,value\n=HYPERLINK(\"x\"),,5\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload("text/csv", "start_date,end_date,value\n2024-01-01,,5\n2024-02-01,,6\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCSRFMiddleware(t *testing.T) {
	key := []byte("csrf-test-key")
	protected := CSRFMiddleware(key)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	issue := httptest.NewRecorder()
	GetCSRFToken(key)(issue, httptest.NewRequest(http.MethodGet, "/api/auth/csrf", nil))
	require.Equal(t, http.StatusOK, issue.Code)
	token := issue.Header().Get(csrfHeaderName)
	require.NotEmpty(t, token)

	post := func(header, cookie string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		if header != "" {
			req.Header.Set(csrfHeaderName, header)
		}
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: cookie})
		}
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, post(token, token))
	assert.Equal(t, http.StatusForbidden, post("", ""))
	assert.Equal(t, http.StatusForbidden, post(token, ""))

	forged := "nonce.signature"
	assert.Equal(t, http.StatusForbidden, post(forged, forged), "unsigned tokens are rejected")

	other, err := newCSRFToken([]byte("another-key"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, post(other, other))

	get := httptest.NewRecorder()
	protected.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/api/bonds", nil))
	assert.Equal(t, http.StatusNoContent, get.Code)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", validation.ErrValidationFailed), http.StatusBadRequest},
		{processors.ErrInvalidPosition, http.StatusBadRequest},
		{fmt.Errorf("%w: holding 1", services.ErrNotFound), http.StatusNotFound},
		{services.ErrForbidden, http.StatusForbidden},
		{services.ErrConflict, http.StatusConflict},
		{fmt.Errorf("holding 2: %w", processors.ErrNoReferenceRate), http.StatusUnprocessableEntity},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusForError(tt.err), "%v", tt.err)
	}
}
