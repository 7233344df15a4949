package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kkkkikiki/coupon-verify/internal/auth"
	"github.com/kkkkikiki/coupon-verify/internal/service"
	"github.com/kkkkikiki/coupon-verify/internal/testutil"
)

type testServer struct {
	router *chi.Mux
	db     *sqlx.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := testutil.NewSeededDB(t)
	logger := zap.NewNop()
	tokens := auth.NewTokenManager("handler-test-secret", "coupon-verify", time.Hour)

	h := NewHandler(
		service.NewAuthService(db, tokens, logger),
		service.NewCouponService(db, nil, 0, logger),
		service.NewCompanyService(db),
		service.NewRecordService(db, time.UTC),
		db,
		logger,
	)
	return &testServer{router: NewRouter(h, []string{"*"}), db: db}
}

// envelope mirrors Response with the data left raw for per-test decoding
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
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

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func (s *testServer) login(t *testing.T) string {
	t.Helper()

	rec, env := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"phone":    testutil.DefaultPhone,
		"password": testutil.DefaultPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var data loginResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func TestLoginAndVerify(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"phone":    testutil.DefaultPhone,
		"password": testutil.DefaultPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	var login loginResponse
	require.NoError(t, json.Unmarshal(env.Data, &login))
	assert.Equal(t, testutil.DefaultPhone, login.User.Phone)
	assert.NotZero(t, login.User.ID)

	rec, env = s.do(t, http.MethodGet, "/api/auth/verify", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var verified struct {
		User struct {
			UserID int64  `json:"userId"`
			Phone  string `json:"phone"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &verified))
	assert.Equal(t, login.User.ID, verified.User.UserID)
	assert.Equal(t, testutil.DefaultPhone, verified.User.Phone)

	rec, env = s.do(t, http.MethodPost, "/api/auth/logout", login.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestLogin_Failures(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		phone    string
		password string
		want     int
	}{
		{"malformed phone", "123", "123456", http.StatusBadRequest},
		{"missing password", testutil.DefaultPhone, "", http.StatusBadRequest},
		{"unknown operator", "13700137000", "123456", http.StatusUnauthorized},
		{"wrong password", testutil.DefaultPhone, "000000", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
				"phone":    tt.phone,
				"password": tt.password,
			})
			assert.Equal(t, tt.want, rec.Code)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Message)
		})
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/auth/verify"},
		{http.MethodPost, "/api/auth/logout"},
		{http.MethodGet, "/api/coupon/companies"},
		{http.MethodPost, "/api/coupon/redeem"},
		{http.MethodPost, "/api/coupon/verify"},
		{http.MethodGet, "/api/coupon/records"},
		{http.MethodPost, "/api/coupon/batch-add"},
	}

	for _, route := range routes {
		rec, env := s.do(t, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.path)
		assert.False(t, env.Success)

		rec, _ = s.do(t, route.method, route.path, "not-a-token", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.path)
	}
}

func TestCompanies(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)

	rec, env := s.do(t, http.MethodGet, "/api/coupon/companies?search=ni", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var companies []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &companies))
	require.Len(t, companies, 1)
	assert.Equal(t, "Initech", companies[0].Name)
}

func TestBatchAddRedeemAndRecords(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)
	acme := testutil.CompanyID(t, s.db, "Acme")
	globex := testutil.CompanyID(t, s.db, "Globex")

	rec, env := s.do(t, http.MethodPost, "/api/coupon/batch-add", token, map[string]interface{}{
		"companyId": acme,
		"count":     3,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var batch batchAddResponse
	require.NoError(t, json.Unmarshal(env.Data, &batch))
	require.Len(t, batch.Codes, 3)

	code := batch.Codes[0]

	// Wrong company
	rec, env = s.do(t, http.MethodPost, "/api/coupon/redeem", token, map[string]interface{}{
		"code":      code,
		"companyId": globex,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)

	rec, env = s.do(t, http.MethodPost, "/api/coupon/redeem", token, map[string]interface{}{
		"code":      code,
		"companyId": acme,
	}, "X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var redeemed struct {
		Code           string    `json:"code"`
		Company        string    `json:"company"`
		RedemptionTime time.Time `json:"redemptionTime"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &redeemed))
	assert.Equal(t, code, redeemed.Code)
	assert.Equal(t, "Acme", redeemed.Company)
	assert.False(t, redeemed.RedemptionTime.IsZero())

	// Second attempt through the legacy route
	rec, env = s.do(t, http.MethodPost, "/api/coupon/verify", token, map[string]interface{}{
		"code":      code,
		"companyId": acme,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, env.Message, "already used")

	rec, env = s.do(t, http.MethodGet, fmt.Sprintf("/api/coupon/records?companyId=%d", acme), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page service.RecordPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Records, 1)
	assert.Equal(t, code, page.Records[0].Code)
	assert.Equal(t, "Acme", page.Records[0].CompanyName)
	assert.Equal(t, testutil.DefaultPhone, page.Records[0].UserPhone)
	assert.Equal(t, "203.0.113.9", page.Records[0].IPAddress)
	assert.Equal(t, service.Pagination{Total: 1, Page: 1, Limit: service.DefaultPageSize, TotalPages: 1}, page.Pagination)
}

func TestBatchAdd_DefaultCount(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)
	acme := testutil.CompanyID(t, s.db, "Acme")

	rec, env := s.do(t, http.MethodPost, "/api/coupon/batch-add", token, map[string]interface{}{
		"companyId": acme,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var batch batchAddResponse
	require.NoError(t, json.Unmarshal(env.Data, &batch))
	assert.Len(t, batch.Codes, service.DefaultBatchSize)
}

func TestRecords_EmptyDay(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)

	rec, env := s.do(t, http.MethodGet, "/api/coupon/records?date=1999-01-01", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"records":[]`)

	var page service.RecordPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Zero(t, page.Pagination.Total)
	assert.Zero(t, page.Pagination.TotalPages)
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)
	acme := testutil.CompanyID(t, s.db, "Acme")

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
	}{
		{"lowercase code", http.MethodPost, "/api/coupon/redeem", map[string]interface{}{"code": "abcd1234", "companyId": acme}},
		{"short code", http.MethodPost, "/api/coupon/redeem", map[string]interface{}{"code": "ABC", "companyId": acme}},
		{"missing company", http.MethodPost, "/api/coupon/redeem", map[string]interface{}{"code": "ABCD1234"}},
		{"malformed body", http.MethodPost, "/api/coupon/redeem", "not an object"},
		{"bad date", http.MethodGet, "/api/coupon/records?date=2026-02-30", nil},
		{"bad page", http.MethodGet, "/api/coupon/records?page=abc", nil},
		{"limit too large", http.MethodGet, "/api/coupon/records?limit=500", nil},
		{"bad company filter", http.MethodGet, "/api/coupon/records?companyId=x", nil},
		{"batch count zero", http.MethodPost, "/api/coupon/batch-add", map[string]interface{}{"companyId": acme, "count": 0}},
		{"batch count too large", http.MethodPost, "/api/coupon/batch-add", map[string]interface{}{"companyId": acme, "count": 101}},
		{"batch unknown company", http.MethodPost, "/api/coupon/batch-add", map[string]interface{}{"companyId": 9999, "count": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := s.do(t, tt.method, tt.path, token, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.False(t, env.Success)
		})
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/health", "/health/db"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(fmt.Errorf("%w: x", service.ErrValidation)))
	assert.Equal(t, http.StatusUnauthorized, statusFor(service.ErrUnauthorized))
	assert.Equal(t, http.StatusUnauthorized, statusFor(service.ErrInvalidCredential))
	assert.Equal(t, http.StatusNotFound, statusFor(service.ErrNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(&service.AlreadyUsedError{Code: "ABCD1234"}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(service.ErrGenerationExhausted))
	assert.Equal(t, http.StatusInternalServerError, statusFor(fmt.Errorf("boom")))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.2"}, "10.0.0.3:4000", "198.51.100.1"},
		{"forwarded unknown falls back", map[string]string{"X-Forwarded-For": "unknown", "X-Real-IP": "198.51.100.7"}, "10.0.0.3:4000", "198.51.100.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.8"}, "10.0.0.3:4000", "198.51.100.8"},
		{"real ip unknown", map[string]string{"X-Real-IP": "unknown"}, "10.0.0.3:4000", "10.0.0.3"},
		{"forwarded garbage falls back", map[string]string{"X-Forwarded-For": "<script>", "X-Real-IP": "198.51.100.9"}, "10.0.0.3:4000", "198.51.100.9"},
		{"oversize headers ignored", map[string]string{"X-Forwarded-For": strings.Repeat("1", 64), "X-Real-IP": strings.Repeat("a", 64)}, "10.0.0.3:4000", "10.0.0.3"},
		{"forwarded ipv6", map[string]string{"X-Forwarded-For": "2001:db8::7, 10.0.0.1"}, "10.0.0.3:4000", "2001:db8::7"},
		{"remote addr", nil, "192.0.2.4:51234", "192.0.2.4"},
		{"ipv6 remote addr", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"remote without port", nil, "192.0.2.5", "192.0.2.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
