package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/shared"
	_ "github.com/odyssey-erp/stockledger/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://u:p@db:5432/ledger")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 3, cfg.DBTxMaxAttempts)
	assert.Equal(t, 100, cfg.RateLimitPerMinute)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "stockledger", cfg.OTelServiceName)
	assert.Empty(t, cfg.RedisAddr)
	assert.False(t, cfg.IsProduction())
}

func TestConfigValidate(t *testing.T) {
	valid := Config{PGDSN: "postgres://x", DBTxMaxAttempts: 1}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.DBTxMaxAttempts = 0
	require.Error(t, bad.Validate())

	bad = valid
	bad.APITokenHash = "plaintext"
	require.ErrorContains(t, bad.Validate(), "bcrypt")

	bad = valid
	bad.RateLimitPerMinute = -1
	require.Error(t, bad.Validate())
}

func TestLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.Int64("product_id", 7))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.EqualValues(t, 7, line["product_id"])
}

func TestAuthenticate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	var seenActor int64
	handler := Authenticate(string(hash), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenActor = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(headers map[string]string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusUnauthorized, call(nil))
	assert.Equal(t, http.StatusUnauthorized, call(map[string]string{"Authorization": "Bearer wrong"}))
	assert.Equal(t, http.StatusNoContent, call(map[string]string{"Authorization": "Bearer s3cret", ActorHeader: "42"}))
	assert.EqualValues(t, 42, seenActor)
	assert.Equal(t, http.StatusNoContent, call(map[string]string{"Authorization": "Bearer s3cret"}), "cached token")
	assert.Equal(t, http.StatusUnprocessableEntity, call(map[string]string{"Authorization": "Bearer s3cret", ActorHeader: "abc"}))
}

func TestAuthenticateDisabled(t *testing.T) {
	handler := Authenticate("", nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/products/1", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/products", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	CORS([]string{"*"})(next).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "DELETE")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	CORS([]string{"https://shop.example"})(next).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterServiceEndpoints(t *testing.T) {
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{
		Config:  &Config{RateLimitPerMinute: 2},
		Metrics: metrics,
		HealthChecks: map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
		},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok","checks":{"postgres":"ok"}}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "stockledger_http_requests_total")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusTooManyRequests, rr.Code, "third request from the same ip")
}

func TestHealthReportsDegradedDependency(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/healthz", healthHandler(map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("dial timeout") },
	}))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.JSONEq(t, `{"status":"degraded","checks":{"redis":"dial timeout"}}`, rr.Body.String())
}

func TestInTestModeFollowsEnvironment(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())
	require.True(t, SkipStartup("worker"))

	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	require.False(t, InTestMode())
	RefreshTestMode()
}

func TestHarnessPinsCatalogFeed(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:0/products", cfg.CatalogSourceURL)
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "http request", record["msg"])
	assert.EqualValues(t, http.StatusTeapot, record["status"])
	assert.Equal(t, "/api/v1/products", record["path"])
}
