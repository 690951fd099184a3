package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/username/stakeledger/src/database"
	"github.com/username/stakeledger/src/models"
	"github.com/username/stakeledger/src/processors"
	"github.com/username/stakeledger/src/services"
)

type fixedOracle struct {
	price decimal.Decimal
	err   error
}

func (o fixedOracle) CurrentPrice(context.Context, string) (decimal.Decimal, error) {
	return o.price, o.err
}

func newTestRouter(t *testing.T, oracle services.PriceOracle, limiter *rate.Limiter) http.Handler {
	t.Helper()
	db, err := database.OpenAndMigrate(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dataDir := t.TempDir()
	fixture, err := os.ReadFile(filepath.Join("..", "..", "testdata", "activity_2024q1.csv"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "activity_2024q1.csv"), fixture, 0o644))

	ledger := services.NewLedgerService(db, processors.NewReconciler(processors.NewManualFixSet("1")))
	imports := services.NewImportService(services.NewSourceScanner(dataDir, "*.csv", ledger), ledger, 24*time.Hour)
	_, err = imports.Run(context.Background())
	require.NoError(t, err)

	portfolio := services.NewPortfolioService(ledger, oracle, nil, "EUR")
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return NewRouter(NewPortfolioHandler(portfolio, imports, ledger), limiter, "http://localhost:3000")
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandleGetStatus(t *testing.T) {
	h := newTestRouter(t, nil, nil)
	rec := get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var body struct {
		Records     int               `json:"records"`
		Symbols     []string          `json:"symbols"`
		Freshness   *models.Freshness `json:"freshness"`
		LastImports []struct {
			Source   string `json:"Source"`
			Inserted int    `json:"Inserted"`
		} `json:"last_imports"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Records)
	assert.Equal(t, []string{"DOT"}, body.Symbols)
	require.NotNil(t, body.Freshness)
	assert.True(t, body.Freshness.UpToDate)
	require.Len(t, body.LastImports, 1)
	assert.Equal(t, 3, body.LastImports[0].Inserted)
}

func TestHandleGetTransactions(t *testing.T) {
	h := newTestRouter(t, nil, nil)

	rec := get(t, h, "/api/transactions?symbol=dot")
	require.Equal(t, http.StatusOK, rec.Code)
	var txs []models.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txs))
	require.Len(t, txs, 3)
	assert.Equal(t, "9.99", txs[0].NetQuantity.Decimal.String())

	rec = get(t, h, "/api/transactions?symbol=ETH")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = get(t, h, "/api/transactions?symbol=DOT%20DROP")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetBalance(t *testing.T) {
	h := newTestRouter(t, nil, nil)
	rec := get(t, h, "/api/balance/DOT")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"symbol":"DOT","balance":"7.94"}`, rec.Body.String())
}

func TestHandleGetRewards_Binned(t *testing.T) {
	h := newTestRouter(t, nil, nil)

	rec := get(t, h, "/api/rewards/DOT?bins=month")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Series []models.BinTotal `json:"series"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Series, 1)
	assert.Equal(t, "0.05", body.Series[0].Total.String())

	rec = get(t, h, "/api/rewards/DOT?bins=day")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, h, "/api/transfers/DOT?bins=week")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"series":[]`)
}

func TestHandleGetValue(t *testing.T) {
	h := newTestRouter(t, fixedOracle{price: decimal.NewFromInt(2)}, nil)
	rec := get(t, h, "/api/value/DOT?type=rewards")
	require.Equal(t, http.StatusOK, rec.Code)
	var valued models.ValuedTotal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &valued))
	assert.Equal(t, "0.1", valued.Value.String())

	down := newTestRouter(t, fixedOracle{err: models.ErrNetwork}, nil)
	rec = get(t, down, "/api/value/DOT")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Price unavailable")
}

func TestRateLimit(t *testing.T) {
	h := newTestRouter(t, nil, rate.NewLimiter(rate.Every(time.Hour), 1))
	assert.Equal(t, http.StatusOK, get(t, h, "/api/status").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, h, "/api/status").Code)
}

func TestCORSAndNotFound(t *testing.T) {
	h := newTestRouter(t, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = get(t, h, "/api/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())
}

func TestRequestIDFromContext(t *testing.T) {
	var seen string
	h := ContextualLoggerMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := RequestIDFromContext(r.Context())
		if !ok {
			panic(errors.New("missing request id"))
		}
		seen = id
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}
