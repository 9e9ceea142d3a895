package handler

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Fodi999/fodi-ledger/internal/config"
	"github.com/Fodi999/fodi-ledger/internal/metrics"
	"github.com/Fodi999/fodi-ledger/internal/middleware"
	"github.com/Fodi999/fodi-ledger/internal/model"
	"github.com/Fodi999/fodi-ledger/internal/repository"
	"github.com/Fodi999/fodi-ledger/internal/service"
)

type testServer struct {
	*httptest.Server
	token string
}

func newTestServer(t *testing.T, svc Service) *testServer {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	if svc == nil {
		s, err := service.NewService(repository.NewMemoryRepository(), service.Options{
			Reward:  config.RewardConfig{OrderCompletion: 100_000_000, Referral: 500_000_000, DailyLogin: 10_000_000, Review: 50_000_000},
			Burn:    config.BurnConfig{TransactionBurnRate: 1, MinBurnAmount: 1_000_000},
			Metrics: m,
			Logger:  logger,
		})
		require.NoError(t, err)
		svc = s
	}

	auth := middleware.NewAuthMiddleware("test-secret")
	token, err := auth.Token("test-suite", time.Hour)
	require.NoError(t, err)

	h := NewHandler(svc, logger, auth, Options{Metrics: m, Gatherer: reg})
	ts := httptest.NewServer(h.SetupRouter())
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, token: token}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+s.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (s *testServer) balance(t *testing.T, method, path string, body any) (int, balanceResponse) {
	t.Helper()

	code, data := s.do(t, method, path, body)
	var b balanceResponse
	if code == http.StatusOK {
		require.NoError(t, json.Unmarshal(data, &b), string(data))
	}
	return code, b
}

func TestRouter_PublicEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "fodi_ledger_http_request_duration_seconds")
}

func TestRouter_MetricsCompressedOnce(t *testing.T) {
	ts := newTestServer(t, nil)
	code, _ := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, code)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/metrics", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")

	client := &http.Client{Transport: &http.Transport{DisableCompression: true}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"gzip"}, resp.Header.Values("Content-Encoding"))

	gr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Contains(t, string(body), "fodi_ledger_http_request_duration_seconds")
}

func TestRouter_RequiresToken(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/balances/alice")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_LedgerFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	code, b := ts.balance(t, http.MethodGet, "/api/balances/alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, balanceResponse{UserID: "alice", TotalFODI: "0", AvailableFODI: "0"}, b)

	code, b = ts.balance(t, http.MethodPost, "/api/rewards/daily-login", map[string]any{"user_id": "alice"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, uint64(10_000_000), b.Total)
	assert.Equal(t, "0.01", b.TotalFODI)

	code, b = ts.balance(t, http.MethodPost, "/api/balances/alice/lock", map[string]any{"amount": 5_000_000})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, uint64(5_000_000), b.Locked)
	assert.Equal(t, uint64(5_000_000), b.Available)
	assert.Equal(t, "0.005", b.AvailableFODI)

	code, _ = ts.do(t, http.MethodPost, "/api/balances/alice/purchase", map[string]any{"amount": 6_000_000})
	assert.Equal(t, http.StatusPaymentRequired, code)

	code, _ = ts.do(t, http.MethodPost, "/api/balances/alice/unlock", map[string]any{"amount": 6_000_000})
	assert.Equal(t, http.StatusConflict, code)

	code, b = ts.balance(t, http.MethodPost, "/api/balances/alice/unlock", map[string]any{"amount": 5_000_000})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, uint64(10_000_000), b.Available)

	code, b = ts.balance(t, http.MethodPost, "/api/burns/purchase", map[string]any{"user_id": "alice", "purchase_amount": 1_000_000_000})
	require.Equal(t, http.StatusOK, code)
	assert.Zero(t, b.Total)

	code, _ = ts.do(t, http.MethodPost, "/api/burns/purchase", map[string]any{"user_id": "alice", "purchase_amount": 50})
	assert.Equal(t, http.StatusPaymentRequired, code)

	code, data := ts.do(t, http.MethodGet, "/api/balances/alice/transactions?limit=10", nil)
	require.Equal(t, http.StatusOK, code)

	var txs []transactionResponse
	require.NoError(t, json.Unmarshal(data, &txs))
	require.Len(t, txs, 2)
	assert.Equal(t, string(model.KindBurn), txs[0].Kind)
	assert.Equal(t, "0.01", txs[0].AmountFODI)
	assert.Equal(t, "test-suite", txs[0].Metadata[model.MetaCaller])
	assert.Equal(t, string(model.KindReward), txs[1].Kind)

	path := fmt.Sprintf("/api/transactions/%s/signature", txs[1].ID)
	code, _ = ts.do(t, http.MethodPost, path, map[string]any{"signature": "sig-1"})
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = ts.do(t, http.MethodPost, path, map[string]any{"signature": "sig-1"})
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = ts.do(t, http.MethodPost, path, map[string]any{"signature": "sig-2"})
	assert.Equal(t, http.StatusConflict, code)
	code, _ = ts.do(t, http.MethodPost, "/api/transactions/missing/signature", map[string]any{"signature": "sig-1"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHandler_DepositWithdrawTransfer(t *testing.T) {
	ts := newTestServer(t, nil)

	code, b := ts.balance(t, http.MethodPost, "/api/balances/alice/deposit", map[string]any{
		"amount":   3 * model.UnitsPerToken,
		"metadata": map[string]string{"source": "card"},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "3", b.TotalFODI)

	code, b = ts.balance(t, http.MethodPost, "/api/transfers", map[string]any{"from": "alice", "to": "bob", "amount": model.UnitsPerToken})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2", b.TotalFODI)

	code, b = ts.balance(t, http.MethodPost, "/api/balances/bob/withdraw", map[string]any{"amount": 250_000_000})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0.75", b.TotalFODI)

	code, body := ts.do(t, http.MethodPost, "/api/transfers", map[string]any{"from": "alice", "to": "alice", "amount": 1})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, string(body), "same user")

	code, _ = ts.do(t, http.MethodGet, "/api/balances/carol/transactions", nil)
	assert.Equal(t, http.StatusNoContent, code)
}

func TestHandler_Rewards(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name  string
		path  string
		body  map[string]any
		user  string
		total uint64
	}{
		{name: "order completion", path: "/api/rewards/order-completion", body: map[string]any{"user_id": "u1", "order_id": "o1"}, user: "u1", total: 100_000_000},
		{name: "referral", path: "/api/rewards/referral", body: map[string]any{"referrer_id": "u2", "referee_id": "u3"}, user: "u2", total: 500_000_000},
		{name: "review", path: "/api/rewards/review", body: map[string]any{"user_id": "u4", "review_id": "r1"}, user: "u4", total: 50_000_000},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			code, b := ts.balance(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, http.StatusOK, code)
			assert.Equal(t, tt.user, b.UserID)
			assert.Equal(t, tt.total, b.Total)
		})
	}

	_, referee := ts.balance(t, http.MethodGet, "/api/balances/u3", nil)
	assert.Zero(t, referee.Total)
}

func TestHandler_BadRequests(t *testing.T) {
	ts := newTestServer(t, nil)
	longID := strings.Repeat("x", 200)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{name: "invalid user id", method: http.MethodGet, path: "/api/balances/" + longID},
		{name: "invalid limit", method: http.MethodGet, path: "/api/balances/alice/transactions?limit=abc"},
		{name: "zero deposit", method: http.MethodPost, path: "/api/balances/alice/deposit", body: map[string]any{"amount": 0}},
		{name: "negative amount", method: http.MethodPost, path: "/api/balances/alice/deposit", body: map[string]any{"amount": -1}},
		{name: "unknown field", method: http.MethodPost, path: "/api/balances/alice/deposit", body: map[string]any{"amount": 1, "kind": "reward"}},
		{name: "missing order id", method: http.MethodPost, path: "/api/rewards/order-completion", body: map[string]any{"user_id": "alice"}},
		{name: "zero purchase", method: http.MethodPost, path: "/api/burns/purchase", body: map[string]any{"user_id": "alice", "purchase_amount": 0}},
		{name: "empty signature", method: http.MethodPost, path: "/api/transactions/tx/signature", body: map[string]any{"signature": ""}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			code, _ := ts.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
		})
	}
}

type unavailableService struct {
	Service
}

func (unavailableService) GetBalance(ctx context.Context, userID string) (model.Balance, error) {
	return model.Balance{}, fmt.Errorf("%w: get balance: %w", repository.ErrStorageUnavailable, errors.New("dial tcp: connection refused"))
}

func TestHandler_StorageUnavailable(t *testing.T) {
	ts := newTestServer(t, unavailableService{})

	code, body := ts.do(t, http.MethodGet, "/api/balances/alice", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, string(body), "try again")
	assert.NotContains(t, string(body), "connection refused")
}

func TestFormatTokens(t *testing.T) {
	tests := map[uint64]string{
		0:                    "0",
		1:                    "0.000000001",
		10_000_000:           "0.01",
		1_000_000_000:        "1",
		1_500_000_000:        "1.5",
		18446744073709551615: "18446744073.709551615",
	}
	for units, want := range tests {
		assert.Equal(t, want, formatTokens(units), "units %d", units)
	}
}
