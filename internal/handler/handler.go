// Package handler содержит HTTP-обработчики API леджера FODI.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Fodi999/fodi-ledger/internal/metrics"
	"github.com/Fodi999/fodi-ledger/internal/middleware"
	"github.com/Fodi999/fodi-ledger/internal/model"
	"github.com/Fodi999/fodi-ledger/internal/repository"
)

const (
	maxBodyBytes       = 1 << 20
	maxMetadataEntries = 32
	tokenDecimals      = 9
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	GetBalance(ctx context.Context, userID string) (model.Balance, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error)
	Deposit(ctx context.Context, userID string, amount uint64, metadata map[string]string) (model.Balance, error)
	Withdraw(ctx context.Context, userID string, amount uint64, metadata map[string]string) (model.Balance, error)
	Purchase(ctx context.Context, userID string, amount uint64, metadata map[string]string) (model.Balance, error)
	Transfer(ctx context.Context, fromID, toID string, amount uint64, metadata map[string]string) (model.Balance, error)
	Lock(ctx context.Context, userID string, amount uint64) (model.Balance, error)
	Unlock(ctx context.Context, userID string, amount uint64) (model.Balance, error)
	RewardOrderCompletion(ctx context.Context, userID, orderID string) (model.Balance, error)
	RewardReferral(ctx context.Context, referrerID, refereeID string) (model.Balance, error)
	RewardDailyLogin(ctx context.Context, userID string) (model.Balance, error)
	RewardReview(ctx context.Context, userID, reviewID string) (model.Balance, error)
	BurnOnPurchase(ctx context.Context, userID string, purchaseAmount uint64) (model.Balance, error)
	BurnTokens(ctx context.Context, userID string, amount uint64, reason string) (model.Balance, error)
	AttachSignature(ctx context.Context, txID, signature string) error
}

// Options содержит необязательные зависимости HTTP-слоя.
type Options struct {
	Metrics            *metrics.Metrics
	Gatherer           prometheus.Gatherer
	CORSAllowedOrigins []string
}

// Handler реализует HTTP-обработчики API леджера.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	opts           Options
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, opts Options) *Handler {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		opts:           opts,
	}
}

type balanceResponse struct {
	UserID        string `json:"user_id"`
	Total         uint64 `json:"total"`
	Locked        uint64 `json:"locked"`
	Available     uint64 `json:"available"`
	TotalFODI     string `json:"total_fodi"`
	AvailableFODI string `json:"available_fodi"`
}

func newBalanceResponse(b model.Balance) balanceResponse {
	return balanceResponse{
		UserID:        b.UserID,
		Total:         b.Total,
		Locked:        b.Locked,
		Available:     b.Available(),
		TotalFODI:     formatTokens(b.Total),
		AvailableFODI: formatTokens(b.Available()),
	}
}

type transactionResponse struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Kind       string            `json:"kind"`
	Amount     uint64            `json:"amount"`
	AmountFODI string            `json:"amount_fodi"`
	Timestamp  string            `json:"timestamp"`
	Signature  *string           `json:"signature,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func newTransactionResponse(t model.Transaction) transactionResponse {
	return transactionResponse{
		ID:         t.ID,
		UserID:     t.UserID,
		Kind:       string(t.Kind),
		Amount:     t.Amount,
		AmountFODI: formatTokens(t.Amount),
		Timestamp:  t.Timestamp.UTC().Format(time.RFC3339Nano),
		Signature:  t.Signature,
		Metadata:   t.Metadata,
	}
}

// formatTokens переводит минимальные единицы в целые токены без потери точности.
func formatTokens(units uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), 0).Shift(-tokenDecimals).String()
}

// Health сообщает, что процесс принимает запросы.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func (h *Handler) writeBalance(w http.ResponseWriter, b model.Balance) {
	h.writeJSON(w, http.StatusOK, newBalanceResponse(b))
}

// writeError переводит ошибки леджера в HTTP-статусы. Подробности отказа хранилища
// клиенту не отдаются, только в лог.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	switch {
	case errors.Is(err, repository.ErrInsufficientFunds):
		http.Error(w, "insufficient funds", http.StatusPaymentRequired)
	case errors.Is(err, repository.ErrInvalidUnlock):
		http.Error(w, "unlock amount exceeds locked funds", http.StatusConflict)
	case errors.Is(err, repository.ErrSignatureConflict):
		http.Error(w, "transaction already has a different signature", http.StatusConflict)
	case errors.Is(err, repository.ErrInvalidAmount):
		http.Error(w, "invalid amount", http.StatusBadRequest)
	case errors.Is(err, repository.ErrSameUser):
		http.Error(w, "sender and recipient are the same user", http.StatusBadRequest)
	case errors.Is(err, repository.ErrInvalidKind):
		http.Error(w, "invalid transaction kind", http.StatusBadRequest)
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "transaction not found", http.StatusNotFound)
	case errors.Is(err, context.Canceled):
		// клиент ушёл, отвечать некому
	default:
		h.logger.Error(op+" error", append(fields, zap.Error(err))...)
		http.Error(w, "ledger is temporarily unavailable, try again later", http.StatusServiceUnavailable)
	}
}

func validMetadata(md map[string]string) bool {
	return len(md) <= maxMetadataEntries
}
