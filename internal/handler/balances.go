package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Fodi999/fodi-ledger/internal/model"
	"github.com/Fodi999/fodi-ledger/internal/validation"
)

type amountRequest struct {
	Amount   uint64            `json:"amount"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type transferRequest struct {
	From     string            `json:"from"`
	To       string            `json:"to"`
	Amount   uint64            `json:"amount"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type signatureRequest struct {
	Signature string `json:"signature"`
}

func userIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := chi.URLParam(r, "userID")
	if !validation.IsValidID(userID) {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return "", false
	}
	return userID, true
}

// GetBalance возвращает баланс пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeError(w, "get balance", err, zap.String("user_id", userID))
		return
	}

	h.writeBalance(w, balance)
}

// GetTransactions возвращает операции пользователя, начиная с самой новой.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	txs, err := h.service.ListTransactions(r.Context(), userID, limit)
	if err != nil {
		h.writeError(w, "list transactions", err, zap.String("user_id", userID))
		return
	}

	if len(txs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		resp = append(resp, newTransactionResponse(t))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type amountFunc func(ctx context.Context, userID string, amount uint64, metadata map[string]string) (model.Balance, error)

// amountHandler строит обработчик для изменения баланса одного пользователя на указанную сумму.
func (h *Handler) amountHandler(op string, fn amountFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDParam(w, r)
		if !ok {
			return
		}

		var req amountRequest
		if !h.decode(w, r, &req) {
			return
		}
		if !validMetadata(req.Metadata) {
			http.Error(w, "too many metadata entries", http.StatusBadRequest)
			return
		}

		balance, err := fn(r.Context(), userID, req.Amount, req.Metadata)
		if err != nil {
			h.writeError(w, op, err, zap.String("user_id", userID), zap.Uint64("amount", req.Amount))
			return
		}

		h.writeBalance(w, balance)
	}
}

// Deposit зачисляет пополнение.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.amountHandler("deposit", h.service.Deposit)(w, r)
}

// Withdraw списывает средства при выводе.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.amountHandler("withdraw", h.service.Withdraw)(w, r)
}

// Purchase списывает средства в оплату покупки.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	h.amountHandler("purchase", h.service.Purchase)(w, r)
}

// Lock резервирует средства под заказ. Метаданные запроса игнорируются.
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	h.amountHandler("lock", func(ctx context.Context, userID string, amount uint64, _ map[string]string) (model.Balance, error) {
		return h.service.Lock(ctx, userID, amount)
	})(w, r)
}

// Unlock снимает резерв.
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	h.amountHandler("unlock", func(ctx context.Context, userID string, amount uint64, _ map[string]string) (model.Balance, error) {
		return h.service.Unlock(ctx, userID, amount)
	})(w, r)
}

// Transfer переводит средства между пользователями и возвращает баланс отправителя.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !validation.IsValidID(req.From) || !validation.IsValidID(req.To) {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	if !validMetadata(req.Metadata) {
		http.Error(w, "too many metadata entries", http.StatusBadRequest)
		return
	}

	balance, err := h.service.Transfer(r.Context(), req.From, req.To, req.Amount, req.Metadata)
	if err != nil {
		h.writeError(w, "transfer", err, zap.String("from", req.From), zap.String("to", req.To))
		return
	}

	h.writeBalance(w, balance)
}

// AttachSignature привязывает подпись внешнего расчёта к операции.
func (h *Handler) AttachSignature(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "txID")
	if !validation.IsValidID(txID) {
		http.Error(w, "invalid transaction id", http.StatusBadRequest)
		return
	}

	var req signatureRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !validation.IsValidID(req.Signature) {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	if err := h.service.AttachSignature(r.Context(), txID, req.Signature); err != nil {
		h.writeError(w, "attach signature", err, zap.String("transaction_id", txID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
