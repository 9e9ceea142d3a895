package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Fodi999/fodi-ledger/internal/validation"
)

type orderRewardRequest struct {
	UserID  string `json:"user_id"`
	OrderID string `json:"order_id"`
}

type referralRewardRequest struct {
	ReferrerID string `json:"referrer_id"`
	RefereeID  string `json:"referee_id"`
}

type dailyLoginRequest struct {
	UserID string `json:"user_id"`
}

type reviewRewardRequest struct {
	UserID   string `json:"user_id"`
	ReviewID string `json:"review_id"`
}

type purchaseBurnRequest struct {
	UserID         string `json:"user_id"`
	PurchaseAmount uint64 `json:"purchase_amount"`
}

type manualBurnRequest struct {
	UserID string `json:"user_id"`
	Amount uint64 `json:"amount"`
	Reason string `json:"reason"`
}

func validIDs(ids ...string) bool {
	for _, id := range ids {
		if !validation.IsValidID(id) {
			return false
		}
	}
	return true
}

// RewardOrderCompletion начисляет награду за выполненный заказ.
func (h *Handler) RewardOrderCompletion(w http.ResponseWriter, r *http.Request) {
	var req orderRewardRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !validIDs(req.UserID, req.OrderID) {
		http.Error(w, "invalid user or order id", http.StatusBadRequest)
		return
	}

	balance, err := h.service.RewardOrderCompletion(r.Context(), req.UserID, req.OrderID)
	if err != nil {
		h.writeError(w, "reward order completion", err, zap.String("user_id", req.UserID), zap.String("order_id", req.OrderID))
		return
	}

	h.writeBalance(w, balance)
}

// RewardReferral начисляет награду пригласившему пользователю.
func (h *Handler) RewardReferral(w http.ResponseWriter, r *http.Request) {
	var req referralRewardRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !validIDs(req.ReferrerID, req.RefereeID) {
		http.Error(w, "invalid referrer or referee id", http.StatusBadRequest)
		return
	}

	balance, err := h.service.RewardReferral(r.Context(), req.ReferrerID, req.RefereeID)
	if err != nil {
		h.writeError(w, "reward referral", err, zap.String("referrer_id", req.ReferrerID))
		return
	}

	h.writeBalance(w, balance)
}

// RewardDailyLogin начисляет награду за ежедневный вход.
func (h *Handler) RewardDailyLogin(w http.ResponseWriter, r *http.Request) {
	var req dailyLoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !validIDs(req.UserID) {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	balance, err := h.service.RewardDailyLogin(r.Context(), req.UserID)
	if err != nil {
		h.writeError(w, "reward daily login", err, zap.String("user_id", req.UserID))
		return
	}

	h.writeBalance(w, balance)
}

// RewardReview начисляет награду за отзыв.
func (h *Handler) RewardReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRewardRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !validIDs(req.UserID, req.ReviewID) {
		http.Error(w, "invalid user or review id", http.StatusBadRequest)
		return
	}

	balance, err := h.service.RewardReview(r.Context(), req.UserID, req.ReviewID)
	if err != nil {
		h.writeError(w, "reward review", err, zap.String("user_id", req.UserID))
		return
	}

	h.writeBalance(w, balance)
}

// BurnOnPurchase сжигает процент от покупки.
func (h *Handler) BurnOnPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseBurnRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !validIDs(req.UserID) {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	balance, err := h.service.BurnOnPurchase(r.Context(), req.UserID, req.PurchaseAmount)
	if err != nil {
		h.writeError(w, "burn on purchase", err, zap.String("user_id", req.UserID), zap.Uint64("purchase_amount", req.PurchaseAmount))
		return
	}

	h.writeBalance(w, balance)
}

// BurnTokens сжигает указанную сумму по административному решению.
func (h *Handler) BurnTokens(w http.ResponseWriter, r *http.Request) {
	var req manualBurnRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !validIDs(req.UserID) {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	balance, err := h.service.BurnTokens(r.Context(), req.UserID, req.Amount, req.Reason)
	if err != nil {
		h.writeError(w, "burn tokens", err, zap.String("user_id", req.UserID), zap.Uint64("amount", req.Amount))
		return
	}

	h.writeBalance(w, balance)
}
