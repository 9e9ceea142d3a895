package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/Fodi999/fodi-ledger/internal/config"
	"github.com/Fodi999/fodi-ledger/internal/model"
)

// Причины начисления наград, записываемые в метаданные операции.
const (
	ReasonOrderCompletion = "order_completion"
	ReasonReferral        = "referral"
	ReasonDailyLogin      = "daily_login"
	ReasonReview          = "review"
)

// RewardEngine начисляет фиксированные награды за бизнес-события.
// Суммы не зависят от контекста события. Дедупликации событий нет: повторный вызов
// для того же заказа начислит награду ещё раз.
type RewardEngine struct {
	ledger Ledger
	cfg    config.RewardConfig
	logger *zap.Logger
}

// NewRewardEngine создаёт движок наград с неизменяемой конфигурацией.
func NewRewardEngine(ledger Ledger, cfg config.RewardConfig, logger *zap.Logger) *RewardEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RewardEngine{ledger: ledger, cfg: cfg, logger: logger}
}

// RewardOrderCompletion начисляет награду за выполненный заказ.
func (e *RewardEngine) RewardOrderCompletion(ctx context.Context, userID, orderID string) (model.Balance, model.Transaction, error) {
	return e.credit(ctx, userID, e.cfg.OrderCompletion, map[string]string{
		model.MetaReason: ReasonOrderCompletion,
		"order_id":       orderID,
	})
}

// RewardReferral начисляет награду пригласившему пользователю. Приглашённый ничего не получает.
func (e *RewardEngine) RewardReferral(ctx context.Context, referrerID, refereeID string) (model.Balance, model.Transaction, error) {
	return e.credit(ctx, referrerID, e.cfg.Referral, map[string]string{
		model.MetaReason: ReasonReferral,
		"referee_id":     refereeID,
	})
}

// RewardDailyLogin начисляет награду за ежедневный вход.
// Не вызывать чаще раза в сутки для пользователя отвечает вызывающая сторона.
func (e *RewardEngine) RewardDailyLogin(ctx context.Context, userID string) (model.Balance, model.Transaction, error) {
	return e.credit(ctx, userID, e.cfg.DailyLogin, map[string]string{
		model.MetaReason: ReasonDailyLogin,
	})
}

// RewardReview начисляет награду за отзыв.
func (e *RewardEngine) RewardReview(ctx context.Context, userID, reviewID string) (model.Balance, model.Transaction, error) {
	return e.credit(ctx, userID, e.cfg.Review, map[string]string{
		model.MetaReason: ReasonReview,
		"review_id":      reviewID,
	})
}

func (e *RewardEngine) credit(ctx context.Context, userID string, amount uint64, metadata map[string]string) (model.Balance, model.Transaction, error) {
	b, t, err := e.ledger.Credit(ctx, userID, amount, model.KindReward, withCaller(ctx, metadata))
	if err != nil {
		return model.Balance{}, model.Transaction{}, err
	}

	e.logger.Info("reward credited",
		zap.String("user_id", userID),
		zap.String("reason", metadata[model.MetaReason]),
		zap.Uint64("amount", amount),
		zap.String("transaction_id", t.ID),
	)

	return b, t, nil
}
