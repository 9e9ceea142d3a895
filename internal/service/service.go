package service

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Fodi999/fodi-ledger/internal/config"
	"github.com/Fodi999/fodi-ledger/internal/metrics"
	"github.com/Fodi999/fodi-ledger/internal/model"
	"github.com/Fodi999/fodi-ledger/internal/repository"
	"github.com/Fodi999/fodi-ledger/internal/settlement"
)

// Options содержит зависимости сервиса. Пустые Metrics и Logger заменяются заглушками.
type Options struct {
	Reward     config.RewardConfig
	Burn       config.BurnConfig
	Settlement *settlement.Client
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// Service объединяет хранилище и движки наград и сжигания для транспортного слоя.
type Service struct {
	ledger     Ledger
	rewards    *RewardEngine
	burns      *BurnEngine
	settlement *settlement.Client
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewService создаёт сервис поверх указанного хранилища.
func NewService(ledger Ledger, opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}

	burns, err := NewBurnEngine(ledger, opts.Burn, logger)
	if err != nil {
		return nil, err
	}

	return &Service{
		ledger:     ledger,
		rewards:    NewRewardEngine(ledger, opts.Reward, logger),
		burns:      burns,
		settlement: opts.Settlement,
		metrics:    m,
		logger:     logger,
	}, nil
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.ledger != nil {
		return s.ledger.Close()
	}
	return nil
}

// GetBalance возвращает баланс пользователя.
func (s *Service) GetBalance(ctx context.Context, userID string) (model.Balance, error) {
	return s.ledger.GetBalance(ctx, userID)
}

// ListTransactions возвращает операции пользователя, начиная с самой новой.
func (s *Service) ListTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	return s.ledger.ListTransactions(ctx, userID, limit)
}

// Deposit зачисляет внешнее пополнение.
func (s *Service) Deposit(ctx context.Context, userID string, amount uint64, metadata map[string]string) (model.Balance, error) {
	b, t, err := s.ledger.Credit(ctx, userID, amount, model.KindDeposit, withCaller(ctx, metadata))
	return s.observe("deposit", b, t, err)
}

// Withdraw списывает средства при выводе.
func (s *Service) Withdraw(ctx context.Context, userID string, amount uint64, metadata map[string]string) (model.Balance, error) {
	b, t, err := s.ledger.Debit(ctx, userID, amount, model.KindWithdrawal, withCaller(ctx, metadata))
	return s.observe("withdraw", b, t, err)
}

// Purchase списывает средства в оплату покупки.
func (s *Service) Purchase(ctx context.Context, userID string, amount uint64, metadata map[string]string) (model.Balance, error) {
	b, t, err := s.ledger.Debit(ctx, userID, amount, model.KindPurchase, withCaller(ctx, metadata))
	return s.observe("purchase", b, t, err)
}

// Transfer переводит средства между пользователями и возвращает баланс отправителя.
func (s *Service) Transfer(ctx context.Context, fromID, toID string, amount uint64, metadata map[string]string) (model.Balance, error) {
	b, t, err := s.ledger.Transfer(ctx, fromID, toID, amount, withCaller(ctx, metadata))
	return s.observe("transfer", b, t, err)
}

// Lock резервирует средства под заказ.
func (s *Service) Lock(ctx context.Context, userID string, amount uint64) (model.Balance, error) {
	b, err := s.ledger.Lock(ctx, userID, amount)
	if err != nil {
		s.reject("lock", err)
	}
	return b, err
}

// Unlock снимает резерв.
func (s *Service) Unlock(ctx context.Context, userID string, amount uint64) (model.Balance, error) {
	b, err := s.ledger.Unlock(ctx, userID, amount)
	if err != nil {
		s.reject("unlock", err)
	}
	return b, err
}

// RewardOrderCompletion начисляет награду за выполненный заказ.
func (s *Service) RewardOrderCompletion(ctx context.Context, userID, orderID string) (model.Balance, error) {
	b, t, err := s.rewards.RewardOrderCompletion(ctx, userID, orderID)
	return s.observe("reward_order_completion", b, t, err)
}

// RewardReferral начисляет награду за приглашение.
func (s *Service) RewardReferral(ctx context.Context, referrerID, refereeID string) (model.Balance, error) {
	b, t, err := s.rewards.RewardReferral(ctx, referrerID, refereeID)
	return s.observe("reward_referral", b, t, err)
}

// RewardDailyLogin начисляет награду за ежедневный вход.
func (s *Service) RewardDailyLogin(ctx context.Context, userID string) (model.Balance, error) {
	b, t, err := s.rewards.RewardDailyLogin(ctx, userID)
	return s.observe("reward_daily_login", b, t, err)
}

// RewardReview начисляет награду за отзыв.
func (s *Service) RewardReview(ctx context.Context, userID, reviewID string) (model.Balance, error) {
	b, t, err := s.rewards.RewardReview(ctx, userID, reviewID)
	return s.observe("reward_review", b, t, err)
}

// BurnOnPurchase сжигает процент от покупки.
func (s *Service) BurnOnPurchase(ctx context.Context, userID string, purchaseAmount uint64) (model.Balance, error) {
	b, t, err := s.burns.BurnOnPurchase(ctx, userID, purchaseAmount)
	return s.observe("burn_on_purchase", b, t, err)
}

// BurnTokens сжигает указанную сумму вручную.
func (s *Service) BurnTokens(ctx context.Context, userID string, amount uint64, reason string) (model.Balance, error) {
	b, t, err := s.burns.BurnTokens(ctx, userID, amount, reason)
	return s.observe("burn_tokens", b, t, err)
}

// AttachSignature привязывает подпись внешнего расчёта к операции.
func (s *Service) AttachSignature(ctx context.Context, txID, signature string) error {
	if err := s.ledger.AttachSignature(ctx, txID, signature); err != nil {
		s.reject("attach_signature", err)
		return err
	}
	s.metrics.Settled.Inc()
	return nil
}

func (s *Service) observe(operation string, b model.Balance, t model.Transaction, err error) (model.Balance, error) {
	if err != nil {
		s.reject(operation, err)
		return model.Balance{}, err
	}
	s.metrics.ObserveTransaction(string(t.Kind), t.Amount)
	return b, nil
}

func (s *Service) reject(operation string, err error) {
	s.metrics.ObserveRejection(operation, RejectionReason(err))
}

// RejectionReason возвращает короткую метку причины отказа для метрик и логов.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, repository.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, repository.ErrInvalidUnlock):
		return "invalid_unlock"
	case errors.Is(err, repository.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, repository.ErrSameUser):
		return "same_user"
	case errors.Is(err, repository.ErrInvalidKind):
		return "invalid_kind"
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, repository.ErrSignatureConflict):
		return "signature_conflict"
	case errors.Is(err, repository.ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}
