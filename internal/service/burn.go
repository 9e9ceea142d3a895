package service

import (
	"context"
	"math/bits"
	"strconv"

	"go.uber.org/zap"

	"github.com/Fodi999/fodi-ledger/internal/config"
	"github.com/Fodi999/fodi-ledger/internal/model"
	"github.com/Fodi999/fodi-ledger/internal/repository"
)

// Причины сжигания, записываемые в метаданные операции.
const (
	ReasonPurchaseBurn = "purchase_burn"
	ReasonManualBurn   = "manual_burn"
)

// BurnEngine списывает токены безвозвратно: процент от покупки или вручную.
type BurnEngine struct {
	ledger Ledger
	cfg    config.BurnConfig
	logger *zap.Logger
}

// NewBurnEngine создаёт движок сжигания. Ставка больше 100% считается ошибкой конфигурации.
func NewBurnEngine(ledger Ledger, cfg config.BurnConfig, logger *zap.Logger) (*BurnEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BurnEngine{ledger: ledger, cfg: cfg, logger: logger}, nil
}

// BurnAmount вычисляет сумму сжигания для покупки: процент с округлением вниз,
// но не меньше минимальной суммы. Нулевая покупка даёт ErrInvalidAmount.
func (e *BurnEngine) BurnAmount(purchaseAmount uint64) (uint64, error) {
	return burnAmount(purchaseAmount, e.cfg.TransactionBurnRate, e.cfg.MinBurnAmount)
}

func burnAmount(purchaseAmount uint64, rate uint8, minAmount uint64) (uint64, error) {
	if purchaseAmount == 0 || rate > 100 {
		return 0, repository.ErrInvalidAmount
	}

	// purchaseAmount * rate не помещается в uint64 для больших покупок, поэтому 128 бит.
	hi, lo := bits.Mul64(purchaseAmount, uint64(rate))
	burn, _ := bits.Div64(hi, lo, 100)

	return max(burn, minAmount), nil
}

// BurnOnPurchase сжигает часть токенов пользователя при покупке.
// Если доступного баланса не хватает, ничего не списывается.
func (e *BurnEngine) BurnOnPurchase(ctx context.Context, userID string, purchaseAmount uint64) (model.Balance, model.Transaction, error) {
	amount, err := e.BurnAmount(purchaseAmount)
	if err != nil {
		return model.Balance{}, model.Transaction{}, err
	}

	return e.burn(ctx, userID, amount, map[string]string{
		model.MetaReason:  ReasonPurchaseBurn,
		"purchase_amount": strconv.FormatUint(purchaseAmount, 10),
	})
}

// BurnTokens сжигает указанную сумму по административному решению.
func (e *BurnEngine) BurnTokens(ctx context.Context, userID string, amount uint64, reason string) (model.Balance, model.Transaction, error) {
	if reason == "" {
		reason = ReasonManualBurn
	}
	return e.burn(ctx, userID, amount, map[string]string{model.MetaReason: reason})
}

func (e *BurnEngine) burn(ctx context.Context, userID string, amount uint64, metadata map[string]string) (model.Balance, model.Transaction, error) {
	b, t, err := e.ledger.Debit(ctx, userID, amount, model.KindBurn, withCaller(ctx, metadata))
	if err != nil {
		return model.Balance{}, model.Transaction{}, err
	}

	e.logger.Info("tokens burned",
		zap.String("user_id", userID),
		zap.String("reason", metadata[model.MetaReason]),
		zap.Uint64("amount", amount),
		zap.String("transaction_id", t.ID),
	)

	return b, t, nil
}
