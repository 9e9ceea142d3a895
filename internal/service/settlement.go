package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Fodi999/fodi-ledger/internal/repository"
	"github.com/Fodi999/fodi-ledger/internal/settlement"
)

const settlementBatchSize = 100

// StartSettlement запускает фоновую отправку неподписанных операций в систему расчётов.
// Без настроенного клиента ничего не делает.
func (s *Service) StartSettlement(ctx context.Context) {
	if s.settlement == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		var cursor uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cursor = s.processSettlementBatch(ctx, cursor)
			}
		}
	}()
}

// processSettlementBatch отправляет на расчёт неподписанные операции с Seq больше cursor
// и возвращает позицию для следующего вызова. Дойдя до конца журнала, обход начинается заново,
// поэтому операции, которые долго остаются неподписанными, не задерживают более новые.
// Ошибка системы расчётов прерывает порцию, а сбойная операция повторяется на следующем круге.
func (s *Service) processSettlementBatch(ctx context.Context, cursor uint64) uint64 {
	txs, err := s.ledger.ListUnsettled(ctx, cursor, settlementBatchSize)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("list unsettled transactions", zap.Error(err))
		}
		return cursor
	}

	for _, t := range txs {
		res, err := s.settlement.Settle(ctx, settlement.NewRequest(t))
		if err != nil {
			if ctx.Err() != nil {
				return cursor
			}
			s.logger.Warn("settle transaction", zap.String("transaction_id", t.ID), zap.Error(err))
			return t.Seq
		}

		switch res.StatusCode {
		case http.StatusTooManyRequests:
			if res.RetryAfter > 0 {
				timer := time.NewTimer(res.RetryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
				case <-timer.C:
				}
			}
			return cursor
		case http.StatusAccepted:
			cursor = t.Seq
			continue
		}

		err = s.AttachSignature(ctx, t.ID, res.Signature)
		switch {
		case err == nil:
			s.logger.Debug("transaction settled", zap.String("transaction_id", t.ID), zap.String("signature", res.Signature))
		case errors.Is(err, repository.ErrSignatureConflict):
			s.logger.Error("settlement returned a different signature",
				zap.String("transaction_id", t.ID),
				zap.String("signature", res.Signature),
			)
		default:
			if ctx.Err() != nil {
				return cursor
			}
			s.logger.Warn("attach signature", zap.String("transaction_id", t.ID), zap.Error(err))
		}
		cursor = t.Seq
	}

	if len(txs) < settlementBatchSize {
		return 0
	}
	return cursor
}
