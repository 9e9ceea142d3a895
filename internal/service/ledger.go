// Package service реализует политики наград и сжигания поверх леджера FODI
// и фасад, через который леджер используют транспорт и фоновый расчёт.
package service

import (
	"context"

	"github.com/Fodi999/fodi-ledger/internal/model"
)

// Ledger описывает контракт хранилища балансов, используемый сервисом.
// Ему удовлетворяют repository.MemoryRepository и repository.PostgresRepository.
type Ledger interface {
	Close() error
	GetBalance(ctx context.Context, userID string) (model.Balance, error)
	Credit(ctx context.Context, userID string, amount uint64, kind model.TransactionKind, metadata map[string]string) (model.Balance, model.Transaction, error)
	Debit(ctx context.Context, userID string, amount uint64, kind model.TransactionKind, metadata map[string]string) (model.Balance, model.Transaction, error)
	Transfer(ctx context.Context, fromID, toID string, amount uint64, metadata map[string]string) (model.Balance, model.Transaction, error)
	Lock(ctx context.Context, userID string, amount uint64) (model.Balance, error)
	Unlock(ctx context.Context, userID string, amount uint64) (model.Balance, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error)
	ListUnsettled(ctx context.Context, afterSeq uint64, limit int) ([]model.Transaction, error)
	AttachSignature(ctx context.Context, txID, signature string) error
}

type callerKey struct{}

// WithCaller возвращает контекст с именем вызывающей системы; оно попадает в метаданные операций.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext возвращает имя вызывающей системы, если оно есть в контексте.
func CallerFromContext(ctx context.Context) (string, bool) {
	caller, ok := ctx.Value(callerKey{}).(string)
	return caller, ok && caller != ""
}

func withCaller(ctx context.Context, metadata map[string]string) map[string]string {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return metadata
	}

	md := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	md[model.MetaCaller] = caller
	return md
}
