package repository

import (
	"math"

	"github.com/Fodi999/fodi-ledger/internal/model"
)

// Лимиты списков операций.
const (
	DefaultListLimit = 50
	MaxListLimit     = 1000
)

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// Правила изменения баланса общие для всех реализаций хранилища.
// ceiling задаёт максимально допустимое значение total.

func creditBalance(b model.Balance, amount, ceiling uint64) (model.Balance, error) {
	if amount == 0 || amount > ceiling || b.Total > ceiling-amount {
		return b, ErrInvalidAmount
	}
	b.Total += amount
	return b, nil
}

func debitBalance(b model.Balance, amount uint64) (model.Balance, error) {
	if amount == 0 {
		return b, ErrInvalidAmount
	}
	if b.Available() < amount {
		return b, ErrInsufficientFunds
	}
	b.Total -= amount
	return b, nil
}

func lockBalance(b model.Balance, amount uint64) (model.Balance, error) {
	if amount == 0 {
		return b, ErrInvalidAmount
	}
	if b.Available() < amount {
		return b, ErrInsufficientFunds
	}
	b.Locked += amount
	return b, nil
}

func unlockBalance(b model.Balance, amount uint64) (model.Balance, error) {
	if amount == 0 {
		return b, ErrInvalidAmount
	}
	if b.Locked < amount {
		return b, ErrInvalidUnlock
	}
	b.Locked -= amount
	return b, nil
}

func checkCreditKind(kind model.TransactionKind) error {
	if !kind.IsCredit() {
		return ErrInvalidKind
	}
	return nil
}

func checkDebitKind(kind model.TransactionKind) error {
	if !kind.IsDebit() {
		return ErrInvalidKind
	}
	return nil
}

func copyMetadata(src map[string]string, extra ...string) map[string]string {
	dst := make(map[string]string, len(src)+len(extra)/2)
	for k, v := range src {
		dst[k] = v
	}
	for i := 0; i+1 < len(extra); i += 2 {
		dst[extra[i]] = extra[i+1]
	}
	return dst
}

const (
	memoryCeiling   uint64 = math.MaxUint64
	postgresCeiling uint64 = math.MaxInt64
)
