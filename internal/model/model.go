// Package model содержит доменные сущности леджера FODI.
package model

import (
	"math/bits"
	"time"
)

// UnitsPerToken задаёт количество минимальных единиц в одном целом токене FODI.
const UnitsPerToken uint64 = 1_000_000_000

// TransactionKind описывает тип операции, изменяющей баланс.
type TransactionKind string

const (
	KindDeposit    TransactionKind = "deposit"
	KindWithdrawal TransactionKind = "withdrawal"
	KindReward     TransactionKind = "reward"
	KindBurn       TransactionKind = "burn"
	KindPurchase   TransactionKind = "purchase"
	KindTransfer   TransactionKind = "transfer"
)

// Valid сообщает, является ли тип операции известным.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindReward, KindBurn, KindPurchase, KindTransfer:
		return true
	}
	return false
}

// IsCredit сообщает, увеличивает ли операция данного типа баланс.
func (k TransactionKind) IsCredit() bool {
	return k == KindDeposit || k == KindReward
}

// IsDebit сообщает, уменьшает ли операция данного типа баланс.
func (k TransactionKind) IsDebit() bool {
	return k == KindWithdrawal || k == KindBurn || k == KindPurchase
}

// Ключи метаданных, которые проставляет сам леджер.
const (
	MetaReason       = "reason"
	MetaDirection    = "direction"
	MetaCounterparty = "counterparty"
	MetaCaller       = "caller"

	DirectionIn  = "in"
	DirectionOut = "out"
)

// Balance содержит баланс пользователя в минимальных единицах токена.
type Balance struct {
	UserID string
	Total  uint64
	Locked uint64
}

// Available возвращает сумму, доступную для списания и блокировки.
func (b Balance) Available() uint64 {
	if b.Locked > b.Total {
		panic("model: balance invariant violated: locked exceeds total for " + b.UserID)
	}
	return b.Total - b.Locked
}

// Transaction описывает неизменяемую запись журнала операций.
// Seq задаёт порядок записи в журнале и растёт вместе с ним.
type Transaction struct {
	ID        string
	Seq       uint64
	UserID    string
	Kind      TransactionKind
	Amount    uint64
	Timestamp time.Time
	Signature *string
	Metadata  map[string]string
}

// Settled сообщает, привязана ли к операции внешняя подпись.
func (t Transaction) Settled() bool {
	return t.Signature != nil
}

// Clone возвращает копию операции, не разделяющую память с исходной.
func (t Transaction) Clone() Transaction {
	c := t
	if t.Signature != nil {
		s := *t.Signature
		c.Signature = &s
	}
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// Net сводит операции одного пользователя к итоговому балансу.
// Переводы учитываются по направлению, указанному в метаданных.
// Суммы накапливаются в 128 битах; ok == false, если итог отрицателен или не помещается в uint64.
func Net(txs []Transaction) (net uint64, ok bool) {
	var inHi, inLo, outHi, outLo uint64
	for _, t := range txs {
		switch {
		case t.Kind.IsCredit(), t.Kind == KindTransfer && t.Metadata[MetaDirection] == DirectionIn:
			inHi, inLo = add128(inHi, inLo, t.Amount)
		case t.Kind.IsDebit(), t.Kind == KindTransfer && t.Metadata[MetaDirection] == DirectionOut:
			outHi, outLo = add128(outHi, outLo, t.Amount)
		}
	}

	lo, borrow := bits.Sub64(inLo, outLo, 0)
	hi, borrow := bits.Sub64(inHi, outHi, borrow)
	if borrow != 0 || hi != 0 {
		return 0, false
	}
	return lo, true
}

func add128(hi, lo, v uint64) (uint64, uint64) {
	lo, carry := bits.Add64(lo, v, 0)
	return hi + carry, lo
}
