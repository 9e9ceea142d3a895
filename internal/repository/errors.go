package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientFunds возвращается, если доступного баланса не хватает для списания или блокировки.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidUnlock возвращается при попытке разблокировать больше, чем заблокировано.
	ErrInvalidUnlock = errors.New("unlock amount exceeds locked funds")
	// ErrInvalidAmount возвращается для нулевой суммы или суммы, приводящей к переполнению.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrSameUser возвращается при переводе пользователю самому себе.
	ErrSameUser = errors.New("sender and recipient are the same user")
	// ErrInvalidKind возвращается, если тип операции не соответствует направлению изменения баланса.
	ErrInvalidKind = errors.New("invalid transaction kind")
	// ErrNotFound возвращается, если операция с указанным идентификатором не существует.
	ErrNotFound = errors.New("transaction not found")
	// ErrSignatureConflict возвращается при попытке заменить уже привязанную подпись другой.
	ErrSignatureConflict = errors.New("transaction already has a different signature")
	// ErrStorageUnavailable возвращается, если хранилище не удалось прочитать или записать.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

// IsBusinessError сообщает, является ли ошибка ожидаемым отказом по правилам леджера.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidUnlock) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrSameUser) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSignatureConflict)
}
