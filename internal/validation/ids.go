// Package validation содержит функции валидации входных данных.
package validation

import "unicode"

// MaxIDLength задаёт максимальную длину идентификатора в символах.
const MaxIDLength = 128

// IsValidID проверяет идентификатор пользователя, заказа, отзыва или операции:
// от 1 до MaxIDLength печатных символов без пробелов.
func IsValidID(id string) bool {
	if id == "" {
		return false
	}

	n := 0
	for _, r := range id {
		n++
		if n > MaxIDLength {
			return false
		}
		if r == unicode.ReplacementChar || !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return false
		}
	}

	return true
}
