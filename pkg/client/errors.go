package client

import "errors"

// Таксономия ошибок клиента. Хендлеры UI различают их через errors.As/Is,
// а не по копанию в HTTP-кодах: весь разбор конверта живет здесь.
//
//	401 -> ErrUnauthorized (токен протух, нужен релогин)
//	403 -> *PermissionError (уведомление о правах, НЕ окно конфликта)
//	409 -> *domain.ConflictError (окно разрешения конфликта)
//	422 -> *domain.ValidationError (подсветка полей)
var ErrUnauthorized = errors.New("unauthorized")

// PermissionError — отказ в правах на workspace или операцию.
type PermissionError struct {
	Message string
}

func (e *PermissionError) Error() string {
	if e.Message == "" {
		return "permission denied"
	}
	return e.Message
}
