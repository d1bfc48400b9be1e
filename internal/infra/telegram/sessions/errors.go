package sessions

import "github.com/go-faster/errors"

// Сентинельные ошибки реестра сессий. HTTP-слой транслирует их в коды ответов,
// поэтому проверять следует через errors.Is, а не сравнением строк.
var (
	// ErrCredentialsUnset — попытка создать клиента до установки app_id/app_hash.
	ErrCredentialsUnset = errors.New("api credentials are not set")
	// ErrSessionNotFound — в реестре нет живого соединения с таким handle.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotAuthorized — операция требует авторизованного аккаунта (например, истории).
	ErrNotAuthorized = errors.New("session is not authorized")
)
