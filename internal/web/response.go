package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"telegram-gateway/internal/infra/logger"
	"telegram-gateway/internal/infra/telegram/sessions"
)

// writeJSON сериализует payload и пишет ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write response", zap.Error(err))
	}
}

// writeError отдаёт ошибку в форме {"error": "..."} со статусом по таксономии.
func writeError(w http.ResponseWriter, err error) {
	writeErrorStatus(w, statusForError(err), err.Error())
}

// writeErrorStatus — то же, но с явным статусом и текстом.
func writeErrorStatus(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusForError переводит доменные ошибки в HTTP-статусы:
//   - нет учётных данных или сессии — ошибка клиента (400);
//   - сессия не авторизована — 401;
//   - всё остальное — сбой внешнего вызова (500).
func statusForError(err error) int {
	switch {
	case errors.Is(err, sessions.ErrCredentialsUnset),
		errors.Is(err, sessions.ErrSessionNotFound):
		return http.StatusBadRequest
	case errors.Is(err, sessions.ErrNotAuthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
