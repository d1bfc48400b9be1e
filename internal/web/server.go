// Package web — HTTP-поверхность шлюза: маршрутизация, обработчики, ответы.
// Обработчики зависят от gateway.Service и хранилища загрузок; ни одного
// прямого обращения к MTProto здесь нет.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"telegram-gateway/internal/domain/gateway"
	"telegram-gateway/internal/infra/logger"
	"telegram-gateway/internal/infra/uploads"
)

const (
	readTimeout = 15 * time.Second
	// Операции входа и публикации историй упираются в сеть Telegram,
	// поэтому на запись отводится заметно больше, чем на чтение.
	writeTimeout = 120 * time.Second
	idleTimeout  = 60 * time.Second
)

// Server — HTTP-сервер шлюза.
type Server struct {
	srv       *http.Server
	svc       gateway.Service
	uploads   *uploads.Store
	authToken string
}

// NewServer собирает маршруты и настраивает http.Server.
// /health и статика /uploads/ доступны без bearer-токена.
func NewServer(addr string, svc gateway.Service, store *uploads.Store, authToken string) *Server {
	s := &Server{
		svc:       svc,
		uploads:   store,
		authToken: authToken,
	}

	api := http.NewServeMux()
	api.HandleFunc("/set_api_credentials", s.handleSetAPICredentials)
	api.HandleFunc("/create_session", s.handleCreateSession)
	api.HandleFunc("/create_bot_session", s.handleCreateBotSession)
	api.HandleFunc("/verify_otp", s.handleVerifyOTP)
	api.HandleFunc("/verify_2fa", s.handleVerify2FA)
	api.HandleFunc("/send_message", s.handleSendMessage)
	api.HandleFunc("/join_channel", s.handleJoinChannel)
	api.HandleFunc("/send_story", s.handleSendStory)
	api.HandleFunc("/upload_base64_image", s.handleUploadBase64Image)
	api.HandleFunc("/upload_image", s.handleUploadImage)
	api.HandleFunc("/list_uploads", s.handleListUploads)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(store.Dir()))))
	mux.Handle("/", s.authMiddleware(api))

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      loggingMiddleware(mux),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s
}

// Start запускает сервер и блокирует до его остановки.
// Штатное завершение через Shutdown ошибкой не считается.
func (s *Server) Start() error {
	logger.Info("http server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server")
	}
	return nil
}

// Shutdown останавливает сервер, дожидаясь активных запросов в пределах ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// handleHealth — liveness-проба; доступна без авторизации.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		logger.Error("write health response", zap.Error(err))
	}
}
