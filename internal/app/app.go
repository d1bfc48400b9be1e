// Package app собирает приложение из частей: конфигурация → хранилище
// загрузок → реестр сессий → доменный слой → HTTP-сервер, и управляет их
// жизненным циклом от старта до корректного останова.
package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"telegram-gateway/internal/domain/gateway"
	"telegram-gateway/internal/infra/config"
	"telegram-gateway/internal/infra/logger"
	"telegram-gateway/internal/infra/telegram/sessions"
	"telegram-gateway/internal/infra/uploads"
	"telegram-gateway/internal/web"
)

// shutdownTimeout ограничивает ожидание активных HTTP-запросов при останове.
const shutdownTimeout = 10 * time.Second

// App держит корневой контекст приложения. Его отмена (сигнал ОС или фатальная
// ошибка сервера) запускает останов всех подсистем.
type App struct {
	mainCtx    context.Context
	mainCancel context.CancelFunc
}

// NewApp создаёт приложение с заданным корневым контекстом.
func NewApp(mainCtx context.Context, mainCancel context.CancelFunc) *App {
	return &App{mainCtx: mainCtx, mainCancel: mainCancel}
}

// Run запускает все подсистемы и блокирует до останова.
// Порядок останова обратен порядку старта: сначала перестаём принимать
// HTTP-запросы, затем рвём MTProto-соединения, последним закрывается индекс.
func (a *App) Run() error {
	env := config.Env()

	store, err := uploads.NewStore(env.UploadDir, env.UploadIndexFile)
	if err != nil {
		return err
	}

	manager := sessions.NewManager(a.mainCtx, sessions.Options{
		TestDC:      env.TestDC,
		ThrottleRPS: env.ThrottleRPS,
		PingReply:   env.PingReply,
	})

	executor := gateway.NewExecutor(manager)
	if env.APIID != 0 && env.APIHash != "" {
		executor.SetCredentials(env.APIID, env.APIHash)
		logger.Info("telegram api credentials preset from environment")
	}

	server := web.NewServer(env.ServerAddress, executor, store, env.AuthToken)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
		// Сервер упал сам по себе; тянем за собой остальные подсистемы.
		a.mainCancel()
	case <-a.mainCtx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", zap.Error(err))
	}
	if err = manager.DisconnectAll(); err != nil {
		logger.Error("disconnect telegram clients", zap.Error(err))
	}
	if err = store.Close(); err != nil {
		logger.Error("close uploads index", zap.Error(err))
	}
	return runErr
}
