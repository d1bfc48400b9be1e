// Команда gateway — HTTP-шлюз к Telegram: авторизация сессий (пользовательских
// и bot), отправка сообщений, вступление в каналы, публикация историй и
// загрузка изображений через REST-подобное API.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"telegram-gateway/internal/app"
	"telegram-gateway/internal/infra/config"
	"telegram-gateway/internal/infra/logger"
)

func main() {
	envPath := flag.String("env", ".env", "path to .env file")
	flag.Parse()

	if err := config.Load(*envPath); err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	env := config.Env()

	logger.Init(env.LogLevel)
	if env.LogFile != "" {
		logger.EnableFile(logger.FileOptions{
			Path:       env.LogFile,
			Level:      env.LogFileLevel,
			MaxSizeMB:  env.LogFileMaxSize,
			MaxBackups: env.LogFileMaxBackups,
			MaxAgeDays: env.LogFileMaxAge,
			Compress:   env.LogFileCompress,
		})
	}
	for _, warning := range config.Warnings() {
		logger.Warn(warning)
	}

	mainCtx, mainCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer mainCancel()

	if err := app.NewApp(mainCtx, mainCancel).Run(); err != nil {
		logger.Fatal("gateway stopped with error", zap.Error(err))
	}
	logger.Info("gateway stopped gracefully")
}
