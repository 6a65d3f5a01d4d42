package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"defect-console/config"
	telegram "defect-console/internal/api"
	"defect-console/internal/container"
	"defect-console/internal/infrastructure/storage"
	"defect-console/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog, closer, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Создаём хранилище операторов
	operatorRepo := storage.NewMemoryOperatorRepository()

	// Собираем сервисы приложения
	appContainer := container.New(cfg, operatorRepo, appLog)
	defer appContainer.Close()

	if cfg.TelegramToken != "" {
		bot, err := telegram.NewBot(cfg.TelegramToken, appContainer.OperatorService, appContainer.InspectionService, appContainer.Session, logger.Component(appLog, "telegram"))
		if err != nil {
			appLog.WithError(err).Fatal("Failed to create bot")
		}
		appContainer.AddSink(bot)
		go func() {
			if err := bot.Run(ctx); err != nil {
				appLog.WithError(err).Error("Bot error")
			}
		}()
	} else {
		appLog.Info("TELEGRAM_TOKEN is not set, operator chat disabled")
	}

	go appContainer.Hub.Run(ctx)
	go appContainer.StatusMonitor.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           appContainer.Server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appLog.WithField("addr", cfg.HTTPAddr).Info("Console is running...")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.WithError(err).Error("HTTP server error")
			stop()
		}
	}()

	<-ctx.Done()
	appLog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Warn("HTTP shutdown error")
	}
}
