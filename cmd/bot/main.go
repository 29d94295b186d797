package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/romanzzaa/dhan-trigger-bot/internal/activitylog"
	"github.com/romanzzaa/dhan-trigger-bot/internal/config"
	"github.com/romanzzaa/dhan-trigger-bot/internal/dashboard"
	"github.com/romanzzaa/dhan-trigger-bot/internal/domain"
	"github.com/romanzzaa/dhan-trigger-bot/internal/infrastructure/dhan"
	"github.com/romanzzaa/dhan-trigger-bot/internal/instruments"
	"github.com/romanzzaa/dhan-trigger-bot/internal/monitor"
	"github.com/romanzzaa/dhan-trigger-bot/internal/notify"
	"github.com/romanzzaa/dhan-trigger-bot/internal/usecase"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	clock, err := domain.NewMarketClock(cfg.Market.Timezone, cfg.Market.OpenHour, cfg.Market.OpenMinute)
	if err != nil {
		logger.Error("failed to init market clock", slog.String("error", err.Error()))
		os.Exit(1)
	}

	activity := activitylog.New()

	store := instruments.NewStore(cfg.Dhan.ScripMasterURL, &http.Client{Timeout: cfg.Dhan.CSVTimeout}, logger)

	// Котировки и ордера ходят через отдельные клиенты: у опроса цены
	// таймаут короче, чем у отправки ордера
	quotes := dhan.NewClient(cfg.Dhan.BaseURL, cfg.Dhan.QuoteTimeout)
	broker := dhan.NewClient(cfg.Dhan.BaseURL, cfg.Dhan.OrderTimeout)

	// Telegram опционален: без токена просто работаем без уведомлений
	var notifier domain.Notifier
	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
		if err != nil {
			logger.Error("failed to init telegram notifier", slog.String("error", err.Error()))
			os.Exit(1)
		}
		notifier = tg
	}

	executor := usecase.NewOrderExecutor(broker, activity, notifier, logger)
	manager := monitor.NewManager(quotes, executor, clock, activity, logger, cfg.Monitor.Budget)

	server := dashboard.NewServer(store, manager, broker, activity, logger, cfg.Monitor.LogTail)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting dashboard...",
		slog.String("env", cfg.Env),
		slog.String("addr", cfg.ListenAddr),
		slog.Bool("telegram", notifier != nil))

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()

	// Останавливаем прогоны и даем серверу дописать ответы
	manager.StopAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", slog.String("error", err.Error()))
	}

	logger.Info("Bot stopped gracefully")
}
