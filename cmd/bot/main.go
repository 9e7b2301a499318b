package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"chypto_bot/internal/api"
	"chypto_bot/internal/bot"
	"chypto_bot/internal/dedup"
	"chypto_bot/internal/notify"
	"chypto_bot/internal/repository"
	"chypto_bot/internal/repository/memory"
	"chypto_bot/internal/repository/mongo"
	"chypto_bot/internal/service"
	"chypto_bot/pkg/auth"
	"chypto_bot/pkg/logger"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type accountStore interface {
	service.AccountRepository
	service.ReferralRepository
	Ping(ctx context.Context) error
	io.Closer
}

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	err = logger.Initialize(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zapLogger := logger.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		zapLogger.Fatal("Failed to initialize account store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer store.Close()

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		zapLogger.Fatal("Failed to initialize telegram bot", zap.Error(err))
	}
	botAPI.Debug = cfg.Telegram.Debug

	botUsername := cfg.Telegram.BotUsername
	if botUsername == "" {
		botUsername = botAPI.Self.UserName
	}
	zapLogger.Info("Authorized on telegram", zap.String("bot_username", botUsername))

	ledgerCfg := cfg.Rewards
	ledgerCfg.BotUsername = botUsername
	ledgerService := service.NewLedgerService(store, ledgerCfg)
	accountService := service.NewAccountService(store)

	notifier := notify.NewTelegramNotifier(botAPI)
	defer notifier.Wait()

	deduplicator := newDeduplicator(ctx, cfg)
	handler := bot.NewHandler(botAPI, ledgerService, notifier, deduplicator, cfg.Links, cfg.Telegram.UpdateTimeout)

	routerCfg := api.RouterConfig{
		WebhookSecret: cfg.Telegram.WebhookSecret,
		Store:         store,
		Accounts:      accountService,
		Auth:          auth.NewTelegramAuth(cfg.Telegram.BotToken, cfg.Telegram.Debug),
		BotUsername:   botUsername,
	}

	pollingDone := make(chan struct{})
	switch cfg.Telegram.Mode {
	case modeWebhook:
		if err := setWebhook(botAPI, cfg.Telegram); err != nil {
			zapLogger.Fatal("Failed to register webhook", zap.Error(err))
		}
		routerCfg.Updates = handler
		close(pollingDone)
	case modePolling:
		if _, err := botAPI.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			zapLogger.Fatal("Failed to remove webhook", zap.Error(err))
		}
		go func() {
			defer close(pollingDone)
			handler.RunPolling(ctx, botAPI)
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(routerCfg),
	}

	go func() {
		zapLogger.Info("Starting server", zap.String("addr", server.Addr), zap.String("mode", cfg.Telegram.Mode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shut down server", zap.Error(err))
	}
	<-pollingDone
}

func openStore(ctx context.Context, cfg *Config) (accountStore, error) {
	switch cfg.Store.Driver {
	case driverMongo:
		s, err := mongo.New(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case driverMemory:
		logger.Logger().Warn("Using in-memory account store, balances are lost on restart")
		return memory.New(), nil
	default:
		r, err := repository.New(cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := r.Migrate(ctx); err != nil {
			_ = r.Close()
			return nil, err
		}
		return r, nil
	}
}

func newDeduplicator(ctx context.Context, cfg *Config) dedup.Deduplicator {
	if cfg.Redis.Enabled {
		return dedup.NewRedis(dedup.NewRedisClient(cfg.Redis.RedisConfig), cfg.Redis.RedisConfig)
	}

	m := dedup.NewMemory(cfg.Redis.TTL)
	go m.RunCleanup(ctx, dedup.DefaultTTL/24)
	return m
}

// setWebhook registers the webhook through the raw API call, the typed config in
// telegram-bot-api v5.5.1 has no secret_token field.
func setWebhook(botAPI *tgbotapi.BotAPI, cfg TelegramConfig) error {
	params := tgbotapi.Params{"url": cfg.WebhookURL}
	params.AddNonEmpty("secret_token", cfg.WebhookSecret)

	if _, err := botAPI.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}

	info, err := botAPI.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("failed to get webhook info: %w", err)
	}
	if info.LastErrorDate != 0 {
		logger.Logger().Warn("Telegram reported a webhook delivery error", zap.String("error", info.LastErrorMessage))
	}

	return nil
}
