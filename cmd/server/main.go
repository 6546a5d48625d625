// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/unclebandit/retention-backend/internal/channel"
	"github.com/unclebandit/retention-backend/internal/config"
	"github.com/unclebandit/retention-backend/internal/controller"
	"github.com/unclebandit/retention-backend/internal/db"
	"github.com/unclebandit/retention-backend/internal/handler"
	"github.com/unclebandit/retention-backend/internal/metrics"
	"github.com/unclebandit/retention-backend/internal/notification"
	"github.com/unclebandit/retention-backend/internal/queue"
	"github.com/unclebandit/retention-backend/internal/repository"
	"github.com/unclebandit/retention-backend/internal/service"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := cfg.RequireAuth(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setLogLevel(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	bus, err := queue.Open(ctx, cfg.Events, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Str("source", cfg.Events.Source).Msg("failed to connect event source")
	}
	defer bus.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn, Events: bus.Publisher}
	customerRepo := &repository.CustomerRepository{DB: conn}
	logRepo := &repository.DeliveryLogRepository{DB: conn, Events: bus.Publisher}

	m := metrics.New(prometheus.DefaultRegisterer)

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		CustomerRepo: customerRepo,
		LogRepo:      logRepo,
	}
	dispatcher := &service.Dispatcher{
		CampaignRepo:   campaignRepo,
		CustomerRepo:   customerRepo,
		LogRepo:        logRepo,
		Sender:         newSender(cfg.Dispatch),
		Lifecycle:      &service.Lifecycle{CampaignRepo: campaignRepo},
		Metrics:        m,
		Concurrency:    cfg.Dispatch.Concurrency,
		AttemptTimeout: cfg.Dispatch.AttemptTimeout,
	}

	sessions := notification.NewManager(bus.Source, notification.Stores{
		Campaigns: campaignRepo,
		Logs:      logRepo,
		Customers: customerRepo,
	}, notification.Options{
		FeedLimit:     cfg.Notifications.FeedLimit,
		BackfillLimit: cfg.Notifications.BackfillLimit,
		Metrics:       m,
	}, cfg.Notifications.SessionTTL)
	defer sessions.Close()

	router := handler.NewRouter(handler.RouterConfig{
		JWTSecret:       cfg.Auth.JWTSecret,
		Campaigns:       controller.NewCampaignController(campaignService, dispatcher),
		Notifications:   handler.NewNotificationHandler(sessions),
		MetricsGatherer: prometheus.DefaultGatherer,
		RequestTimeout:  cfg.Server.RequestTimeout,
	})

	srv := &http.Server{Addr: cfg.Server.Address, Handler: router}

	go func() {
		log.Info().Str("addr", cfg.Server.Address).Str("events", cfg.Events.Source).Msg("server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func newSender(cfg config.DispatchConfig) channel.Sender {
	if cfg.WebhookURL == "" {
		log.Warn().Msg("DISPATCH_WEBHOOK_URL not set, deliveries are only logged")
		return channel.LogSender{}
	}
	return channel.NewWebhookSender(cfg.WebhookURL)
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		log.Warn().Str("level", level).Msg("unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
