// Command server runs the WhatsApp consent bot: the provider webhooks, the
// operational API and the background inactivity sweeper.
//
//	@title			WhatsApp Consent Bot API
//	@version		1.0
//	@description	Operational API for the WhatsApp data-policy consent bot.
//	@BasePath		/api/v1
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-consent-bot/internal/channel"
	"github.com/tbourn/go-consent-bot/internal/config"
	httpapi "github.com/tbourn/go-consent-bot/internal/http"
	"github.com/tbourn/go-consent-bot/internal/observability"
	"github.com/tbourn/go-consent-bot/internal/repo"
	"github.com/tbourn/go-consent-bot/internal/services"
	"github.com/tbourn/go-consent-bot/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if !sysutil.IsTruthy(os.Getenv("DOTENV_DISABLED")) {
		// Missing .env is fine outside local development.
		_ = godotenv.Load()
	}

	cfg := config.MustLoad()
	lg := sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty).Hook(observability.TraceHook{})
	log.Logger = lg
	appVersion := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	if err := run(cfg, appVersion); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
}

func run(cfg config.Config, appVersion string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := openStore(cfg.DB)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	sender, err := newSender(cfg.Channel)
	if err != nil {
		return err
	}

	engine := services.NewEngine(db, sender, cfg.Flow.PolicyDocuments)
	engine.EventTTL = cfg.Flow.EventTTL

	sweeper := services.NewSweeper(db, sender)
	sweeper.WarnAfter = cfg.Flow.WarnAfter
	sweeper.GraceAfterWarning = cfg.Flow.Grace

	sched, err := newScheduler(cfg.Scheduler, db, sweeper)
	if err != nil {
		return err
	}
	sched.Start()
	if next := sched.Next(sweepJob); !next.IsZero() {
		log.Info().Time("next_sweep", next).Msg("inactivity sweep scheduled")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sched.Stop(sctx); err != nil {
			log.Warn().Err(err).Msg("scheduler did not stop cleanly")
		}
	}()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Services{
		Conversations: engine,
		Sessions:      services.NewSessionService(db),
		Sweeper:       scheduledSweep{sched: sched, sweeper: sweeper},
	}, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", appVersion).
			Str("channel", cfg.Channel.Provider).
			Str("db_driver", cfg.DB.Driver).
			Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return err
	}

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

func openStore(cfg config.DBConfig) (*gorm.DB, error) {
	db, err := repo.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := repo.Instrument(db); err != nil {
		return nil, err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newSender(cfg config.ChannelConfig) (channel.Sender, error) {
	switch cfg.Provider {
	case config.ProviderCloud:
		return channel.NewCloudClient(channel.CloudConfig{
			BaseURL:       cfg.WhatsApp.APIBase,
			Version:       cfg.WhatsApp.APIVersion,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
			Token:         cfg.WhatsApp.Token,
			Timeout:       cfg.WhatsApp.SendTimeout,
		}, nil)
	case config.ProviderTwilio:
		return channel.NewTwilioSender(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From)
	default:
		log.Warn().Msg("CHANNEL_PROVIDER=log: outbound messages are only logged")
		return channel.NewLogSender(), nil
	}
}
