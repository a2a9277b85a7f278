package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookmail/internal/config"
	"bookmail/internal/db"
	httpx "bookmail/internal/http"
	"bookmail/internal/schedule"
	"bookmail/pkg/resend"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// resendMailer adapts the Resend client to the schedule.Mailer capability.
type resendMailer struct {
	client *resend.Client
}

func (m resendMailer) Send(ctx context.Context, msg schedule.Message) (string, error) {
	return m.client.SendEmail(ctx, msg.To, msg.Subject, msg.HTML, msg.Headers)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	store := &schedule.Repo{DB: gdb}
	mail := resendMailer{client: resend.NewClient(cfg.ResendAPIKey, cfg.ResendFromEmail, cfg.SendTimeout)}

	runner := &schedule.Runner{Store: store, Mail: mail, Log: log.With().Str("component", "scheduler").Logger()}
	retrier := &schedule.Retrier{Store: store, Mail: mail, Log: log.With().Str("component", "retry").Logger()}

	r := httpx.NewRouter(cfg, gdb, runner, retrier)

	ctx, cancel := context.WithCancel(context.Background())

	// Periodic trigger. Each tick is one full scheduler cycle.
	trigger := cron.New()
	if _, err := trigger.AddFunc(cfg.CronSpec, func() {
		if _, err := runner.Run(ctx, "cron"); err != nil {
			log.Error().Err(err).Msg("scheduled run failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Str("spec", cfg.CronSpec).Msg("invalid cron spec")
	}
	trigger.Start()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("cron", cfg.CronSpec).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	// Stop scheduling and let an in-flight cycle finish before tearing down
	// its context.
	cronCtx := trigger.Stop()
	select {
	case <-cronCtx.Done():
	case <-time.After(30 * time.Second):
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
