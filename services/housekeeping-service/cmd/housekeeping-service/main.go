package main

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/o-castellano/botdesk/libs/config"
	"github.com/o-castellano/botdesk/libs/db"
	"github.com/o-castellano/botdesk/libs/httpx"
	"github.com/o-castellano/botdesk/libs/outbox"
	otelx "github.com/o-castellano/botdesk/libs/otel"
	"github.com/o-castellano/botdesk/libs/runtime"
	"github.com/o-castellano/botdesk/services/housekeeping-service/internal/autocancel"
	"github.com/o-castellano/botdesk/services/housekeeping-service/internal/cron"
	"github.com/o-castellano/botdesk/services/housekeeping-service/internal/email"
	"github.com/o-castellano/botdesk/services/housekeeping-service/internal/reminders"
	"github.com/o-castellano/botdesk/services/housekeeping-service/internal/sms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "housekeeping-service")
	port, err := config.Port("PORT", "8088")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	cronSecret, err := config.RequiredString("CRON_SECRET")
	if err != nil {
		panic(err)
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	smsSender := buildSMSSender(logger)
	mailer := email.NewSMTPSender(
		config.String("SMTP_HOST", "localhost"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", ""),
	)

	// Tolerance mirrors the external scheduler's interval so consecutive
	// runs tile the reminder windows without gaps.
	pollMinutes := config.Int("CRON_POLL_MINUTES", 5)
	if pollMinutes <= 0 {
		pollMinutes = 5
	}
	reminderRepo := reminders.NewRepository(pool, outboxRepo)
	scheduler := reminders.NewScheduler(reminderRepo, smsSender, reminderRepo, logger, reminders.Config{
		LeadTimes: parseLeadMinutes(config.String("REMINDER_LEAD_MINUTES", "1440,60")),
		Tolerance: time.Duration(pollMinutes) * time.Minute,
	})

	cancelWindowMinutes := config.Int("AUTOCANCEL_WINDOW_MINUTES", 120)
	if cancelWindowMinutes <= 0 {
		cancelWindowMinutes = 120
	}
	cancelRepo := autocancel.NewRepository(pool, outboxRepo)
	canceller, err := autocancel.NewCanceller(cancelRepo, mailer, logger, autocancel.Policy{
		Mode:   config.String("AUTOCANCEL_POLICY", autocancel.ModeConfirmWindow),
		Window: time.Duration(cancelWindowMinutes) * time.Minute,
	})
	if err != nil {
		panic(err)
	}

	cronHandler := cron.NewHandler(cronSecret, logger,
		cron.Job{Name: "appointment-reminders", Run: scheduler.Run},
		cron.Job{Name: "auto-cancel", Run: canceller.Run},
	)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
	)
	mux.Handle("/internal/cron/calendar-notifications", cronHandler)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecovery(logger),
	)
	handler = otelhttp.NewHandler(handler, "housekeeping")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func buildSMSSender(logger *slog.Logger) sms.Sender {
	switch config.String("SMS_PROVIDER", "noop") {
	case "twilio":
		return sms.NewTwilioSender(sms.TwilioConfig{
			AccountSID: config.String("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  config.String("TWILIO_AUTH_TOKEN", ""),
			From:       config.String("TWILIO_FROM_NUMBER", ""),
		})
	case "webhook":
		return sms.NewWebhookSender(
			config.String("SMS_WEBHOOK_URL", ""),
			config.String("SMS_WEBHOOK_TOKEN", ""),
		)
	default:
		logger.Warn("sms provider not configured, reminders will be dropped")
		return sms.NewNoopSender()
	}
}

func parseLeadMinutes(raw string) []time.Duration {
	var leads []time.Duration
	for _, part := range strings.Split(raw, ",") {
		minutes, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || minutes <= 0 {
			continue
		}
		leads = append(leads, time.Duration(minutes)*time.Minute)
	}
	return leads
}
