package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/o-castellano/botdesk/libs/config"
	"github.com/o-castellano/botdesk/libs/db"
	"github.com/o-castellano/botdesk/libs/httpx"
	"github.com/o-castellano/botdesk/libs/kafkax"
	otelx "github.com/o-castellano/botdesk/libs/otel"
	"github.com/o-castellano/botdesk/libs/runtime"
	"github.com/o-castellano/botdesk/services/analytics-service/internal/consumer"
	"github.com/o-castellano/botdesk/services/analytics-service/internal/handlers"
	"github.com/o-castellano/botdesk/services/analytics-service/internal/inbox"
	"github.com/o-castellano/botdesk/services/analytics-service/internal/metrics"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "analytics-service")
	port, err := config.Port("PORT", "8086")
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

	inboxRepo := inbox.NewRepository(pool)
	metricsRepo := metrics.NewRepository(pool)
	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "analytics-service")

	reminderConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   "reminder.sent.v1",
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			AppointmentID string `json:"appointment_id"`
			TenantID      string `json:"tenant_id"`
			AgentID       string `json:"agent_id"`
			LeadMinutes   int    `json:"lead_minutes"`
			SentAt        string `json:"sent_at"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid reminder.sent payload", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.TenantID == "" {
			logger.Error("reminder.sent missing appointment_id/tenant_id")
			return nil
		}
		sentAt, err := time.Parse(time.RFC3339, payload.SentAt)
		if err != nil {
			logger.Error("invalid sent_at", "err", err)
			return nil
		}
		if err := metricsRepo.RecordReminderSent(ctx, payload.AppointmentID, payload.TenantID, payload.AgentID, payload.LeadMinutes, sentAt); err != nil {
			logger.Error("failed to record reminder metric", "err", err)
			return err
		}
		logger.Info("reminder metric recorded", "appointment_id", payload.AppointmentID, "lead_minutes", payload.LeadMinutes)
		return nil
	})
	go reminderConsumer.Run(ctx)

	cancelConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   "appointment.autocancelled.v1",
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			AppointmentID string `json:"appointment_id"`
			TenantID      string `json:"tenant_id"`
			AgentID       string `json:"agent_id"`
			Reason        string `json:"reason"`
			CancelledAt   string `json:"cancelled_at"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid autocancel payload", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.TenantID == "" {
			logger.Error("autocancel missing appointment_id/tenant_id")
			return nil
		}
		cancelledAt, err := time.Parse(time.RFC3339, payload.CancelledAt)
		if err != nil {
			logger.Error("invalid cancelled_at", "err", err)
			return nil
		}
		if err := metricsRepo.RecordAutoCancellation(ctx, payload.AppointmentID, payload.TenantID, payload.AgentID, payload.Reason, cancelledAt); err != nil {
			logger.Error("failed to record cancellation metric", "err", err)
			return err
		}
		logger.Info("cancellation metric recorded", "appointment_id", payload.AppointmentID)
		return nil
	})
	go cancelConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	usage := handlers.NewUsageHandler(metricsRepo, logger)
	mux.HandleFunc("/api/v1/analytics/usage", usage.Usage)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecovery(logger),
	)
	handler = otelhttp.NewHandler(handler, "analytics")
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
