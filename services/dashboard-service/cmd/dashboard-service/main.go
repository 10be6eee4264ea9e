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
	"github.com/o-castellano/botdesk/libs/outbox"
	otelx "github.com/o-castellano/botdesk/libs/otel"
	"github.com/o-castellano/botdesk/libs/runtime"
	"github.com/o-castellano/botdesk/services/dashboard-service/internal/consumer"
	"github.com/o-castellano/botdesk/services/dashboard-service/internal/entitlements"
	"github.com/o-castellano/botdesk/services/dashboard-service/internal/handlers"
	"github.com/o-castellano/botdesk/services/dashboard-service/internal/openai"
	"github.com/o-castellano/botdesk/services/dashboard-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "dashboard-service")
	port, err := config.Port("PORT", "8082")
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

	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	agentRepo := storage.NewAgentRepository(pool)
	sourceRepo := storage.NewSourceRepository(pool)
	inboxRepo := storage.NewInboxRepository(pool)
	apptRepo := storage.NewAppointmentRepository(pool, outboxRepo)

	limits, err := entitlements.NewBillingProvider(logger, entitlements.FreeTier(),
		config.String("BILLING_GRPC_ADDR", ""))
	if err != nil {
		panic(err)
	}

	openaiClient := openai.NewClient(
		config.String("OPENAI_API_KEY", ""),
		config.String("OPENAI_BASE_URL", ""),
	)

	agentHandler := handlers.NewAgentHandler(agentRepo, limits, logger)
	sourceHandler := handlers.NewSourceHandler(sourceRepo, logger)
	inboxHandler := handlers.NewInboxHandler(inboxRepo, logger)
	apptHandler := handlers.NewAppointmentHandler(apptRepo, logger)
	modelHandler := handlers.NewModelHandler(openaiClient, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	if brokers != "" {
		type widgetMessage struct {
			AgentID   string `json:"agent_id"`
			VisitorID string `json:"visitor_id"`
			Sender    string `json:"sender"`
			Body      string `json:"body"`
		}
		eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "dashboard-service"),
			Topic:   config.String("KAFKA_CONSUME_TOPIC", "widget.message.received.v1"),
		}, func(ctx context.Context, msg kafka.Message) error {
			var payload widgetMessage
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid widget message", "err", err)
				return nil
			}
			if payload.AgentID == "" || payload.VisitorID == "" || payload.Body == "" {
				logger.Error("missing widget message fields")
				return nil
			}
			sender := payload.Sender
			if sender != "agent" {
				sender = "visitor"
			}
			return inboxRepo.AppendMessage(ctx, payload.AgentID, payload.VisitorID, sender, payload.Body)
		})
		go eventConsumer.Run(ctx)
	}

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)

	mux.HandleFunc("/api/v1/agents", agentHandler.Agents)
	mux.HandleFunc("/api/v1/agents/item", agentHandler.Agent)
	mux.HandleFunc("/api/v1/sources", sourceHandler.Sources)
	mux.HandleFunc("/internal/sources/index-callback", sourceHandler.IndexCallback)
	mux.HandleFunc("/api/v1/inbox/conversations", inboxHandler.Conversations)
	mux.HandleFunc("/api/v1/inbox/messages", inboxHandler.Messages)
	mux.HandleFunc("/api/v1/appointments", apptHandler.List)
	mux.HandleFunc("/api/v1/appointments/confirm", apptHandler.Confirm)
	mux.HandleFunc("/api/v1/appointments/cancel", apptHandler.Cancel)
	mux.HandleFunc("/api/v1/models", modelHandler.List)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecovery(logger),
		httpx.WithBodyLimit(1<<20),
	)
	handler = otelhttp.NewHandler(handler, "dashboard")
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
