package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/o-castellano/botdesk/libs/config"
	"github.com/o-castellano/botdesk/libs/db"
	"github.com/o-castellano/botdesk/libs/httpx"
	otelx "github.com/o-castellano/botdesk/libs/otel"
	"github.com/o-castellano/botdesk/libs/runtime"
	"github.com/o-castellano/botdesk/services/numbers-service/internal/handlers"
	"github.com/o-castellano/botdesk/services/numbers-service/internal/pricing"
	"github.com/o-castellano/botdesk/services/numbers-service/internal/provision"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "numbers-service")
	port, err := config.Port("PORT", "8089")
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

	markup := 3.50
	if raw := config.String("NUMBER_MARKUP_USD", ""); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			markup = v
		}
	}

	carrier := pricing.NewTwilioPricingClient(pricing.TwilioPricingConfig{
		AccountSID: config.String("TWILIO_ACCOUNT_SID", ""),
		AuthToken:  config.String("TWILIO_AUTH_TOKEN", ""),
		BaseURL:    config.String("TWILIO_PRICING_BASE_URL", ""),
	})
	quoter := pricing.NewQuoter(carrier, logger, markup)

	searcher := provision.NewTwilioSearcher(provision.TwilioConfig{
		AccountSID: config.String("TWILIO_ACCOUNT_SID", ""),
		AuthToken:  config.String("TWILIO_AUTH_TOKEN", ""),
		BaseURL:    config.String("TWILIO_API_BASE_URL", ""),
	})
	repo := provision.NewRepository(pool)

	h := handlers.NewNumbersHandler(quoter, searcher, repo, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
	)
	mux.HandleFunc("/api/v1/numbers/pricing", h.Pricing)
	mux.HandleFunc("/api/v1/numbers/search", h.Search)
	mux.HandleFunc("/api/v1/numbers/provision", h.Provision)
	mux.HandleFunc("/api/v1/numbers", h.List)
	mux.HandleFunc("/api/v1/numbers/release", h.Release)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecovery(logger),
		httpx.WithBodyLimit(1<<20),
	)
	handler = otelhttp.NewHandler(handler, "numbers")
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
