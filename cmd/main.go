package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mstgnz/gopaytr/handler"
	"github.com/mstgnz/gopaytr/infra/config"
	"github.com/mstgnz/gopaytr/infra/logger"
	"github.com/mstgnz/gopaytr/infra/metrics"
	"github.com/mstgnz/gopaytr/infra/middle"
	"github.com/mstgnz/gopaytr/infra/opensearch"
	"github.com/mstgnz/gopaytr/provider"
	"github.com/mstgnz/gopaytr/provider/paytr"
	"github.com/mstgnz/gopaytr/router"
)

const (
	version         = "1.0.0"
	metricNamespace = "gopaytr"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load env: %v\n", err)
		os.Exit(1)
	}

	app := config.GetAppConfig()

	var osLogger *opensearch.Logger
	var sink logger.Sink
	if app.EnableLogging {
		osClient, err := opensearch.NewClient(app)
		if err != nil {
			fmt.Fprintf(os.Stderr, "opensearch client: %v, continuing without OpenSearch logging\n", err)
		} else {
			osLogger = opensearch.NewLogger(osClient)
			sink = osLogger
		}
	}

	logger.InitGlobalLogger(logger.SystemLoggerConfig{
		EnableConsole: true,
		EnableSink:    sink != nil,
		MinLevel:      logger.ParseLevel(app.LoggingLevel),
		Format:        app.LogFormat,
		Service:       "gopaytr",
		Version:       version,
		Environment:   app.Environment,
	}, sink)

	if err := app.Validate(); err != nil {
		logger.Fatal("Invalid application configuration", err)
	}

	paytrCfg, err := config.LoadPaytrConfig(app)
	if err != nil {
		logger.Fatal("Invalid PayTR configuration", err)
	}

	var store *config.SQLiteStorage
	if paytrCfg.CredentialsDB != "" {
		store, err = config.NewSQLiteStorage(paytrCfg.CredentialsDB)
		if err != nil {
			logger.Fatal("Failed to open credential store", err)
		}
		defer store.Close()

		if err := paytrCfg.ApplyStore(store); err != nil {
			if !errors.Is(err, config.ErrProfileNotFound) {
				logger.Fatal("Failed to load merchant credentials", err)
			}
			logger.Warn("Merchant profile not found in credential store, using environment credentials", logger.LogContext{
				Fields: map[string]any{"profile": paytrCfg.MerchantProfile},
			})
		}
	}

	creds := paytrCfg.Credentials()
	gateway := paytr.NewProvider(paytr.Config{
		Credentials:  creds,
		TestMode:     paytrCfg.TestMode,
		Debug:        paytrCfg.Debug,
		TimeoutLimit: paytrCfg.TimeoutLimit,
		OkURL:        paytrCfg.OkURL,
		FailURL:      paytrCfg.FailURL,
	})
	if !creds.Complete() {
		logger.Warn("PayTR merchant credentials are incomplete, token requests will be rejected", logger.LogContext{
			Provider: "paytr",
		})
	}

	opts := []handler.HandlerOption{
		handler.WithMetrics(metrics.NewPaytrMetrics(metricNamespace, nil)),
		handler.WithOutcomeHandler(handler.OutcomeFunc(logOutcome)),
	}
	var eventsHandler *handler.EventsHandler
	if osLogger != nil {
		opts = append(opts, handler.WithEventRecorder(osLogger))
		eventsHandler = handler.NewEventsHandler(osLogger)
	}

	var stats handler.StatsProvider
	if store != nil {
		stats = store
	}

	rateLimiter := middle.NewRateLimiter(app.RateLimitPerMinute)
	defer rateLimiter.Stop()

	r := router.New(router.Dependencies{
		App:         app,
		Paytr:       paytrCfg,
		Payments:    handler.NewPaytrHandler(gateway, paytrCfg, config.App().Validator, opts...),
		Health:      handler.NewHealthHandler(version, app.Environment, creds.Complete, stats, osLogger != nil),
		Events:      eventsHandler,
		HTTPMetrics: metrics.NewHTTPMetrics(metricNamespace, nil),
		RateLimiter: rateLimiter,
	})

	server := &http.Server{
		Addr:              ":" + app.Port,
		Handler:           r,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", err)
		}
	}()

	logger.Info("API is running", logger.LogContext{
		Fields: map[string]any{
			"port":          app.Port,
			"callback_path": paytrCfg.Routes.CallbackPath(),
			"test_mode":     paytrCfg.TestMode,
		},
	})

	<-ctx.Done()

	logger.Info("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", err)
	}
}

// logOutcome is the default outcome handler of the standalone service.
// Hosts embedding the handler package provide their own to update orders.
func logOutcome(ctx context.Context, outcome provider.Outcome) error {
	switch o := outcome.(type) {
	case provider.PaymentSucceeded:
		logger.Info("Payment succeeded", logger.LogContext{
			Provider: "paytr",
			Fields:   map[string]any{"merchant_oid": o.OrderID, "amount": o.Amount},
		})
	case provider.PaymentFailed:
		logger.Warn("Payment failed", logger.LogContext{
			Provider: "paytr",
			Fields:   map[string]any{"merchant_oid": o.OrderID, "reason": o.Reason},
		})
	}
	return nil
}
