package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Zhima-Mochi/minishop-catalog/internal/application/catalog"
	"github.com/Zhima-Mochi/minishop-catalog/internal/config"
	obsprovider "github.com/Zhima-Mochi/minishop-catalog/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-catalog/internal/infrastructure/observability/otelsdk"
	"github.com/Zhima-Mochi/minishop-catalog/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-catalog/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-catalog/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-catalog/internal/pkg/logging"
	"github.com/Zhima-Mochi/minishop-catalog/internal/presentation/gateway"
	httppresentation "github.com/Zhima-Mochi/minishop-catalog/internal/presentation/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
)

const serviceVersion = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelSettings := otelsdk.Settings{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: serviceVersion,
		Endpoint:       cfg.OTel.Endpoint,
		AuthHeader:     cfg.OTel.AuthHeader,
		Insecure:       cfg.OTel.Insecure,
	}
	tp, otelShutdown, otelErr := otelsdk.Setup(ctx, otelSettings)

	var logOpts []logging.Option
	if otelSettings.Enabled() {
		logOpts = append(logOpts, logging.WithOTelBridge(global.GetLoggerProvider(), cfg.ServiceName))
	}
	baseLogger := logging.MustNewLogger(cfg.ServiceName, cfg.Env, logOpts...)
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	systemLogger := logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID)
	if otelErr != nil {
		systemLogger.Warn("otel_setup_degraded", zap.Error(otelErr))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	tel := obsprovider.New(
		oteltrace.FromProvider(tp, cfg.ServiceName),
		zaplogger.Wrap(baseLogger),
		prometrics.Instruments(prometrics.New(reg, "", "")),
	)

	ledger, closeLedger, err := buildLedger(ctx, cfg, systemLogger)
	if err != nil {
		systemLogger.Fatal("ledger_init_failed", zap.Error(err))
	}
	projections, err := buildProjections(ctx, cfg, systemLogger)
	if err != nil {
		systemLogger.Fatal("projection_init_failed", zap.Error(err))
	}
	synchronizer := catalog.NewSynchronizer(ledger, projections, tel)

	transport, err := buildTransport(cfg, tp, tel)
	if err != nil {
		systemLogger.Fatal("transport_init_failed", zap.Error(err))
	}

	dispatcher := catalog.NewDispatcher(
		catalog.NewReserveStock(ledger, synchronizer, transport.publisher, cfg.StockSource, tel),
		catalog.NewRollbackStock(ledger, synchronizer, transport.publisher, tel),
		catalog.NewSetStock(ledger, synchronizer, cfg.StockIgnoredSources, tel),
		catalog.NewApplyFlashSale(ledger, synchronizer, tel),
	)
	gw := gateway.New(dispatcher, transport.publisher, gateway.Policy{
		MaxRetries:         cfg.Retry.Max,
		Backoff:            cfg.Retry.Backoff,
		NonRetryable:       cfg.Retry.NonRetryable,
		DeadLetterNotFound: cfg.Retry.DLQOnNotFound,
	}, tel)

	janitor := catalog.NewJanitor(ledger, synchronizer, catalog.JanitorConfig{
		Interval:          cfg.JanitorInterval,
		Retention:         cfg.ReservationRetention,
		ReconcileInterval: cfg.ReconcileInterval,
	}, tel)

	handler := httppresentation.NewHandler(
		synchronizer,
		transport.publisher,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		tel.Logger(),
		tel,
	)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var background sync.WaitGroup
	background.Add(2)
	go func() {
		defer background.Done()
		transport.run(ctx, gw)
	}()
	go func() {
		defer background.Done()
		janitor.Run(ctx)
	}()

	go func() {
		systemLogger.Info("http_server_start",
			zap.String("addr", server.Addr),
			zap.String("transport", cfg.Transport),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error",
				zap.Error(err),
			)
			stop()
		}
	}()

	<-ctx.Done()
	systemLogger.Info("shutdown_started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error",
			zap.Error(err),
		)
	} else {
		systemLogger.Info("http_server_stopped")
	}

	waitOrTimeout(shutdownCtx, &background, systemLogger)
	if err := transport.close(shutdownCtx); err != nil {
		systemLogger.Error("transport_close_error", zap.Error(err))
	}
	closeLedger()
	if err := otelShutdown(shutdownCtx); err != nil {
		systemLogger.Error("otel_shutdown_error", zap.Error(err))
	}
	systemLogger.Info("shutdown_complete")
}

func waitOrTimeout(ctx context.Context, wg *sync.WaitGroup, logger *zap.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("background_workers_timeout", zap.Error(ctx.Err()))
	}
}
