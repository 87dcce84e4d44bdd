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

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-scheduler/cmd/mainconfig"
	"github.com/wolfman30/clinic-scheduler/internal/api/router"
	"github.com/wolfman30/clinic-scheduler/internal/app/bootstrap"
	"github.com/wolfman30/clinic-scheduler/internal/booking"
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/notify"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

func main() {
	// Local development reads .env; deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-scheduler API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

type app struct {
	handler http.Handler
	worker  *notify.Worker
	cleanup func()
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.cleanup()

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	a.worker.Start(workerCtx)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		cancelWorker()
		waitForWorker(a.worker, logger, 5*time.Second)
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Requests finish first; whatever they left in an in-memory buffer is
	// delivered before exit.
	cancelWorker()
	waitForWorker(a.worker, logger, 10*time.Second)
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelDrain()
	if n := a.worker.Drain(drainCtx); n > 0 {
		logger.Info("delivered buffered notifications on shutdown", "count", n)
	}
	logger.Info("server stopped")
	return nil
}

// buildApp wires config into the HTTP handler and notification worker.
func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	metricsHandler, bookingMetrics := setupMetrics()

	registry, closeRegistry, err := bootstrap.BuildRegistry(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	cleanup := []func(){closeRegistry}
	release := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	var backends bootstrap.QueueBackends
	switch cfg.NotifyQueue {
	case "redis":
		backends.Redis = bootstrap.BuildRedisClient(ctx, cfg, logger, true)
		if backends.Redis != nil {
			cleanup = append(cleanup, func() { _ = backends.Redis.Close() })
		}
	case "sqs":
		if backends.SQS, err = mainconfig.NewSQSClient(ctx, cfg); err != nil {
			logger.Warn("failed to load AWS config; SQS queue disabled", "error", err)
		}
	}
	queue := bootstrap.BuildQueue(cfg, backends, logger)

	var sesClient *sesv2.Client
	if bootstrap.NeedsSES(cfg) {
		if sesClient, err = mainconfig.NewSESClient(ctx, cfg); err != nil {
			logger.Warn("failed to load AWS config; SES disabled", "error", err)
		}
	}
	email, provider := bootstrap.BuildEmailSender(cfg, sesClient, logger)

	cal, err := bootstrap.BuildCalendar(ctx, cfg, logger)
	if err != nil {
		logger.Warn("calendar disabled", "error", err)
	}
	gateway, err := bootstrap.BuildGateway(cfg, email, cal, logger)
	if err != nil {
		release()
		return nil, err
	}
	worker := bootstrap.BuildWorker(cfg, queue, gateway, registry, bookingMetrics, logger)

	loc, err := bootstrap.ClinicLocation(cfg)
	if err != nil {
		release()
		return nil, err
	}
	svc := booking.NewService(registry, queue, bookingMetrics, booking.Config{DefaultDoctorID: cfg.DefaultDoctorID, Location: loc}, logger)
	if cfg.DoctorJWTSecret == "" {
		logger.Warn("DOCTOR_JWT_SECRET not set; doctor endpoints will reject every request")
	}
	handler := router.New(&router.Config{
		Logger:             logger,
		Booking:            booking.NewHandler(svc, cfg.ClinicName, logger),
		DoctorJWTSecret:    cfg.DoctorJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	logger.Info("application wired",
		"email_provider", provider,
		"calendar_enabled", cal != nil,
		"notify_queue", fmt.Sprintf("%T", queue),
		"default_doctor", svc.DefaultDoctor(),
	)
	return &app{handler: handler, worker: worker, cleanup: release}, nil
}

func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewBookingMetrics(reg)
}

// waitForWorker returns once the worker exits or timeout elapses.
func waitForWorker(w *notify.Worker, logger *logging.Logger, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("notification worker did not stop in time", "timeout", timeout)
	}
}
