package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/Zhima-Mochi/paylink/internal/application/notification"
	apppayment "github.com/Zhima-Mochi/paylink/internal/application/payment"
	"github.com/Zhima-Mochi/paylink/internal/config"
	"github.com/Zhima-Mochi/paylink/internal/infrastructure/cache"
	"github.com/Zhima-Mochi/paylink/internal/infrastructure/gateway"
	"github.com/Zhima-Mochi/paylink/internal/infrastructure/id"
	"github.com/Zhima-Mochi/paylink/internal/infrastructure/mail"
	"github.com/Zhima-Mochi/paylink/internal/infrastructure/memory"
	notificationworker "github.com/Zhima-Mochi/paylink/internal/infrastructure/notification/worker"
	"github.com/Zhima-Mochi/paylink/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/paylink/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/paylink/internal/infrastructure/observability/telemetry"
	"github.com/Zhima-Mochi/paylink/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/paylink/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/paylink/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/paylink/internal/infrastructure/receipt"
	"github.com/Zhima-Mochi/paylink/internal/infrastructure/storage"
	"github.com/Zhima-Mochi/paylink/internal/observability"
	"github.com/Zhima-Mochi/paylink/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/paylink/internal/presentation/http"
)

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the payment HTTP API and notification worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving (requires DATABASE_URL)")
	return cmd
}

func runServe(migrate bool) error {
	cfg, baseLogger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = baseLogger.Sync() }()

	systemLogger := logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	counters, histograms := prometrics.Instruments(prometrics.New(reg, "", ""))
	tracer := oteltrace.New(cfg.ServiceName,
		oteltrace.WithVersion(Version),
		oteltrace.WithAttributes(oteltrace.ServiceAttributes(cfg.ServiceName, cfg.Env)...),
	)
	tel := telemetry.New(tracer, zaplogger.Wrap(baseLogger), counters, histograms)
	sysLog := zaplogger.Wrap(systemLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := apppayment.Deps{
		Gateway: gateway.NewClient(gateway.Config{
			BaseURL:      cfg.PaymentBaseURL,
			ClientKey:    cfg.PaymentClientKey,
			ClientSecret: cfg.PaymentClientSecret,
			Timeout:      cfg.PaymentTimeout,
		}),
		Renderer: receipt.NewPDFRenderer(),
		IDs:      id.NewUUIDGenerator(),
	}

	closeStore, err := wireStore(ctx, cfg, migrate, sysLog, &deps)
	if err != nil {
		return err
	}
	defer closeStore()

	files, err := storage.NewFilesystem(cfg.ReceiptDir, cfg.ReceiptBaseURL)
	if err != nil {
		return err
	}
	deps.Storage = files

	if cfg.UseRedis() {
		rdb, err := cache.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		deps.Cache = cache.NewProductCache(rdb, cfg.ProductCacheTTL)
		sysLog.Info("product_cache_enabled", observability.F("addr", cfg.RedisAddr))
	}

	bus := outbox.NewBus(tel, outbox.Options{})
	publishers := outbox.Fanout{bus}
	if cfg.UseKafka() {
		producer, err := outbox.DialKafka(cfg.KafkaBrokers, cfg.ServiceName)
		if err != nil {
			return err
		}
		kafka := outbox.NewKafkaPublisher(producer, cfg.KafkaTopicPrefix, tel)
		defer func() { _ = kafka.Close() }()
		publishers = append(publishers, kafka)
		sysLog.Info("kafka_publisher_enabled", observability.F("brokers", cfg.KafkaBrokers))
	}
	deps.Publisher = publishers

	dispatcher := notification.NewDispatcher(newMailer(cfg, tel), tel)
	notificationworker.New(bus, dispatcher, tel).Start()
	bus.Start(ctx)

	payments := apppayment.NewService(deps, tel)
	handler := httppresentation.NewHandler(payments, tel, httppresentation.Options{
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Receipts: files.Handler(),
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		systemLogger.Info("http_server_start", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		systemLogger.Error("http_server_error", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", zap.Error(err))
	} else {
		systemLogger.Info("http_server_stopped")
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		systemLogger.Warn("outbox_drain_incomplete", zap.Error(err))
	}
	return serveErr
}

// wireStore selects PostgreSQL when DATABASE_URL is set and the in-memory store otherwise.
func wireStore(ctx context.Context, cfg *config.Config, migrate bool, log observability.Logger, deps *apppayment.Deps) (func(), error) {
	if !cfg.UseDatabase() {
		products := memory.NewProductRepository()
		if cfg.SeedFile != "" {
			if err := memory.LoadSeedFile(cfg.SeedFile, products); err != nil {
				return nil, err
			}
			log.Info("seed_loaded", observability.F("path", cfg.SeedFile))
		}
		deps.Products = products
		deps.Payments = memory.NewPaymentRepository(products)
		deps.Receipts = memory.NewReceiptRepository()
		log.Info("store_selected", observability.F("store", "memory"))
		return func() {}, nil
	}

	if migrate {
		if err := postgres.RunMigrations(cfg.DatabaseURL, log); err != nil {
			return nil, err
		}
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	deps.Products = postgres.NewProductRepository(pool)
	deps.Payments = postgres.NewPaymentRepository(pool)
	deps.Receipts = postgres.NewReceiptRepository(pool)
	log.Info("store_selected", observability.F("store", "postgres"))
	return pool.Close, nil
}

func newMailer(cfg *config.Config, tel observability.Observability) notification.Mailer {
	smtpCfg := mail.SMTPConfig{
		Host:     cfg.MailHost,
		Port:     cfg.MailPort,
		Username: cfg.MailUsername,
		Password: cfg.MailPassword,
		From:     cfg.MailFrom,
	}
	if !smtpCfg.Configured() {
		tel.Logger().Warn("mail_not_configured")
		return mail.NewLogMailer(tel.Logger())
	}
	return mail.NewSMTP(smtpCfg)
}
