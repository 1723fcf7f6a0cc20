package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/next-trace/scg-planning-notify/adapters/kafka"
	"github.com/next-trace/scg-planning-notify/adapters/nats"
	"github.com/next-trace/scg-planning-notify/adapters/rabbitmq"
	"github.com/next-trace/scg-planning-notify/adapters/webhook"
	"github.com/next-trace/scg-planning-notify/config"
	"github.com/next-trace/scg-planning-notify/contract/notify"
	"github.com/next-trace/scg-planning-notify/memory"
	"github.com/next-trace/scg-planning-notify/observability"
	"github.com/next-trace/scg-planning-notify/store"
	"github.com/next-trace/scg-planning-notify/store/redis"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.FromEnv()

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("planning-notify stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	prop := observability.NewPropagator()

	tr, hook, closeTransport, err := openTransport(cfg, prop, logger)
	if err != nil {
		return err
	}
	defer closeTransport()

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	tracer := observability.NewTracer()

	storeOpts := []store.Option{store.WithSession(cfg.SessionID)}

	if cfg.RedisAddr != "" {
		persister, closeRedis, err := redis.NewWithRedis(ctx, redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
		})
		if closeRedis != nil {
			defer closeRedis()
		}

		switch {
		case persister == nil:
			return err
		case err != nil:
			logger.WarnContext(ctx, "redis unavailable, continuing", "err", err)
		}

		storeOpts = append(storeOpts, store.WithPersister(persister))
	}

	opts := []memory.Option{
		memory.WithLogger(logger),
		memory.WithRepositoryDSN(cfg.RepositoryDSN),
		memory.WithIndexDelay(cfg.IndexDelay),
		memory.WithPageSize(cfg.PageSize),
		memory.WithMaxInFlight(cfg.MaxInFlight),
		memory.WithMiddleware(tracer.Middleware(), metrics.Middleware()),
		memory.WithPropagator(prop),
		memory.WithOnError(metrics.OnError),
		memory.WithStoreOptions(storeOpts...),
	}
	if tr != nil {
		opts = append(opts, memory.WithTransport(tr))
	}

	sys, cleanup, err := memory.New(opts...)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.RedisAddr != "" {
		if n, err := sys.Store.Load(ctx); err != nil {
			logger.WarnContext(ctx, "store warm start failed", "err", err)
		} else {
			logger.InfoContext(ctx, "store warm start", "events", n)
		}
	}

	if err := sys.Start(ctx); err != nil {
		return err
	}

	logger.InfoContext(ctx, "planning-notify started",
		"transport", cfg.Transport, "session", cfg.SessionID, "handlers", len(sys.Router.Names()))

	errc := make(chan error, 2)

	if hook != nil {
		hook.Engine().GET("/metrics", gin.WrapH(observability.Handler(reg)))

		go func() { errc <- hook.Serve(ctx) }()
	}

	if cfg.MetricsAddr != "" {
		go func() { errc <- serveMetrics(ctx, cfg.MetricsAddr, reg) }()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return err
	}
}

// openTransport returns a nil transport for the in-memory bus. hook is set for the webhook
// transport, which also needs serving.
func openTransport(
	cfg config.Config,
	prop notify.HeaderPropagator,
	logger *slog.Logger,
) (tr notify.Transport, hook *webhook.Adapter, cleanup func(), err error) {
	nop := func() {}

	switch cfg.Transport {
	case config.TransportNATS:
		ad, closeFn, err := nats.NewWithNATS(
			nats.Config{URL: cfg.NATSURL, Name: "planning-notify", Subject: cfg.NATSSubject, ConnTimeout: 5 * time.Second, MaxReconnects: -1},
			nats.WithPropagator(prop), nats.WithLogger(logger),
		)
		if err != nil {
			return nil, nil, nil, err
		}

		return ad, nil, closeFn, nil
	case config.TransportRabbitMQ:
		ad, closeFn, err := rabbitmq.NewWithAMQPConn(rabbitmq.Config{
			URL:         cfg.AMQPURL,
			ConnTimeout: 5 * time.Second,
			Exchange:    cfg.AMQPExchange,
			Queue:       cfg.AMQPQueue,
			BindingKey:  cfg.AMQPBindingKey,
		})
		if err != nil {
			return nil, nil, nil, err
		}

		ad.Propagator = prop
		ad.Logger = logger

		return ad, nil, closeFn, nil
	case config.TransportKafka:
		ad, closeFn, err := kafka.NewWithKgo(kafka.Config{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			Group:    cfg.KafkaGroup,
			ClientID: "planning-notify",
		})
		if err != nil {
			return nil, nil, nil, err
		}

		ad.Propagator = prop
		ad.Logger = logger

		return ad, nil, closeFn, nil
	case config.TransportWebhook:
		gin.SetMode(gin.ReleaseMode)

		ad := webhook.New(webhook.Config{
			Addr:      cfg.WebhookAddr,
			Path:      cfg.WebhookPath,
			Secret:    cfg.WebhookSecret,
			TargetURL: cfg.WebhookTargetURL,
		}, webhook.WithPropagator(prop), webhook.WithLogger(logger))

		return ad, ad, nop, nil
	default:
		return nil, nil, nop, nil
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	gin.SetMode(gin.ReleaseMode)

	e := gin.New()
	e.Use(gin.Recovery())
	e.GET("/metrics", gin.WrapH(observability.Handler(reg)))

	srv := &http.Server{Addr: addr, Handler: e, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
