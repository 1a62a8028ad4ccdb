package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/italoag/wallet-sub007/internal/config"
	"github.com/italoag/wallet-sub007/internal/tracing/export"
	"github.com/italoag/wallet-sub007/internal/tracing/flags"
	"github.com/italoag/wallet-sub007/internal/tracing/health"
	"github.com/italoag/wallet-sub007/internal/tracing/messaging"
	"github.com/italoag/wallet-sub007/internal/tracing/metrics"
	"github.com/italoag/wallet-sub007/internal/tracing/model"
	"github.com/italoag/wallet-sub007/internal/tracing/sampling"
	"github.com/italoag/wallet-sub007/internal/tracing/tracer"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	_ "google.golang.org/grpc/encoding/gzip"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML configuration file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Debug(".env file not found or could not be loaded", zap.Error(err))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewTracingMetrics()
	flagStore := flags.NewStore(cfg.Tracing.Features, logger)

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Tracing.Backends.Elasticsearch.Addresses,
	})
	if err != nil {
		logger.Fatal("Failed to create elasticsearch client", zap.Error(err))
	}
	fallback := export.NewElasticsearchBackend(
		"elasticsearch",
		es,
		cfg.Tracing.Backends.Elasticsearch.Index,
		logger,
	)
	if err := fallback.EnsureIndex(ctx); err != nil {
		logger.Error("Failed to bootstrap span index", zap.Error(err))
	}

	conn, err := grpc.NewClient(
		cfg.Tracing.Backends.OTLP.Endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		logger.Fatal("Failed to create OTLP client connection", zap.Error(err))
	}
	defer conn.Close()
	primary := export.NewOTLPBackend("otlp", cfg.Service.Name, conn, logger)

	breaker := export.NewCircuitBreaker(cfg.BreakerConfig(), logger)
	exporter := export.NewResilientExporter(
		primary,
		fallback,
		breaker,
		cfg.ExportTimeout(),
		m,
		logger,
	)

	sampler, err := sampling.NewSampler(cfg.SamplerConfig(), exporter, m, logger)
	if err != nil {
		logger.Fatal("Failed to create tail sampler", zap.Error(err))
	}
	stopSampler := sampler.Start()
	defer stopSampler()

	tr := tracer.NewTracer(flagStore, sampler, cfg.SpanIdleTimeout(), logger)
	stopReaper := tr.StartReaper()
	defer stopReaper()

	propagator := messaging.NewEnvelopePropagator(tr, logger)
	consumer := messaging.NewConsumer(
		cfg.Kafka.Brokers,
		cfg.Kafka.Topic,
		cfg.Kafka.GroupID,
		propagator,
		tr,
		transactionHandler(tr),
		logger,
	)
	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Consumer stopped", zap.Error(err))
		}
	}()

	router := health.CreateRouter(exporter, sampler, flagStore, m, logger)
	srv := &http.Server{Addr: cfg.Health.Addr, Handler: router}
	go func() {
		logger.Info("Health server listening", zap.String("addr", cfg.Health.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down health server", zap.Error(err))
	}
}

// transactionHandler traces the processing of one transaction event inside
// the consumer span extracted from the envelope.
func transactionHandler(tr *tracer.Tracer) messaging.Handler {
	return func(ctx context.Context, env messaging.Envelope) error {
		_, span := tr.StartSpan(ctx, "process:"+env.Type, model.SpanKindInternal, flags.UseCase)
		defer tr.Finish(span)
		tr.Tag(span, "event.id", env.ID)
		tr.Tag(span, "event.source", env.Source)
		return nil
	}
}
