package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"crvs/internal/events/countryconfig"
	"crvs/internal/events/eventconfig"
	eventshandler "crvs/internal/events/handler"
	eventsmetrics "crvs/internal/events/metrics"
	"crvs/internal/events/service"
	draftstore "crvs/internal/events/store/draft"
	eventstore "crvs/internal/events/store/event"
	httpapi "crvs/internal/http"
	jwttoken "crvs/internal/jwt_token"
	"crvs/internal/platform/config"
	"crvs/internal/platform/httpserver"
	"crvs/internal/platform/logger"
	"crvs/internal/platform/metrics"
	"crvs/internal/platform/pgmigrate"
	redisclient "crvs/internal/platform/redis"
	"crvs/migrations"
	"crvs/pkg/platform/audit"
	"crvs/pkg/platform/audit/outbox"
	"crvs/pkg/platform/audit/publishers/compliance"
	auditmemory "crvs/pkg/platform/audit/store/memory"
	auditpostgres "crvs/pkg/platform/audit/store/postgres"
)

// main wires configuration, storage and the HTTP surface, then runs the
// server and its background workers until SIGINT or SIGTERM.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	readiness := map[string]httpapi.ReadinessCheck{}
	eventMetrics := eventsmetrics.New()
	// workers start only once setup has succeeded
	var workers []func(context.Context) error

	configs, watch, err := configSource(cfg, log)
	if err != nil {
		return err
	}
	if watch != nil {
		workers = append(workers, watch)
	}

	var (
		events     service.EventStore
		operations audit.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		if err := pgmigrate.Apply(ctx, db, migrations.FS); err != nil {
			return err
		}
		readiness["postgres"] = db.PingContext

		events = eventstore.NewPostgres(db, eventstore.WithPostgresTxTimeout(cfg.TxTimeout))
		outboxStore := auditpostgres.New(db)
		operations = outboxStore

		if cfg.Kafka.Enabled() {
			client, err := kgo.NewClient(kgo.SeedBrokers(cfg.Kafka.Brokers...))
			if err != nil {
				return fmt.Errorf("create kafka client: %w", err)
			}
			defer client.Close()
			if err := outbox.EnsureTopic(ctx, client, cfg.Kafka.Topic, cfg.Kafka.Partitions, -1); err != nil {
				return err
			}
			relay := outbox.NewRelay(outboxStore, client, cfg.Kafka.Topic,
				outbox.WithPollInterval(cfg.OutboxPollInterval),
				outbox.WithLogger(log),
			)
			workers = append(workers, relay.Run)
			log.Info("audit outbox relay enabled", "topic", cfg.Kafka.Topic)
		}
	} else {
		log.Warn("DATABASE_URL not set, events are kept in memory")
		events = eventstore.NewInMemoryStore(eventstore.WithMemoryTxTimeout(cfg.TxTimeout))
		operations = auditmemory.NewInMemoryStore()
	}

	var drafts service.DraftStore
	rdb, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		readiness["redis"] = rdb.Health
		drafts = draftstore.NewRedis(rdb.Client, cfg.DraftTTL)
	} else {
		drafts = draftstore.NewInMemoryStore(cfg.DraftTTL)
	}

	notifier := countryconfig.New(cfg.CountryConfigURL,
		countryconfig.WithTimeout(cfg.CountryConfigTimeout),
		countryconfig.WithLogger(log),
		countryconfig.WithMetrics(eventMetrics),
	)
	svc := service.New(events, drafts, configs, notifier,
		service.WithLogger(log),
		service.WithAuditPublisher(compliance.New(operations,
			compliance.WithLogger(log),
			compliance.WithMetrics(compliance.NewMetrics()),
		)),
		service.WithOperationsStore(operations),
		service.WithMetrics(eventMetrics),
	)

	router := httpapi.NewRouter(httpapi.Dependencies{
		Logger:         log,
		Metrics:        metrics.New(),
		Validator:      jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer)),
		RequestTimeout: cfg.RequestTimeout,
		TrustProxy:     cfg.TrustProxy,
		Readiness:      readiness,
		API:            []httpapi.Routes{eventshandler.New(svc, log)},
	})
	srv := httpserver.New(cfg.Addr, router, cfg.RequestTimeout)
	g, ctx := errgroup.WithContext(ctx)
	for _, work := range workers {
		g.Go(func() error { return work(ctx) })
	}
	g.Go(func() error {
		log.Info("starting crvs events service", "addr", cfg.Addr)
		return httpserver.Run(ctx, srv, cfg.ShutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// configSource prefers a local file over the country configuration
// endpoint. The returned watch, set for files only, reloads on edits until
// its context ends.
func configSource(cfg config.Server, log *slog.Logger) (eventconfig.Source, func(context.Context) error, error) {
	if cfg.EventConfigFile != "" {
		src, err := eventconfig.NewFileSource(cfg.EventConfigFile, eventconfig.WithFileLogger(log))
		if err != nil {
			return nil, nil, err
		}
		log.Info("event configurations loaded from file", "path", cfg.EventConfigFile)
		return src, src.Watch, nil
	}
	src, err := eventconfig.NewRemoteSource(cfg.CountryConfigURL,
		eventconfig.WithCacheTTL(cfg.EventConfigCacheTTL),
		eventconfig.WithFetchTimeout(cfg.CountryConfigTimeout),
	)
	return src, nil, err
}
