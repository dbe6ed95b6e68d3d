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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	jwttoken "custodian/internal/jwt_token"
	"custodian/internal/ledger"
	"custodian/internal/ledger/cache"
	ledgermetrics "custodian/internal/ledger/metrics"
	"custodian/internal/ledger/policy"
	"custodian/internal/ledger/service"
	"custodian/internal/platform/config"
	"custodian/internal/platform/httpserver"
	kafkaadmin "custodian/internal/platform/kafka/admin"
	kafkaconsumer "custodian/internal/platform/kafka/consumer"
	"custodian/internal/platform/kafka/producer"
	"custodian/internal/platform/logger"
	"custodian/internal/platform/metrics"
	"custodian/internal/platform/postgres"
	"custodian/internal/platform/redis"
	httptransport "custodian/internal/transport/http"
	"custodian/pkg/platform/audit"
	auditconsumer "custodian/pkg/platform/audit/consumer"
	"custodian/pkg/platform/audit/publishers/compliance"
	"custodian/pkg/platform/audit/publishers/ops"
	"custodian/pkg/platform/audit/publishers/security"
	auditmemory "custodian/pkg/platform/audit/store/memory"
	auditpostgres "custodian/pkg/platform/audit/store/postgres"
	"custodian/pkg/platform/audit/worker"
	"custodian/pkg/platform/circuit"
)

// main wires the ledger, its audit pipeline and the HTTP surface, then runs
// every background loop until SIGINT or SIGTERM.
func main() {
	cfg, err := config.Load(os.Getenv("CUSTODIAN_CONFIG_PATH"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("custodian stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checks := map[string]httptransport.HealthCheck{}

	stores, db, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		checks["database"] = db.PingContext
	}

	// Security and operations events are written outside the ledger
	// transaction. In memory mode they get their own store so a rollback
	// snapshot cannot discard them.
	var sideStore audit.Store = stores.Audit
	if db == nil {
		sideStore = auditmemory.NewInMemoryStore()
	}
	securityPublisher := security.New(sideStore,
		security.WithLogger(log),
		security.WithCapacity(cfg.Ledger.SecurityBufferCapacity),
		security.WithFlushInterval(cfg.Ledger.SecurityFlushInterval),
	)
	opsTracker := ops.New(sideStore,
		ops.WithLogger(log),
		ops.WithMetrics(ops.NewMetrics(reg)),
		ops.WithSampleRate(cfg.Ledger.OpsSampleRate),
	)
	compliancePublisher := compliance.New(stores.Audit,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics(reg)),
	)
	defer compliancePublisher.Close()

	opts := []service.Option{
		service.WithLogger(log),
		service.WithAuditPublisher(compliancePublisher),
		service.WithSecurityPublisher(securityPublisher),
		service.WithOpsTracker(opsTracker),
		service.WithMetrics(ledgermetrics.New(reg)),
		service.WithPolicy(policy.Policy{AllowPendingAuditAnnotations: cfg.Ledger.AllowPendingAuditAnnotations}),
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		checks["redis"] = redisClient.Health
		versions := cache.NewGuarded(
			cache.New(redisClient, cfg.Redis.VersionCacheTTL),
			circuit.New("version-cache"),
			log,
		)
		opts = append(opts, service.WithVersionCache(versions))
		log.Info("version cache enabled", "ttl", cfg.Redis.VersionCacheTTL)
	}

	ledgerService := ledger.NewService(stores, opts...)
	jwtService := jwttoken.NewJWTService(cfg.Auth.SigningKey, cfg.Auth.Issuer)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:    log,
		Validator: jwttoken.NewJWTServiceAdapter(jwtService),
		Metrics:   metrics.New(reg),
		Gatherer:  reg,
		Checks:    checks,
		Modules:   []httptransport.Registrar{ledger.NewHandler(ledgerService, log)},
	})
	srv := httpserver.New(cfg.Server, router, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		securityPublisher.Run(gctx)
		return nil
	})
	if db != nil && cfg.KafkaEnabled() {
		if err := startAuditRelay(gctx, g, cfg, db, log, checks); err != nil {
			return err
		}
	}
	g.Go(func() error {
		log.Info("starting custodian", "addr", cfg.Server.Addr, "store", cfg.Store)
		return srv.Run(gctx)
	})
	return g.Wait()
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (ledger.Stores, *sql.DB, error) {
	if cfg.Store == config.StoreMemory {
		log.Warn("using in-memory ledger stores; state is lost on restart")
		return ledger.NewMemoryStores(), nil, nil
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return ledger.Stores{}, nil, err
	}
	if cfg.Database.MigrateOnBoot {
		if err := postgres.Migrate(db); err != nil {
			_ = db.Close()
			return ledger.Stores{}, nil, err
		}
		log.Info("database migrations applied")
	}
	return ledger.NewPostgresStores(db, cfg.Database.TxTimeout), db, nil
}

// startAuditRelay ensures the audit topics exist, then runs the outbox worker
// and, unless disabled, the compliance consumer.
func startAuditRelay(ctx context.Context, g *errgroup.Group, cfg config.Config, db *sql.DB, log *slog.Logger, checks map[string]httptransport.HealthCheck) error {
	prod, err := producer.New(producer.Config{Brokers: cfg.Kafka.Brokers, ClientID: cfg.Kafka.ClientID}, log)
	if err != nil {
		return err
	}
	checks["kafka"] = prod.Ping

	topics := worker.Topics{
		Compliance: cfg.Kafka.ComplianceTopic,
		Security:   cfg.Kafka.SecurityTopic,
		Operations: cfg.Kafka.OperationsTopic,
	}
	specs := make([]kafkaadmin.TopicSpec, 0, 3)
	for _, name := range []string{topics.Compliance, topics.Security, topics.Operations} {
		specs = append(specs, kafkaadmin.TopicSpec{
			Name:              name,
			Partitions:        cfg.Kafka.Partitions,
			ReplicationFactor: cfg.Kafka.Replication,
		})
	}
	if err := kafkaadmin.EnsureTopics(ctx, prod.Client(), specs...); err != nil {
		prod.Close()
		return err
	}

	outbox := auditpostgres.New(db)
	relay := worker.NewWorker(outbox, prod, topics, log,
		worker.WithInterval(cfg.Kafka.OutboxInterval),
		worker.WithBatchSize(cfg.Kafka.OutboxBatchSize),
	)
	g.Go(func() error {
		defer prod.Close()
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if cfg.Kafka.ConsumerDisabled {
		return nil
	}
	logHandler := auditconsumer.NewLogHandler(log)
	router := auditconsumer.NewRouter(log, logHandler)
	router.Register(topics.Compliance, auditconsumer.NewComplianceHandler(outbox, log))
	cons, err := kafkaconsumer.New(kafkaconsumer.Config{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.ConsumerGroup,
		Topics:  []string{topics.Compliance, topics.Security, topics.Operations},
	}, router, log)
	if err != nil {
		return err
	}
	g.Go(func() error {
		return cons.Run(ctx)
	})
	return nil
}
