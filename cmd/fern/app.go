package main

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/database"
	"github.com/Ramsey-B/fern/internal/repositories/linkagerun"
	"github.com/Ramsey-B/fern/internal/repositories/personrecord"
	"github.com/Ramsey-B/fern/internal/startup"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/runstatus"
)

// app owns the external connections of one process
type app struct {
	cfg     *config.Config
	logger  ectologger.Logger
	startup *startup.Startup

	db       *database.Instance
	rdb      *redis.Client
	producer *kafka.Producer
	graph    *graph.Client
}

type appOptions struct {
	migrate bool
}

func newApp(cfg *config.Config, logger ectologger.Logger, opts appOptions) *app {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		startup: startup.New(logger, cfg.StartupMaxAttempts),
	}

	if cfg.DatabaseEnabled {
		a.startup.Add(startup.Func{
			Name: "database",
			StartFunc: func(ctx context.Context) error {
				db, err := database.Connect(ctx, cfg.Database(), logger)
				if err != nil {
					return err
				}
				a.db = db
				return nil
			},
			StopFunc: func(context.Context) error {
				return a.db.Close()
			},
		})

		if opts.migrate {
			a.startup.Add(startup.Func{
				Name:  "migrations",
				Needs: []string{"database"},
				StartFunc: func(context.Context) error {
					return database.NewMigrationService(logger, cfg.Migration()).MigratePostgres(a.db, cfg.DatabaseName)
				},
			})
		}
	}

	if cfg.RedisEnabled {
		a.startup.Add(startup.Func{
			Name: "redis",
			StartFunc: func(ctx context.Context) error {
				rdb, err := runstatus.Connect(ctx, cfg.Redis())
				if err != nil {
					return err
				}
				a.rdb = rdb
				return nil
			},
			StopFunc: func(context.Context) error {
				return a.rdb.Close()
			},
		})
	}

	if cfg.KafkaEnabled {
		a.startup.Add(startup.Func{
			Name: "kafka",
			StartFunc: func(ctx context.Context) error {
				producerCfg := cfg.Kafka()
				if len(producerCfg.Brokers) == 0 {
					return fmt.Errorf("kafka is enabled but no brokers are configured")
				}
				conn, err := kafkago.DialContext(ctx, "tcp", producerCfg.Brokers[0])
				if err != nil {
					return fmt.Errorf("failed to reach kafka broker %s: %w", producerCfg.Brokers[0], err)
				}
				_ = conn.Close()
				a.producer = kafka.NewProducer(producerCfg, logger)
				return nil
			},
			StopFunc: func(context.Context) error {
				return a.producer.Close()
			},
		})
	}

	if cfg.GraphEnabled {
		a.startup.Add(startup.Func{
			Name: "graph",
			StartFunc: func(ctx context.Context) error {
				client, err := graph.NewClient(cfg.Graph(), logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return fmt.Errorf("failed to reach graph database: %w", err)
				}
				a.graph = client
				return nil
			},
			StopFunc: func(ctx context.Context) error {
				return a.graph.Close(ctx)
			},
		})
	}

	return a
}

func (a *app) start(ctx context.Context) error {
	return a.startup.Start(ctx)
}

func (a *app) stop(ctx context.Context) error {
	return a.startup.Stop(ctx)
}

// service wires the started connections into a resolver
func (a *app) service() (*resolver.Service, error) {
	opts, err := a.cfg.ResolverOptions()
	if err != nil {
		return nil, err
	}

	var deps resolver.Dependencies
	if a.db != nil {
		deps.Runs = linkagerun.NewRepository(a.db, a.logger)
		deps.Rows = personrecord.NewRepository(a.db, a.logger)
	}
	if a.rdb != nil {
		deps.Progress = runstatus.NewStore(a.rdb, a.cfg.Redis(), a.logger)
	}
	if a.producer != nil {
		deps.Events = a.producer
	}
	if a.graph != nil {
		deps.Graph = graph.NewEntityWriter(a.graph, a.logger)
	}
	return resolver.NewService(opts, deps, a.logger), nil
}

// container registers the resolver and logger for the HTTP handlers and returns the container id
func (a *app) container(service *resolver.Service) (string, error) {
	id := a.cfg.AppName
	if id == "" {
		id = "fern"
	}

	c, err := middleware.NewContainer(id)
	if err != nil {
		return "", fmt.Errorf("failed to create dependency container: %w", err)
	}
	if err := ectoinject.RegisterInstance[*resolver.Service](c, service); err != nil {
		return "", fmt.Errorf("failed to register resolver: %w", err)
	}
	if err := ectoinject.RegisterInstance[ectologger.Logger](c, a.logger); err != nil {
		return "", fmt.Errorf("failed to register logger: %w", err)
	}

	a.logger.WithFields(map[string]any{"container": id}).Debug("Registered HTTP dependencies")
	return id, nil
}

func (a *app) rowStore() (*personrecord.Repository, error) {
	if a.db == nil {
		return nil, fmt.Errorf("this command needs the record store: set DB_ENABLED=true")
	}
	return personrecord.NewRepository(a.db, a.logger), nil
}

func (a *app) healthChecker() *health.Checker {
	checker := health.NewChecker(a.cfg.Version)
	if a.db != nil {
		checker.AddCheck("database", a.db.PingContext)
	}
	if a.rdb != nil {
		checker.AddCheck("redis", func(ctx context.Context) error { return a.rdb.Ping(ctx).Err() })
	}
	if a.graph != nil {
		checker.AddCheck("graph", a.graph.VerifyConnectivity)
	}
	return checker
}
