package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/leadflow/internal/campaigns"
	"github.com/memohai/leadflow/internal/chat"
	"github.com/memohai/leadflow/internal/config"
	"github.com/memohai/leadflow/internal/db"
	dbsqlc "github.com/memohai/leadflow/internal/db/sqlc"
	"github.com/memohai/leadflow/internal/healthcheck"
	"github.com/memohai/leadflow/internal/instagram"
	"github.com/memohai/leadflow/internal/interactions"
	"github.com/memohai/leadflow/internal/leads"
	"github.com/memohai/leadflow/internal/logger"
	"github.com/memohai/leadflow/internal/pipeline"
	"github.com/memohai/leadflow/internal/queue"
	"github.com/memohai/leadflow/internal/server"
	"github.com/memohai/leadflow/internal/tenants"
)

type configPath string

func runApp(path string, withHTTP bool) error {
	app := fx.New(
		appOptions(configPath(path), withHTTP),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func appOptions(path configPath, withHTTP bool) fx.Option {
	opts := []fx.Option{
		fx.Supply(path),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideDBQueries,
			provideRedisClient,
			provideTenantDirectory,
			provideLeadService,
			provideInteractionService,
			provideCampaignService,
			provideQueueBackend,
			provideLocker,
			provideIdempotency,
			provideInstagramClient,
			provideProviderFactory,
			provideExtractor,
			provideGenerator,
			provideProcessor,
			provideDispatcher,
			providePool,
			provideSweeper,
		),
		fx.Invoke(
			startPool,
			startSweeper,
		),
	}
	if withHTTP {
		opts = append(opts,
			fx.Provide(
				provideHealthChecker,
				provideServerHandler(provideWebhookHandler),
				provideServerHandler(provideAdminHandler),
				provideServerHandler(server.NewPingHandler),
				provideServerHandler(provideHealthHandler),
				provideServerHandler(server.NewMetricsHandler),
				provideServer,
			),
			fx.Invoke(startServer),
		)
	}
	return fx.Options(opts...)
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig(path configPath) (config.Config, error) {
	return loadConfig(string(path))
}

func provideLogger(cfg config.Config) *slog.Logger {
	l := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(l)
	return l
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideDBQueries(conn *pgxpool.Pool) *dbsqlc.Queries { return dbsqlc.New(conn) }

// provideRedisClient returns nil when no redis url is configured; every
// consumer then falls back to its in-process variant.
func provideRedisClient(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (*redis.Client, error) {
	if cfg.Redis.URL == "" {
		log.Warn("redis.url is empty, using in-process locks and dedup")
		return nil, nil
	}
	client, err := queue.NewRedisClient(context.Background(), cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return client.Close() }})
	return client, nil
}

func provideTenantDirectory(log *slog.Logger, queries *dbsqlc.Queries, cfg config.Config) *tenants.Directory {
	return tenants.NewDirectory(log, queries, cfg.Tenants.CacheSize, cfg.Tenants.CacheTTL.Duration)
}

func provideLeadService(log *slog.Logger, queries *dbsqlc.Queries) *leads.Service {
	return leads.NewService(log, queries)
}

func provideInteractionService(log *slog.Logger, queries *dbsqlc.Queries) *interactions.Service {
	return interactions.NewService(log, queries)
}

func provideCampaignService(log *slog.Logger, queries *dbsqlc.Queries) *campaigns.Service {
	return campaigns.NewService(log, queries)
}

// redisBrokerOptions keeps a consumer's heartbeat alive for longer than a task
// may hold its lease, because heartbeats are only refreshed between tasks.
func redisBrokerOptions(cfg config.Config) queue.RedisBrokerOptions {
	return queue.RedisBrokerOptions{
		Partitions:   cfg.Queue.Partitions,
		PollTimeout:  cfg.Queue.PollTimeout.Duration,
		HeartbeatTTL: 2 * cfg.Worker.LeaseTTL.Duration,
	}
}

func provideQueueBackend(log *slog.Logger, cfg config.Config, rc *redis.Client) (queue.Backend, error) {
	switch cfg.Queue.Backend {
	case "redis":
		if rc == nil {
			return nil, errors.New("redis queue backend requires redis.url")
		}
		return queue.NewRedisBroker(log, rc, redisBrokerOptions(cfg)), nil
	case "sqs":
		opts := queue.SQSOptions{
			Region:        cfg.Queue.SQS.Region,
			Endpoint:      cfg.Queue.SQS.Endpoint,
			QueueURL:      cfg.Queue.SQS.QueueURL,
			DeadLetterURL: cfg.Queue.SQS.DeadLetterURL,
			Slots:         cfg.Worker.Concurrency,
			PollTimeout:   cfg.Queue.PollTimeout.Duration,
		}
		client, err := queue.NewSQSClient(context.Background(), log, opts)
		if err != nil {
			return nil, err
		}
		return queue.NewSQSBroker(log, client, opts), nil
	case "memory":
		log.Warn("memory queue backend loses queued tasks on restart")
		return queue.NewMemoryBroker(cfg.Queue.Partitions, cfg.Queue.PollTimeout.Duration), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
}

func provideLocker(rc *redis.Client) queue.Locker {
	if rc == nil {
		return queue.NewLocalLocker()
	}
	return queue.NewRedisLocker(rc)
}

func provideIdempotency(cfg config.Config, rc *redis.Client) queue.Idempotency {
	if rc == nil {
		return queue.NewLocalIdempotency(100_000, cfg.Worker.IdempotencyTTL.Duration)
	}
	return queue.NewRedisIdempotency(rc)
}

func provideInstagramClient(log *slog.Logger, cfg config.Config) *instagram.Client {
	return instagram.NewClient(log, cfg.Instagram.APIBaseURL, cfg.Instagram.Timeout.Duration)
}

func provideProviderFactory(cfg config.Config) chat.ProviderFactory {
	return chat.NewOpenAIFactory(cfg.LLM.BaseURL, cfg.LLM.Timeout.Duration)
}

func provideExtractor(log *slog.Logger, cfg config.Config) *chat.Extractor {
	model := cfg.LLM.ExtractionModel
	if model == "" {
		model = cfg.LLM.Model
	}
	return chat.NewExtractor(log, model)
}

func provideGenerator(log *slog.Logger, cfg config.Config) *chat.Generator {
	return chat.NewGenerator(log, chat.GeneratorConfig{
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Initial: chat.Sampling{
			Temperature:      cfg.LLM.Temperature,
			PresencePenalty:  cfg.LLM.PresencePenalty,
			FrequencyPenalty: cfg.LLM.FrequencyPenalty,
		},
		Regen: chat.Sampling{
			Temperature:      cfg.LLM.RegenTemperature,
			PresencePenalty:  cfg.LLM.RegenPresencePenalty,
			FrequencyPenalty: cfg.LLM.RegenFrequencyPenalty,
		},
	})
}

type processorParams struct {
	fx.In
	Logger       *slog.Logger
	Tenants      *tenants.Directory
	Leads        *leads.Service
	Interactions *interactions.Service
	Campaigns    *campaigns.Service
	Instagram    *instagram.Client
	Providers    chat.ProviderFactory
	Extractor    *chat.Extractor
	Generator    *chat.Generator
	Backend      queue.Backend
}

func provideProcessor(p processorParams) *pipeline.Processor {
	return pipeline.NewProcessor(p.Logger, pipeline.ProcessorDeps{
		Tenants:   p.Tenants,
		Leads:     p.Leads,
		Turns:     p.Interactions,
		Campaigns: p.Campaigns,
		Profiles:  p.Instagram,
		Providers: p.Providers,
		Extractor: p.Extractor,
		Generator: p.Generator,
		Publisher: p.Backend,
	})
}

func provideDispatcher(log *slog.Logger, cfg config.Config, directory *tenants.Directory, client *instagram.Client, sent queue.Idempotency) *pipeline.Dispatcher {
	return pipeline.NewDispatcher(log, directory, client, sent, pipeline.DispatcherConfig{
		SendRate:  cfg.Instagram.SendRate,
		SendBurst: cfg.Instagram.SendBurst,
		SentTTL:   cfg.Worker.IdempotencyTTL.Duration,
	})
}

func providePool(log *slog.Logger, cfg config.Config, backend queue.Backend, locker queue.Locker, processor *pipeline.Processor, dispatcher *pipeline.Dispatcher) *pipeline.Pool {
	pool := pipeline.NewPool(log, backend, locker, pipeline.PoolConfig{
		LeaseTTL: cfg.Worker.LeaseTTL.Duration,
		Retry: queue.RetryPolicy{
			MaxAttempts: cfg.Worker.MaxAttempts,
			Base:        cfg.Worker.BackoffBase.Duration,
			Max:         cfg.Worker.BackoffMax.Duration,
			Jitter:      0.2,
		},
	})
	pool.Register(queue.KindProcessDM, processor)
	pool.Register(queue.KindSendReply, dispatcher)
	return pool
}

func provideSweeper(log *slog.Logger, cfg config.Config, backend queue.Backend) (*pipeline.Sweeper, error) {
	return pipeline.NewSweeper(log, backend, cfg.Worker.SweepSchedule)
}

func provideHealthChecker(conn *pgxpool.Pool, rc *redis.Client) healthcheck.Checker {
	checker := healthcheck.NewPingChecker().Add("postgres", conn.Ping)
	if rc != nil {
		checker.Add("redis", func(ctx context.Context) error { return rc.Ping(ctx).Err() })
	}
	return checker
}

func provideWebhookHandler(log *slog.Logger, cfg config.Config, directory *tenants.Directory, backend queue.Backend, dedup queue.Idempotency) *instagram.WebhookHandler {
	return instagram.NewWebhookHandler(log, instagram.WebhookConfig{
		VerifyToken: cfg.Instagram.VerifyToken,
		DedupTTL:    cfg.Worker.IdempotencyTTL.Duration,
	}, directory, backend, dedup)
}

func provideAdminHandler(log *slog.Logger, cfg config.Config, backend queue.Backend, turns *interactions.Service, directory *tenants.Directory) *pipeline.AdminHandler {
	return pipeline.NewAdminHandler(log, cfg.Auth.JWTSecret, backend, turns, directory)
}

func provideHealthHandler(log *slog.Logger, checker healthcheck.Checker) *server.HealthHandler {
	return server.NewHealthHandler(log, checker)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers...)
}

func startPool(lc fx.Lifecycle, pool *pipeline.Pool) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { pool.Start(ctx); return nil },
		OnStop:  func(stopCtx context.Context) error { cancel(); return pool.Shutdown(stopCtx) },
	})
}

func startSweeper(lc fx.Lifecycle, sweeper *pipeline.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { sweeper.Start(); return nil },
		OnStop:  func(ctx context.Context) error { return sweeper.Stop(ctx) },
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting leadflow",
				slog.String("version", version),
				slog.String("addr", cfg.Server.Addr),
				slog.String("queue_backend", cfg.Queue.Backend),
			)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
