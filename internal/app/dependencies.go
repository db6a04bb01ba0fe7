package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limitermemory "github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/cache"
	"github.com/noah-isme/backend-billing/internal/config"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/health"
	"github.com/noah-isme/backend-billing/internal/ledger"
	"github.com/noah-isme/backend-billing/internal/lock"
	"github.com/noah-isme/backend-billing/internal/pricing"
	"github.com/noah-isme/backend-billing/internal/ratelimit"
	"github.com/noah-isme/backend-billing/internal/store/pg"
	"github.com/noah-isme/backend-billing/internal/tasks"
)

// Options tune how Build wires optional instrumentation.
type Options struct {
	// RedisMetrics enables redisotel metrics in addition to tracing.
	RedisMetrics bool
	// RefreshDelay coalesces GST refreshes enqueued by bill events.
	RefreshDelay time.Duration
}

// Dependencies holds the services shared by the API server and the worker.
// Redis-backed parts are nil when REDIS_URL is unset.
type Dependencies struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Pool        *pgxpool.Pool
	Store       billing.Store
	Redis       *redis.Client
	Cache       *cache.Cache
	Bus         *events.Bus
	TaskClient  *asynq.Client
	RateLimiter ratelimit.Backend
	Locker      lock.Locker
	Billing     *billing.Service
	Ledger      *ledger.Service

	closers []func() error
}

// Build opens connections and assembles the billing service.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	d := &Dependencies{Config: cfg, Logger: logger}

	if err := d.openStore(ctx); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.openRedis(ctx, opts.RedisMetrics); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.buildRateLimiter(); err != nil {
		d.Close()
		return nil, err
	}

	d.Cache = cache.New(d.Redis, cfg.ReportCacheTTL, "billing")
	d.Locker = lock.Locker{R: d.Redis, Prefix: "billing", RetryBackoff: cfg.LockRetryBackoff, Wait: cfg.LockTTL}
	d.Bus = &events.Bus{}
	if es, ok := d.Store.(events.EventStore); ok {
		d.Bus.Store = es
	}
	if d.Redis != nil {
		opt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("app: parse redis uri for tasks: %w", err)
		}
		d.TaskClient = asynq.NewClient(opt)
		d.closers = append(d.closers, d.TaskClient.Close)
		d.Bus.Notifiers = append(d.Bus.Notifiers, tasks.Enqueuer{
			Client: d.TaskClient,
			Queue:  tasks.DefaultQueue,
			Delay:  opts.RefreshDelay,
			Logger: logger.With().Str("component", "gst_refresh_enqueuer").Logger(),
		})
	}

	d.Billing = &billing.Service{
		Store:    d.Store,
		Engine:   pricing.NewEngine(cfg.PricingTaxRateBPS),
		Validate: billing.NewValidator(),
		Events:   d.Bus,
		Cache:    d.Cache,
		Logger:   logger.With().Str("component", "billing").Logger(),
	}
	d.Ledger = &ledger.Service{
		Source: d.Store,
		Cache:  d.Cache,
		Logger: logger.With().Str("component", "ledger").Logger(),
	}
	return d, nil
}

// Checks lists readiness checks for the configured dependencies.
func (d *Dependencies) Checks() []health.Dependency {
	checks := []health.Dependency{{Name: "store", Timeout: 500 * time.Millisecond, Check: d.Store.Ping}}
	if d.Redis != nil {
		checks = append(checks, health.Dependency{
			Name:    "redis",
			Timeout: 300 * time.Millisecond,
			Check:   func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() },
		})
	}
	return checks
}

// Close releases every opened connection in reverse order.
func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.Logger.Error().Err(err).Msg("close dependency")
		}
	}
	d.closers = nil
}

func (d *Dependencies) openStore(ctx context.Context) error {
	cfg := d.Config
	if !cfg.UsesPostgres() {
		d.Logger.Info().Msg("store: in-memory")
		d.Store = billing.NewMemoryStore()
		return nil
	}
	if cfg.DBAutoMigrate {
		if err := pg.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("app: migrate: %w", err)
		}
		d.Logger.Info().Msg("store: migrations applied")
	}
	openCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pg.Open(openCtx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return err
	}
	d.Pool = pool
	d.closers = append(d.closers, func() error { pool.Close(); return nil })
	d.Store = pg.NewStore(pool)
	d.Logger.Info().Msg("store: postgres")
	return nil
}

func (d *Dependencies) openRedis(ctx context.Context, metrics bool) error {
	if d.Config.RedisURL == "" {
		d.Logger.Warn().Msg("redis: REDIS_URL unset, caching, idempotency and background refresh disabled")
		return nil
	}
	opts, err := redis.ParseURL(d.Config.RedisURL)
	if err != nil {
		return fmt.Errorf("app: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	d.closers = append(d.closers, client.Close)
	if err := redisotel.InstrumentTracing(client); err != nil {
		d.Logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			d.Logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("app: ping redis: %w", err)
	}
	d.Redis = client
	return nil
}

func (d *Dependencies) buildRateLimiter() error {
	switch d.Config.RateLimitBackend {
	case "off":
		return nil
	case "sliding":
		if d.Redis != nil {
			d.RateLimiter = ratelimit.SlidingWindow{Client: d.Redis, Prefix: "billing:rl:"}
			return nil
		}
		d.Logger.Warn().Msg("ratelimit: sliding window needs redis, using in-memory fixed window")
		d.RateLimiter = ratelimit.FixedWindow{Store: limitermemory.NewStore()}
		return nil
	case "ulule":
		if d.Redis == nil {
			d.RateLimiter = ratelimit.FixedWindow{Store: limitermemory.NewStore()}
			return nil
		}
		store, err := limiterredis.NewStoreWithOptions(d.Redis, limiter.StoreOptions{Prefix: "billing:rl"})
		if err != nil {
			return fmt.Errorf("app: limiter store: %w", err)
		}
		d.RateLimiter = ratelimit.FixedWindow{Store: store}
		return nil
	default:
		return errors.New("app: unknown rate limit backend " + d.Config.RateLimitBackend)
	}
}
