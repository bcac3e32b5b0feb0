package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/cashoffer-funnel/internal/config"
	"github.com/wolfman30/cashoffer-funnel/internal/conversion"
	"github.com/wolfman30/cashoffer-funnel/internal/ratelimit"
	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// NeedsRedis reports whether any configured backend lives in Redis.
func NeedsRedis(cfg *appconfig.Config) bool {
	return cfg != nil && (cfg.RateLimitBackend == "redis" || cfg.ConversionBackend == "redis")
}

// Limiters holds the per-endpoint rate limiters.
type Limiters struct {
	Leads       *ratelimit.Limiter
	Conversions *ratelimit.Limiter
	closer      func() error
}

// Close stops the in-memory sweeper, if any.
func (l *Limiters) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer()
}

// BuildRateLimiters shares one counter between the lead and conversion
// limiters. Redis is used when configured and reachable; otherwise windows
// live in process memory.
func BuildRateLimiters(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) *Limiters {
	if logger == nil {
		logger = logging.Default()
	}
	var (
		counter ratelimit.Counter
		closer  func() error
	)
	if cfg.RateLimitBackend == "redis" && redisClient != nil {
		counter = ratelimit.NewRedisCounter(redisClient, "cashoffer:ratelimit")
		logger.Info("rate limiting backed by redis", "addr", cfg.RedisAddr)
	} else {
		if cfg.RateLimitBackend == "redis" {
			logger.Warn("redis rate limiting requested but redis unavailable; using memory")
		}
		mem := ratelimit.NewMemoryCounter(time.Minute)
		counter, closer = mem, mem.Close
	}
	opt := ratelimit.WithLogger(logger)
	return &Limiters{
		Leads:       ratelimit.New("leads", cfg.RateLimitCapacity, cfg.RateLimitWindow, counter, opt),
		Conversions: ratelimit.New("conversions", cfg.ConversionRateLimitCapacity, cfg.RateLimitWindow, counter, opt),
		closer:      closer,
	}
}

// BuildConversionStore picks where per-session conversion state lives.
func BuildConversionStore(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) conversion.Store {
	if cfg.ConversionBackend == "redis" && redisClient != nil {
		return conversion.NewRedisStore(redisClient, cfg.ConversionSessionTTL)
	}
	if cfg.ConversionBackend == "redis" && logger != nil {
		logger.Warn("redis conversion store requested but redis unavailable; using memory")
	}
	return conversion.NewMemoryStore(cfg.ConversionSessionTTL)
}

// ConnectPostgresPool returns nil when url is empty or the database is
// unreachable.
func ConnectPostgresPool(ctx context.Context, url string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(url) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("postgres not reachable", "error", err)
		pool.Close()
		return nil
	}
	return pool
}
