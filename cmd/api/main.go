package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/captionly/captionly/internal/billing"
	"github.com/captionly/captionly/internal/generation"
	"github.com/captionly/captionly/internal/httpapi"
	"github.com/captionly/captionly/internal/usage"
	"github.com/captionly/captionly/pkg/config"
	"github.com/captionly/captionly/pkg/httpserver"
	"github.com/captionly/captionly/pkg/logger"
	"github.com/captionly/captionly/pkg/pg"
	"github.com/captionly/captionly/pkg/ratelimit"
	"github.com/captionly/captionly/pkg/redis"
)

type appConfig struct {
	Logger    logger.Config
	Server    httpserver.Config
	PG        pg.Config
	Redis     redis.Config
	Paddle    billing.PaddleConfig
	Checkout  billing.CheckoutConfig
	Generator generation.GeneratorConfig

	GenerateRateLimit  int           `env:"GENERATE_RATE_LIMIT" envDefault:"30"`
	GenerateRateWindow time.Duration `env:"GENERATE_RATE_WINDOW" envDefault:"1m"`
}

func main() {
	ctx := context.Background()

	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.FromConfig(cfg.Logger, "captionly-api")

	if err := run(ctx, cfg, log); err != nil {
		log.Error("service exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.PG, log); err != nil {
		return err
	}

	redisClient, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	provider, err := billing.NewPaddleProvider(cfg.Paddle)
	if err != nil {
		return err
	}

	subs := billing.NewPGStore(pool)
	captions := generation.NewPGCaptionStore(pool)

	ledger := usage.NewLedger(subs, captions.CountDistinctVariationBatches)
	generator := generation.NewHTTPGenerator(cfg.Generator)
	coordinator := generation.NewCoordinator(ledger, generator, captions, log)

	checkout := billing.NewCheckoutService(subs, provider, cfg.Checkout, log)
	reconciler := billing.NewReconciler(subs, provider, log)

	limiter, err := ratelimit.NewFixedWindow(
		ratelimit.NewRedisStore(redisClient, "captionly:generate"),
		cfg.GenerateRateLimit,
		cfg.GenerateRateWindow,
	)
	if err != nil {
		return err
	}

	handler := httpapi.NewHandler(coordinator, ledger, subs, checkout, reconciler, log)
	router := httpapi.Router(handler, log, httpapi.RouterOptions{
		GenerateLimiter: limiter,
		HealthChecks: map[string]httpapi.HealthCheck{
			"postgres": pg.Healthcheck(pool),
			"redis":    redis.Healthcheck(redisClient),
		},
	})

	return httpserver.New(cfg.Server, log).Run(ctx, router)
}
