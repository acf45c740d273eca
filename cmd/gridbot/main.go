// Command gridbot is the live process: it runs the Price Ingest Worker, the
// Bot Scheduler (one Runtime per active bot), and a Prometheus metrics
// endpoint side by side under a shared shutdown context.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"market_maker/internal/bootstrap"
	"market_maker/internal/botruntime"
	"market_maker/internal/core"
	"market_maker/internal/durablestore"
	"market_maker/internal/exchangeclient"
	"market_maker/internal/infrastructure/metrics"
	"market_maker/internal/ingest"
	"market_maker/internal/pricestore"
	"market_maker/internal/scheduler"
	"market_maker/internal/telemetry"
	pkgtelemetry "market_maker/pkg/telemetry"
)

var configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")

// symbolResolver adapts the durable store's active-bot listing into the
// ingest.SymbolResolver the Price Ingest Worker needs for its tracked-set
// refresh, per the spec's "query the active-bot symbol set" policy.
type symbolResolver struct {
	durable core.DurableStore
}

func (r symbolResolver) TrackedSymbols(ctx context.Context) ([]string, error) {
	ids, err := r.durable.ActiveBotIDs(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(ids))
	var symbols []string
	for _, id := range ids {
		cfg, err := r.durable.BotConfig(ctx, id)
		if err != nil {
			continue
		}
		if _, ok := seen[cfg.Symbol]; ok {
			continue
		}
		seen[cfg.Symbol] = struct{}{}
		symbols = append(symbols, cfg.Symbol)
	}
	return symbols, nil
}

func main() {
	flag.Parse()

	app, err := bootstrap.NewApp(*configFile)
	if err != nil {
		panic(err)
	}
	logger := app.Logger
	cfg := app.Cfg

	tel, err := pkgtelemetry.Setup("gridbot")
	if err != nil {
		logger.Fatal("telemetry setup failed", "err", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()
	if err := telemetry.GetGlobalMetrics().InitMetrics(pkgtelemetry.GetMeter("gridbot")); err != nil {
		logger.Fatal("gridbot metrics init failed", "err", err)
	}

	redisOpts, err := redis.ParseURL(string(cfg.Stores.VolatileURL))
	if err != nil {
		logger.Fatal("invalid stores.volatile_url", "err", err)
	}
	prices := pricestore.NewRedis(redis.NewClient(redisOpts), logger)

	durable, err := durablestore.New(context.Background(), string(cfg.Stores.DurableURL), logger)
	if err != nil {
		logger.Fatal("durable store connect failed", "err", err)
	}
	defer durable.Close()

	executor := exchangeclient.New(cfg.Exchange.BaseURL, 15*time.Second, string(cfg.Exchange.APIKey), string(cfg.Exchange.APISecret), cfg.Exchange.LiveTrading, logger)

	factory := func(botID string) func(ctx context.Context) error {
		runtime := botruntime.New(botID, durable, prices, executor, logger, cfg.Timing)
		return runtime.Run
	}
	botScheduler := scheduler.New(cfg.Concurrency, durable, factory, logger)

	ingestWorker := ingest.New(cfg.Exchange.StreamURL, prices, symbolResolver{durable: durable}, logger, cfg.Timing)

	metricsServer := metrics.NewServer(cfg.Telemetry.MetricsPort, logger)

	schedulerRunner := runnerFunc(func(ctx context.Context) error {
		if err := botScheduler.StartAll(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		botScheduler.Stop()
		return nil
	})

	ingestRunner := runnerFunc(func(ctx context.Context) error {
		ingestWorker.Start(ctx)
		<-ctx.Done()
		ingestWorker.Stop()
		return nil
	})

	runners := []bootstrap.Runner{ingestRunner, schedulerRunner}
	if cfg.Telemetry.EnableMetrics {
		runners = append(runners, metricsServer)
	}

	if err := app.Run(runners...); err != nil {
		os.Exit(1)
	}
}

// runnerFunc adapts a plain function to bootstrap.Runner.
type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }
