// Command screener runs one Screening Job invocation: it resolves the
// symbol universe, optimizes grid parameters against recent candles for
// every symbol, and persists the ranked results. Runs once per invocation;
// schedule repeat runs externally (cron, an orchestrator) rather than
// looping in-process, since each run is independently resumable under
// EngineType=dbos.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"market_maker/internal/bootstrap"
	"market_maker/internal/candles"
	"market_maker/internal/durablestore"
	"market_maker/internal/exchangeclient"
	"market_maker/internal/pricestore"
	"market_maker/internal/screening"
	"market_maker/internal/telemetry"
	httpclient "market_maker/pkg/http"
	pkgtelemetry "market_maker/pkg/telemetry"

	"github.com/redis/go-redis/v9"
)

var (
	configFile  = flag.String("config", "configs/config.yaml", "Path to configuration file")
	userID      = flag.String("user-id", "", "user id to attribute the screening results to")
	quoteAsset  = flag.String("quote-asset", "", "override config exchange.quote_asset")
	taskID      = flag.String("task-id", "", "override the generated task id (for resuming a known task)")
	interval    = flag.String("interval", "", "candle interval, e.g. 1h (default 1h)")
	limit       = flag.Int("limit", 0, "number of candles to fetch per symbol (default 720)")
	totalAmount = flag.Float64("total-amount", 0, "quote-currency budget per symbol (default 1000)")
)

func main() {
	flag.Parse()

	app, err := bootstrap.NewApp(*configFile)
	if err != nil {
		panic(err)
	}
	logger := app.Logger
	cfg := app.Cfg

	if *userID == "" {
		logger.Fatal("--user-id is required")
	}
	quote := cfg.Exchange.QuoteAsset
	if *quoteAsset != "" {
		quote = *quoteAsset
	}

	tel, err := pkgtelemetry.Setup("screener")
	if err != nil {
		logger.Fatal("telemetry setup failed", "err", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()
	if err := telemetry.GetGlobalMetrics().InitMetrics(pkgtelemetry.GetMeter("screener")); err != nil {
		logger.Fatal("screener metrics init failed", "err", err)
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

	universe := exchangeclient.New(cfg.Exchange.BaseURL, 15*time.Second, "", "", false, logger)
	restClient := httpclient.NewClient(cfg.Exchange.BaseURL, 15*time.Second, nil)
	candleSource := candles.NewRESTFetcher(restClient, logger)

	job := screening.NewJob(universe, candleSource, prices, durable, logger, cfg.Timing, cfg.Strategy)

	id := *taskID
	if id == "" {
		id = screening.NewTaskID()
	}
	input := screening.Input{
		TaskID:      id,
		UserID:      *userID,
		QuoteAsset:  quote,
		Interval:    *interval,
		Limit:       *limit,
		TotalAmount: *totalAmount,
	}

	logger.Info("starting screening run", "task_id", id, "user_id", *userID, "quote_asset", quote, "engine_type", cfg.App.EngineType)

	switch cfg.App.EngineType {
	case "dbos":
		if err := runDBOS(cfg.App.DatabaseURL, job, input); err != nil {
			logger.Fatal("screening run failed", "err", err)
		}
	default:
		if err := job.RunSimple(context.Background(), input); err != nil {
			logger.Fatal("screening run failed", "err", err)
		}
	}

	fmt.Printf("screening task %s complete\n", id)
}

func runDBOS(databaseURL string, job *screening.Job, input screening.Input) error {
	dbosCtx, err := dbos.NewDBOSContext(dbos.Config{
		AppName:     "gridbot-screener",
		DatabaseURL: databaseURL,
	})
	if err != nil {
		return fmt.Errorf("dbos context: %w", err)
	}
	if err := dbosCtx.Launch(); err != nil {
		return fmt.Errorf("dbos launch: %w", err)
	}
	defer dbosCtx.Shutdown(30 * time.Second)

	return job.RunDBOS(dbosCtx, input)
}
