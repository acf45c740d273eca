// Command backtest is an offline CLI: it fetches historical candles for one
// symbol and either replays a single fixed parameter set through the
// Backtest Engine or grid-searches parameters through the Parameter
// Optimizer, printing the resulting metrics to stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"market_maker/internal/backtest"
	"market_maker/internal/bootstrap"
	"market_maker/internal/candles"
	"market_maker/internal/optimize"
	httpclient "market_maker/pkg/http"
)

var (
	configFile  = flag.String("config", "configs/config.yaml", "Path to configuration file")
	symbol      = flag.String("symbol", "", "symbol to backtest, e.g. BTCUSDC")
	interval    = flag.String("interval", "1h", "kline interval")
	limit       = flag.Int("limit", 720, "number of candles to fetch")
	totalAmount = flag.Float64("total-amount", 1000, "quote-currency budget")
	trainRatio  = flag.Float64("train-ratio", 0.7, "train/test split ratio, used only in optimize mode")
	mode        = flag.String("mode", "optimize", "optimize|backtest")

	maxPrice       = flag.Float64("max-price", 0, "backtest mode: grid ceiling")
	minPrice       = flag.Float64("min-price", 0, "backtest mode: grid floor")
	gridLevels     = flag.Int("grid-levels", 10, "backtest mode: number of grid levels")
	sellPercentage = flag.Float64("sell-percentage", 2.0, "backtest mode: sell gain threshold, percent")
)

func main() {
	flag.Parse()

	app, err := bootstrap.NewApp(*configFile)
	if err != nil {
		panic(err)
	}
	logger := app.Logger
	cfg := app.Cfg

	if *symbol == "" {
		logger.Fatal("--symbol is required")
	}

	client := httpclient.NewClient(cfg.Exchange.BaseURL, 15*time.Second, nil)
	fetcher := candles.NewRESTFetcher(client, logger)

	candleData, err := fetcher.FetchKlines(context.Background(), *symbol, *interval, *limit)
	if err != nil {
		logger.Fatal("fetch candles failed", "err", err)
	}

	closes := make([]float64, len(candleData))
	for i, c := range candleData {
		closes[i] = c.Close
	}

	switch *mode {
	case "backtest":
		if *maxPrice <= 0 || *minPrice <= 0 {
			logger.Fatal("--max-price and --min-price are required in backtest mode")
		}
		result := backtest.Run(*symbol, closes, *totalAmount, backtest.Params{
			MaxPrice:       *maxPrice,
			MinPrice:       *minPrice,
			GridLevels:     *gridLevels,
			SellPercentage: *sellPercentage,
			FeePct:         cfg.Strategy.FeePct,
			BuyPullback:    cfg.Strategy.BuyPullbackPct,
			SellPullback:   cfg.Strategy.SellPullbackPct,
		})
		printJSON(result)

	default:
		result, err := optimize.Optimize(*symbol, closes, *totalAmount, *trainRatio,
			cfg.Strategy.FeePct, cfg.Strategy.BuyPullbackPct, cfg.Strategy.SellPullbackPct,
			optimize.DefaultGridLevels, optimize.DefaultSellPercentages, 10)
		if err != nil {
			logger.Fatal("optimize failed", "err", err)
		}
		printJSON(result)
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
