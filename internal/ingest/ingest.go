// Package ingest runs the Price Ingest Worker: a single long-lived
// WebSocket subscription to the upstream aggregate ticker stream that keeps
// the Price Store warm for every tracked symbol. Grounded on
// pkg/websocket.Client, extended with the spec's exponential backoff and
// tracked-symbol refresh policy.
package ingest

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"market_maker/internal/config"
	"market_maker/internal/core"
	"market_maker/pkg/websocket"
)

// SymbolResolver discovers which symbols the worker should track. In
// production this reads DurableStore.ActiveBotIDs/BotConfig; it is
// satisfied directly by a small adapter in cmd/gridbot.
type SymbolResolver interface {
	TrackedSymbols(ctx context.Context) ([]string, error)
}

// Worker owns the ingest WebSocket connection and the tracked-symbol
// refresh loop.
type Worker struct {
	streamURL string
	store     core.PriceStore
	resolver  SymbolResolver
	log       core.ILogger
	timing    config.TimingConfig

	ws *websocket.Client

	mu      sync.RWMutex
	tracked map[string]struct{}

	stopRefresh chan struct{}
	wg          sync.WaitGroup
}

// New builds a Worker. streamURL is the aggregate ticker stream endpoint
// (e.g. wss://stream.binance.com:9443/ws/!ticker@arr).
func New(streamURL string, store core.PriceStore, resolver SymbolResolver, log core.ILogger, timing config.TimingConfig) *Worker {
	w := &Worker{
		streamURL:   streamURL,
		store:       store,
		resolver:    resolver,
		log:         log,
		timing:      timing,
		tracked:     make(map[string]struct{}),
		stopRefresh: make(chan struct{}),
	}

	w.ws = websocket.NewClient(streamURL, w.handleMessage, log)
	// The client's pongWait is a read deadline measured from the last pong,
	// so it spans one ping interval plus the pong timeout.
	w.ws.SetPingConfig(timing.IngestPingInterval(), 5*time.Second, timing.IngestPingInterval()+timing.IngestPongTimeout())
	w.ws.SetReconnectBackoff(timing.IngestReconnectMin(), timing.IngestReconnectMax())

	return w
}

// Start connects the WebSocket and begins the tracked-symbol refresh loop.
// It returns immediately; call Stop to shut down.
func (w *Worker) Start(ctx context.Context) {
	w.refreshTracked(ctx)

	w.ws.Start()

	w.wg.Add(1)
	go w.refreshLoop(ctx)
}

// Stop closes the WebSocket connection and stops the refresh loop.
func (w *Worker) Stop() {
	close(w.stopRefresh)
	w.wg.Wait()
	w.ws.Stop()
}

func (w *Worker) refreshLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.timing.TrackedSymbolRefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopRefresh:
			return
		case <-ticker.C:
			w.refreshTracked(ctx)
		}
	}
}

// refreshTracked queries the resolver for active symbols and replaces the
// tracked set. An empty result (no active bots yet) leaves the tracked set
// empty, which tracks every symbol on the stream, so price caching doesn't
// go dark during startup.
func (w *Worker) refreshTracked(ctx context.Context) {
	symbols, err := w.resolver.TrackedSymbols(ctx)
	if err != nil {
		w.log.Warn("ingest: tracked symbol refresh failed, keeping previous set", "err", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	next := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		next[s] = struct{}{}
	}
	w.tracked = next
}

func (w *Worker) isTracked(symbol string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.tracked) == 0 {
		// No resolved universe yet, or no active bots; track everything.
		return true
	}
	_, ok := w.tracked[symbol]
	return ok
}

type tickerEvent struct {
	Symbol string `json:"s"`
	Price  string `json:"c"`
}

// handleMessage parses one aggregate ticker frame (a JSON array of per-symbol
// tickers) and batches the tracked subset into the Price Store with the
// configured TTL.
func (w *Worker) handleMessage(message []byte) {
	var events []tickerEvent
	if err := json.Unmarshal(message, &events); err != nil {
		w.log.Warn("ingest: malformed ticker frame, skipping", "err", err)
		return
	}

	batch := make(map[string]float64, len(events))
	for _, e := range events {
		if !w.isTracked(e.Symbol) {
			continue
		}
		price, err := parsePrice(e.Price)
		if err != nil {
			continue
		}
		batch[e.Symbol] = price
	}

	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.store.SetPricesBatch(ctx, batch, w.timing.PriceTTL()); err != nil {
		w.log.Error("ingest: price batch write failed", "err", err)
	}
}

func parsePrice(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
