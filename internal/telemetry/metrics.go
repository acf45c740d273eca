package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names, namespaced to the gridbot domain.
const (
	MetricTradesTotal        = "gridbot_trades_total"
	MetricTicksTotal          = "gridbot_ticks_total"
	MetricPriceMissesTotal    = "gridbot_price_misses_total"
	MetricActiveBots          = "gridbot_active_bots"
	MetricOpenPositions       = "gridbot_open_positions"
	MetricRealizedPnL         = "gridbot_realized_pnl"
	MetricIngestReconnects    = "gridbot_ingest_reconnects_total"
	MetricScreeningProcessed  = "gridbot_screening_processed"
	MetricScreeningTotal      = "gridbot_screening_total"
	MetricTickLatencyMs       = "gridbot_tick_latency_ms"
	MetricOrderLatencyMs      = "gridbot_order_latency_ms"
)

// MetricsHolder holds the initialized instruments for one process.
type MetricsHolder struct {
	TradesTotal       metric.Int64Counter
	TicksTotal        metric.Int64Counter
	PriceMissesTotal  metric.Int64Counter
	ActiveBots        metric.Int64ObservableGauge
	OpenPositions     metric.Int64ObservableGauge
	RealizedPnL       metric.Float64ObservableGauge
	IngestReconnects  metric.Int64Counter
	ScreeningProcessed metric.Int64ObservableGauge
	ScreeningTotal    metric.Int64ObservableGauge
	TickLatencyMs     metric.Float64Histogram
	OrderLatencyMs    metric.Float64Histogram

	mu                  sync.RWMutex
	activeBotsMap       map[string]int64
	openPositionsMap    map[string]int64
	realizedPnLMap      map[string]float64
	screeningProcessed  map[string]int64
	screeningTotal      map[string]int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the process-wide metrics singleton.
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			activeBotsMap:      make(map[string]int64),
			openPositionsMap:   make(map[string]int64),
			realizedPnLMap:     make(map[string]float64),
			screeningProcessed: make(map[string]int64),
			screeningTotal:     make(map[string]int64),
		}
	})
	return globalMetrics
}

// InitMetrics creates every instrument against the given meter.
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	if m.TradesTotal, err = meter.Int64Counter(MetricTradesTotal, metric.WithDescription("Trades executed, by symbol and side")); err != nil {
		return err
	}
	if m.TicksTotal, err = meter.Int64Counter(MetricTicksTotal, metric.WithDescription("Bot Runtime ticks processed")); err != nil {
		return err
	}
	if m.PriceMissesTotal, err = meter.Int64Counter(MetricPriceMissesTotal, metric.WithDescription("Ticks skipped for lack of a cached price")); err != nil {
		return err
	}
	if m.IngestReconnects, err = meter.Int64Counter(MetricIngestReconnects, metric.WithDescription("Ingest WebSocket reconnect attempts")); err != nil {
		return err
	}
	if m.TickLatencyMs, err = meter.Float64Histogram(MetricTickLatencyMs, metric.WithDescription("Bot Runtime tick processing latency"), metric.WithUnit("ms")); err != nil {
		return err
	}
	if m.OrderLatencyMs, err = meter.Float64Histogram(MetricOrderLatencyMs, metric.WithDescription("OrderExecutor.PlaceMarket latency"), metric.WithUnit("ms")); err != nil {
		return err
	}

	if m.ActiveBots, err = meter.Int64ObservableGauge(MetricActiveBots, metric.WithDescription("1 if a bot's runtime is active"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for botID, v := range m.activeBotsMap {
				obs.Observe(v, metric.WithAttributes(attribute.String("bot_id", botID)))
			}
			return nil
		})); err != nil {
		return err
	}

	if m.OpenPositions, err = meter.Int64ObservableGauge(MetricOpenPositions, metric.WithDescription("Open positions per bot"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for botID, v := range m.openPositionsMap {
				obs.Observe(v, metric.WithAttributes(attribute.String("bot_id", botID)))
			}
			return nil
		})); err != nil {
		return err
	}

	if m.RealizedPnL, err = meter.Float64ObservableGauge(MetricRealizedPnL, metric.WithDescription("Cumulative realized PnL per bot"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for botID, v := range m.realizedPnLMap {
				obs.Observe(v, metric.WithAttributes(attribute.String("bot_id", botID)))
			}
			return nil
		})); err != nil {
		return err
	}

	if m.ScreeningProcessed, err = meter.Int64ObservableGauge(MetricScreeningProcessed, metric.WithDescription("Symbols processed by the running screening task"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for taskID, v := range m.screeningProcessed {
				obs.Observe(v, metric.WithAttributes(attribute.String("task_id", taskID)))
			}
			return nil
		})); err != nil {
		return err
	}

	if m.ScreeningTotal, err = meter.Int64ObservableGauge(MetricScreeningTotal, metric.WithDescription("Total symbols for the running screening task"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for taskID, v := range m.screeningTotal {
				obs.Observe(v, metric.WithAttributes(attribute.String("task_id", taskID)))
			}
			return nil
		})); err != nil {
		return err
	}

	return nil
}

func (m *MetricsHolder) SetActiveBot(botID string, active bool) {
	val := int64(0)
	if active {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeBotsMap[botID] = val
}

func (m *MetricsHolder) SetOpenPositions(botID string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openPositionsMap[botID] = int64(count)
}

func (m *MetricsHolder) SetRealizedPnL(botID string, pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.realizedPnLMap[botID] = pnl
}

func (m *MetricsHolder) SetScreeningProgress(taskID string, processed, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.screeningProcessed[taskID] = int64(processed)
	m.screeningTotal[taskID] = int64(total)
}
