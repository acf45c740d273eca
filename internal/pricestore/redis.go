// Package pricestore implements the short-TTL volatile store: cached
// prices, the symbol-list cache, bot state blobs, and screening progress
// blobs. Grounded on the key layout and TTLs of the original RedisCache
// (app/core/cache.py), reimplemented against github.com/redis/go-redis/v9.
package pricestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"market_maker/internal/core"
)

const (
	priceKeyPrefix    = "price:"
	symbolsKeyPrefix  = "symbols:"
	botStateKeyPrefix = "bot_state:"
	progressKeyPrefix = "screening:"
)

// Redis is the production PriceStore backed by a single redis.Client.
type Redis struct {
	client *redis.Client
	log    core.ILogger
}

// NewRedis wraps an already-configured *redis.Client. Connection lifecycle
// (dial, auth, TLS) is the caller's responsibility.
func NewRedis(client *redis.Client, log core.ILogger) *Redis {
	return &Redis{client: client, log: log}
}

func priceKey(symbol string) string    { return priceKeyPrefix + symbol }
func symbolsKey(quote string) string   { return symbolsKeyPrefix + quote }
func botStateKey(botID string) string  { return botStateKeyPrefix + botID }
func progressKey(taskID string) string { return progressKeyPrefix + taskID }

func (r *Redis) SetPrice(ctx context.Context, symbol string, price float64, ttl time.Duration) error {
	cp := core.CachedPrice{Price: price, Ts: time.Now().Unix(), Source: "ingest"}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("pricestore: marshal price: %w", err)
	}
	return r.client.Set(ctx, priceKey(symbol), data, ttl).Err()
}

func (r *Redis) GetPrice(ctx context.Context, symbol string) (core.CachedPrice, bool, error) {
	data, err := r.client.Get(ctx, priceKey(symbol)).Bytes()
	if err == redis.Nil {
		return core.CachedPrice{}, false, nil
	}
	if err != nil {
		return core.CachedPrice{}, false, fmt.Errorf("pricestore: get price: %w", err)
	}
	var cp core.CachedPrice
	if err := json.Unmarshal(data, &cp); err != nil {
		return core.CachedPrice{}, false, fmt.Errorf("pricestore: unmarshal price: %w", err)
	}
	return cp, true, nil
}

// SetPricesBatch performs one atomic pipelined write for every symbol. A nil
// or empty map is a no-op, matching the original set_prices_batch behavior.
func (r *Redis) SetPricesBatch(ctx context.Context, prices map[string]float64, ttl time.Duration) error {
	if len(prices) == 0 {
		return nil
	}
	pipe := r.client.TxPipeline()
	ts := time.Now().Unix()
	for symbol, price := range prices {
		cp := core.CachedPrice{Price: price, Ts: ts, Source: "ingest"}
		data, err := json.Marshal(cp)
		if err != nil {
			return fmt.Errorf("pricestore: marshal batch entry %s: %w", symbol, err)
		}
		pipe.Set(ctx, priceKey(symbol), data, ttl)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("pricestore: exec batch: %w", err)
	}
	return nil
}

func (r *Redis) SetSymbols(ctx context.Context, quote string, symbols []string, ttl time.Duration) error {
	data, err := json.Marshal(symbols)
	if err != nil {
		return fmt.Errorf("pricestore: marshal symbols: %w", err)
	}
	return r.client.Set(ctx, symbolsKey(quote), data, ttl).Err()
}

func (r *Redis) GetSymbols(ctx context.Context, quote string) ([]string, bool, error) {
	data, err := r.client.Get(ctx, symbolsKey(quote)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pricestore: get symbols: %w", err)
	}
	var symbols []string
	if err := json.Unmarshal(data, &symbols); err != nil {
		return nil, false, fmt.Errorf("pricestore: unmarshal symbols: %w", err)
	}
	return symbols, true, nil
}

func (r *Redis) SetBotState(ctx context.Context, botID string, state core.BotState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("pricestore: marshal bot state: %w", err)
	}
	return r.client.Set(ctx, botStateKey(botID), data, 0).Err()
}

func (r *Redis) GetBotState(ctx context.Context, botID string) (core.BotState, bool, error) {
	data, err := r.client.Get(ctx, botStateKey(botID)).Bytes()
	if err == redis.Nil {
		return core.BotState{}, false, nil
	}
	if err != nil {
		return core.BotState{}, false, fmt.Errorf("pricestore: get bot state: %w", err)
	}
	var state core.BotState
	if err := json.Unmarshal(data, &state); err != nil {
		return core.BotState{}, false, fmt.Errorf("pricestore: unmarshal bot state: %w", err)
	}
	return state, true, nil
}

func (r *Redis) DeleteBotState(ctx context.Context, botID string) error {
	return r.client.Del(ctx, botStateKey(botID)).Err()
}

func (r *Redis) SetProgress(ctx context.Context, taskID string, progress core.ScreeningProgress, ttl time.Duration) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("pricestore: marshal progress: %w", err)
	}
	return r.client.Set(ctx, progressKey(taskID), data, ttl).Err()
}

func (r *Redis) GetProgress(ctx context.Context, taskID string) (core.ScreeningProgress, bool, error) {
	data, err := r.client.Get(ctx, progressKey(taskID)).Bytes()
	if err == redis.Nil {
		return core.ScreeningProgress{}, false, nil
	}
	if err != nil {
		return core.ScreeningProgress{}, false, fmt.Errorf("pricestore: get progress: %w", err)
	}
	var progress core.ScreeningProgress
	if err := json.Unmarshal(data, &progress); err != nil {
		return core.ScreeningProgress{}, false, fmt.Errorf("pricestore: unmarshal progress: %w", err)
	}
	return progress, true, nil
}

var _ core.PriceStore = (*Redis)(nil)
