// Package exchangeclient talks to the upstream Binance-compatible REST API:
// symbol discovery, last-price lookups, and (when live trading is enabled)
// signed market order placement. Grounded on the external interface section
// of the spec and the teacher's Signer-based resilient HTTP client.
package exchangeclient

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"market_maker/internal/core"
	httpclient "market_maker/pkg/http"
)

// Client is the production CandleSource/SymbolUniverse/OrderExecutor
// collaborator, backed by a resilient pkg/http.Client.
type Client struct {
	http        *httpclient.Client
	apiKey      string
	apiSecret   string
	liveTrading bool
	log         core.ILogger
}

// New builds a Client. apiKey/apiSecret are only consulted when liveTrading
// is true; PlaceMarket becomes a no-op simulated fill otherwise.
func New(baseURL string, timeout time.Duration, apiKey, apiSecret string, liveTrading bool, log core.ILogger) *Client {
	c := &Client{apiKey: apiKey, apiSecret: apiSecret, liveTrading: liveTrading, log: log}
	var signer httpclient.Signer
	if liveTrading {
		signer = hmacSigner{apiKey: apiKey, apiSecret: apiSecret}
	}
	c.http = httpclient.NewClient(baseURL, timeout, signer)
	return c
}

type hmacSigner struct {
	apiKey    string
	apiSecret string
}

// SignRequest appends a timestamp + HMAC-SHA256 signature over the
// urlencoded query and sets the X-MBX-APIKEY header, matching the
// /api/v3/order contract.
func (s hmacSigner) SignRequest(req *http.Request) error {
	req.Header.Set("X-MBX-APIKEY", s.apiKey)

	q := req.URL.Query()
	q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))

	mac := hmac.New(sha256.New, []byte(s.apiSecret))
	mac.Write([]byte(q.Encode()))
	signature := hex.EncodeToString(mac.Sum(nil))
	q.Set("signature", signature)

	req.URL.RawQuery = q.Encode()
	return nil
}

type klineRow = []interface{}

// FetchKlines fetches up to limit candles at interval in one request (no
// backward pagination; see candles.RESTFetcher for the paginated path).
func (c *Client) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]core.Candle, error) {
	body, err := c.http.Get(ctx, "/api/v3/klines", map[string]string{
		"symbol":   symbol,
		"interval": interval,
		"limit":    strconv.Itoa(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("exchangeclient: fetch klines: %w", err)
	}

	var rows []klineRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("exchangeclient: parse klines: %w", err)
	}

	candles := make([]core.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		openMs, _ := row[0].(float64)
		candles = append(candles, core.Candle{
			OpenTime: time.UnixMilli(int64(openMs)),
			Open:     parseField(row[1]),
			High:     parseField(row[2]),
			Low:      parseField(row[3]),
			Close:    parseField(row[4]),
			Volume:   parseField(row[5]),
		})
	}
	return candles, nil
}

// FetchArchive is unsupported directly by the live exchange client; archive
// downloads go through candles.ArchiveFetcher.
func (c *Client) FetchArchive(ctx context.Context, symbol, interval string, days int) ([]core.Candle, error) {
	return nil, fmt.Errorf("exchangeclient: archive mode unsupported, use candles.ArchiveFetcher")
}

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		QuoteAsset string `json:"quoteAsset"`
		Status     string `json:"status"`
	} `json:"symbols"`
}

// ActiveSymbols discovers every TRADING symbol quoted in quoteAsset.
func (c *Client) ActiveSymbols(ctx context.Context, quoteAsset string) ([]string, error) {
	body, err := c.http.Get(ctx, "/api/v3/exchangeInfo", nil)
	if err != nil {
		return nil, fmt.Errorf("exchangeclient: fetch exchange info: %w", err)
	}

	var info exchangeInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("exchangeclient: parse exchange info: %w", err)
	}

	var symbols []string
	for _, s := range info.Symbols {
		if s.QuoteAsset == quoteAsset && s.Status == "TRADING" {
			symbols = append(symbols, s.Symbol)
		}
	}
	return symbols, nil
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// TickerPrice returns the single last price for symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	body, err := c.http.Get(ctx, "/api/v3/ticker/price", map[string]string{"symbol": symbol})
	if err != nil {
		return 0, fmt.Errorf("exchangeclient: fetch ticker price: %w", err)
	}

	var resp tickerPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("exchangeclient: parse ticker price: %w", err)
	}
	return strconv.ParseFloat(resp.Price, 64)
}

// PlaceMarket places a signed market order when live trading is enabled; it
// is a simulated no-op fill otherwise, leaving the caller's trade-log write
// as the sole record.
func (c *Client) PlaceMarket(ctx context.Context, symbol string, side core.Side, qty float64) error {
	if !c.liveTrading {
		return nil
	}

	params := map[string]string{
		"symbol":   symbol,
		"side":     orderSide(side),
		"type":     "MARKET",
		"quantity": strconv.FormatFloat(qty, 'f', -1, 64),
	}
	_, err := c.http.Post(ctx, "/api/v3/order?"+url.Values(toURLValues(params)).Encode(), nil)
	if err != nil {
		return fmt.Errorf("exchangeclient: place market order: %w", err)
	}
	return nil
}

func orderSide(side core.Side) string {
	if side == core.SideBuy {
		return "BUY"
	}
	return "SELL"
}

func toURLValues(m map[string]string) url.Values {
	v := url.Values{}
	for k, val := range m {
		v.Set(k, val)
	}
	return v
}

func parseField(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	default:
		return 0
	}
}

var _ core.CandleSource = (*Client)(nil)
var _ core.SymbolUniverse = (*Client)(nil)
var _ core.OrderExecutor = (*Client)(nil)
