// Package candles fetches historical OHLCV data from the upstream exchange:
// paginated REST klines, and a daily-archive fallback for intervals too
// fine-grained for the REST API to serve in bulk. Grounded on
// klines_fetcher.py's pagination and archive-parsing semantics.
package candles

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"market_maker/internal/core"
	httpclient "market_maker/pkg/http"
)

const maxPageSize = 1000

// RESTFetcher fetches klines from the paginated /api/v3/klines endpoint.
type RESTFetcher struct {
	client *httpclient.Client
	log    core.ILogger
}

func NewRESTFetcher(client *httpclient.Client, log core.ILogger) *RESTFetcher {
	return &RESTFetcher{client: client, log: log}
}

// FetchKlines walks backward via endTime until limit candles have
// accumulated or the upstream returns a short page, then trims to exactly
// limit by keeping the most recent entries.
func (f *RESTFetcher) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]core.Candle, error) {
	var all []core.Candle
	endTime := int64(0)

	for len(all) < limit {
		pageSize := maxPageSize
		if remaining := limit - len(all); remaining < pageSize {
			pageSize = remaining
		}

		params := map[string]string{
			"symbol":   symbol,
			"interval": interval,
			"limit":    strconv.Itoa(pageSize),
		}
		if endTime > 0 {
			params["endTime"] = strconv.FormatInt(endTime, 10)
		}

		body, err := f.client.Get(ctx, "/api/v3/klines", params)
		if err != nil {
			return nil, fmt.Errorf("candles: fetch klines page: %w", err)
		}

		page, err := parseKlinesPage(body)
		if err != nil {
			return nil, fmt.Errorf("candles: parse klines page: %w", err)
		}
		if len(page) == 0 {
			break
		}

		all = append(page, all...)
		endTime = page[0].OpenTime.UnixMilli() - 1

		if len(page) < pageSize {
			break
		}
	}

	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// FetchArchive is not implemented by RESTFetcher; use ArchiveFetcher.
func (f *RESTFetcher) FetchArchive(ctx context.Context, symbol, interval string, days int) ([]core.Candle, error) {
	return nil, fmt.Errorf("candles: REST fetcher does not support archive mode")
}

func parseKlinesPage(body []byte) ([]core.Candle, error) {
	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	candles := make([]core.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		openTimeMs, ok := row[0].(float64)
		if !ok {
			continue
		}
		open, _ := parseFloatField(row[1])
		high, _ := parseFloatField(row[2])
		low, _ := parseFloatField(row[3])
		close, _ := parseFloatField(row[4])
		volume, _ := parseFloatField(row[5])

		candles = append(candles, core.Candle{
			OpenTime: time.UnixMilli(int64(openTimeMs)),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    close,
			Volume:   volume,
		})
	}
	return candles, nil
}

func parseFloatField(v interface{}) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case string:
		return strconv.ParseFloat(val, 64)
	default:
		return 0, fmt.Errorf("unexpected field type %T", v)
	}
}

// ArchiveFetcher downloads daily ZIP archives from the static archive host
// for intervals too fine-grained to page efficiently over REST.
type ArchiveFetcher struct {
	client *httpclient.Client
	log    core.ILogger
}

func NewArchiveFetcher(client *httpclient.Client, log core.ILogger) *ArchiveFetcher {
	return &ArchiveFetcher{client: client, log: log}
}

func (f *ArchiveFetcher) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]core.Candle, error) {
	return nil, fmt.Errorf("candles: archive fetcher does not support REST mode")
}

// FetchArchive downloads one ZIP per UTC day, extracts and parses the CSV,
// and skips 404 days silently. A malformed archive logs a warning and
// continues with the remaining days.
func (f *ArchiveFetcher) FetchArchive(ctx context.Context, symbol, interval string, days int) ([]core.Candle, error) {
	var all []core.Candle
	today := time.Now().UTC().Truncate(24 * time.Hour)

	for i := days - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		dayStr := day.Format("2006-01-02")
		path := fmt.Sprintf("/data/spot/daily/klines/%s/%s/%s-%s-%s.zip", symbol, interval, symbol, interval, dayStr)

		body, err := f.client.Get(ctx, path, nil)
		if err != nil {
			var apiErr *httpclient.APIError
			if isAPIError(err, &apiErr) && apiErr.StatusCode == 404 {
				continue
			}
			f.log.Warn("candles: archive day fetch failed, skipping", "symbol", symbol, "day", dayStr, "err", err)
			continue
		}

		dayCandles, err := parseArchiveZIP(body)
		if err != nil {
			f.log.Warn("candles: malformed archive, skipping day", "symbol", symbol, "day", dayStr, "err", err)
			continue
		}
		all = append(all, dayCandles...)
	}

	return all, nil
}

func isAPIError(err error, target **httpclient.APIError) bool {
	apiErr, ok := err.(*httpclient.APIError)
	if ok {
		*target = apiErr
	}
	return ok
}

func parseArchiveZIP(data []byte) ([]core.Candle, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("candles: open zip: %w", err)
	}

	var candles []core.Candle
	for _, file := range reader.File {
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("candles: open csv entry: %w", err)
		}
		parsed, err := parseArchiveCSV(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		candles = append(candles, parsed...)
	}
	return candles, nil
}

func parseArchiveCSV(r io.Reader) ([]core.Candle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var candles []core.Candle
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("candles: read csv row: %w", err)
		}
		if len(row) < 6 {
			continue
		}

		rawTs, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		// Archive files sometimes encode timestamps in microseconds; values
		// above 1e15 are reinterpreted by dividing by 1000.
		if rawTs > 1_000_000_000_000_000 {
			rawTs /= 1000
		}

		open, _ := strconv.ParseFloat(row[1], 64)
		high, _ := strconv.ParseFloat(row[2], 64)
		low, _ := strconv.ParseFloat(row[3], 64)
		closeP, _ := strconv.ParseFloat(row[4], 64)
		volume, _ := strconv.ParseFloat(row[5], 64)

		candles = append(candles, core.Candle{
			OpenTime: time.UnixMilli(rawTs),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closeP,
			Volume:   volume,
		})
	}
	return candles, nil
}

var _ core.CandleSource = (*RESTFetcher)(nil)
var _ core.CandleSource = (*ArchiveFetcher)(nil)
