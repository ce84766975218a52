package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/ratelimit"
	"resty.dev/v3"

	"github.com/ohlc-tools/history-repair/internal/config"
	"github.com/ohlc-tools/history-repair/internal/logger"
	"github.com/ohlc-tools/history-repair/internal/model"
	"github.com/ohlc-tools/history-repair/internal/timeframe"
)

const (
	_klinesURL = "/api/v3/klines"
	_pageLimit = 1000
)

var (
	// ErrRateLimited marks 429/418 responses. Retryable, counted separately.
	ErrRateLimited = errors.New("exchange rate limited")
	// ErrServerError marks 5xx responses. Retryable.
	ErrServerError = errors.New("exchange server error")
)

// Client fetches klines over the exchange REST API. One Client is shared by
// all workers so the rate-limit budget is global regardless of concurrency.
type Client struct {
	c       *resty.Client
	timeout time.Duration

	rateLimiter ratelimit.Limiter

	logger logger.Logger
}

func NewClient(cfg config.ExchangeConfig, logger logger.Logger) *Client {
	client := resty.New().
		SetLogger(logger).
		SetBaseURL(cfg.BaseURL)

	return &Client{
		c:           client,
		timeout:     cfg.RequestTimeout,
		rateLimiter: ratelimit.New(cfg.RequestsPerMinute, ratelimit.Per(1*time.Minute)),
		logger:      logger,
	}
}

// FetchRange pulls candles covering [sinceMS, untilMS], padded by one
// interval on both sides to avoid losing the gap boundaries. Paginates at
// the exchange page limit.
func (c *Client) FetchRange(ctx context.Context, symbol, tf string, sinceMS, untilMS int64) (model.Series, error) {
	interval, err := timeframe.IntervalMillis(tf)
	if err != nil {
		return nil, err
	}
	start := sinceMS - interval
	end := untilMS + interval

	var out model.Series
	for start <= end {
		batch, err := c.fetchPage(ctx, symbol, tf, start, end)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		out = append(out, batch...)
		if len(batch) < _pageLimit {
			break
		}
		start = batch[len(batch)-1].OpenTime + interval
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, symbol, tf string, startMS, endMS int64) (model.Series, error) {
	c.rateLimiter.Take()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.c.R().
		SetContext(reqCtx).
		SetQueryParams(map[string]string{
			"symbol":    symbol,
			"interval":  tf,
			"startTime": strconv.FormatInt(startMS, 10),
			"endTime":   strconv.FormatInt(endMS, 10),
			"limit":     strconv.Itoa(_pageLimit),
		}).
		Get(_klinesURL)
	if err != nil {
		return nil, fmt.Errorf("can't request klines: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debugf("got response %s status: %s, %s", resp.Request.URL, resp.Status(), resp.Duration())

	switch code := resp.StatusCode(); {
	case code == 429 || code == 418:
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, code)
	case code >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrServerError, code)
	case code != 200:
		return nil, fmt.Errorf("klines request failed: status %d: %s", code, resp.String())
	}

	return parseKlines(resp.Bytes())
}

// parseKlines decodes the raw kline rows:
// [openTime, "open", "high", "low", "close", "volume", closeTime, ...]
func parseKlines(data []byte) (model.Series, error) {
	var raw [][]interface{}
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("can't unmarshal klines: %w", err)
	}

	out := make(model.Series, 0, len(raw))
	for i, row := range raw {
		if len(row) < 7 {
			return nil, fmt.Errorf("kline row %d: want at least 7 fields, got %d", i, len(row))
		}
		c := model.Candle{}
		var err error
		if c.OpenTime, err = asInt64(row[0]); err != nil {
			return nil, fmt.Errorf("kline row %d open time: %w", i, err)
		}
		if c.Open, err = asFloat(row[1]); err != nil {
			return nil, fmt.Errorf("kline row %d open: %w", i, err)
		}
		if c.High, err = asFloat(row[2]); err != nil {
			return nil, fmt.Errorf("kline row %d high: %w", i, err)
		}
		if c.Low, err = asFloat(row[3]); err != nil {
			return nil, fmt.Errorf("kline row %d low: %w", i, err)
		}
		if c.Close, err = asFloat(row[4]); err != nil {
			return nil, fmt.Errorf("kline row %d close: %w", i, err)
		}
		if c.Volume, err = asFloat(row[5]); err != nil {
			return nil, fmt.Errorf("kline row %d volume: %w", i, err)
		}
		if c.CloseTime, err = asInt64(row[6]); err != nil {
			return nil, fmt.Errorf("kline row %d close time: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func asInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func asFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
