package fxrates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/quantleap/funnelsight/internal/config"
	"github.com/quantleap/funnelsight/internal/metrics"
	"github.com/quantleap/funnelsight/internal/models"
	"go.uber.org/zap"
)

// apiName labels this client's calls in the external-call metrics.
const apiName = "fxrates"

// cacheBase is the currency the rate snapshots themselves are
// denominated in. Reports convert through it regardless of their own
// base currency.
const cacheBase = "USD"

// Client fetches historical FX rates for single days.
type Client struct {
	cfg        config.FXRatesConfig
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewClient creates an FX-rate API client. m may be nil.
func NewClient(cfg config.FXRatesConfig, logger *zap.Logger, m *metrics.Metrics) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger:  logger,
		metrics: m,
	}
}

type ratesResponse struct {
	Success bool               `json:"success"`
	Base    string             `json:"base"`
	Rates   map[string]float64 `json:"rates"`
	Error   *struct {
		Code int    `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// DayRates fetches the historical rate table for one day, base USD.
func (c *Client) DayRates(ctx context.Context, day time.Time) (*models.RateTable, error) {
	dayStr := day.Format("2006-01-02")

	params := url.Values{}
	params.Set("base", cacheBase)
	if c.cfg.AccessKey != "" {
		params.Set("access_key", c.cfg.AccessKey)
	}
	endpoint := fmt.Sprintf("%s/%s?%s", c.cfg.BaseURL, dayStr, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.observe("error", elapsed)
		return nil, fmt.Errorf("failed to fetch FX rates for %s: %w", dayStr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.observe("error", elapsed)
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("FX rates API returned %d for %s: %s", resp.StatusCode, dayStr, string(b))
	}
	c.observe("ok", elapsed)

	var parsed ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode FX rates for %s: %w", dayStr, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("FX rates API error for %s: %s (code %d)", dayStr, parsed.Error.Info, parsed.Error.Code)
	}
	if len(parsed.Rates) == 0 {
		return nil, fmt.Errorf("FX rates API returned no rates for %s", dayStr)
	}

	base := parsed.Base
	if base == "" {
		base = cacheBase
	}

	c.logger.Debug("fetched FX rates",
		zap.String("day", dayStr),
		zap.Int("currencies", len(parsed.Rates)),
	)

	return &models.RateTable{
		Base:  base,
		Rates: parsed.Rates,
	}, nil
}

func (c *Client) observe(status string, elapsed time.Duration) {
	if c.metrics != nil {
		c.metrics.ObserveExternalCall(apiName, status, elapsed)
	}
}
