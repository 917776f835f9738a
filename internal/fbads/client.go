package fbads

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/quantleap/funnelsight/internal/config"
	"github.com/quantleap/funnelsight/internal/metrics"
	"github.com/quantleap/funnelsight/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// apiName labels this client's calls in the external-call metrics.
const apiName = "facebook"

// Level is an insights granularity of the Marketing API.
type Level string

const (
	LevelCampaign Level = "campaign"
	LevelAdset    Level = "adset"
	LevelAd       Level = "ad"
)

// Client talks to the Meta Marketing API. All calls share one token
// bucket so consecutive requests keep the platform's rate limits.
type Client struct {
	cfg        config.FacebookConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a Marketing API client. m may be nil.
func NewClient(cfg config.FacebookConfig, logger *zap.Logger, m *metrics.Metrics) *Client {
	interval := cfg.CallInterval
	if interval <= 0 {
		interval = 400 * time.Millisecond
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger,
		metrics: m,
	}
}

// insightRecord mirrors the Marketing API insights JSON. Numeric
// fields arrive as strings.
type insightRecord struct {
	AccountCurrency string `json:"account_currency"`
	CampaignID      string `json:"campaign_id"`
	AdsetID         string `json:"adset_id"`
	AdID            string `json:"ad_id"`
	Impressions     string `json:"impressions"`
	Reach           string `json:"reach"`
	Spend           string `json:"spend"`

	UniqueOutboundClicks []struct {
		ActionType string `json:"action_type"`
		Value      string `json:"value"`
	} `json:"unique_outbound_clicks"`
}

type insightsResponse struct {
	Data  []insightRecord `json:"data"`
	Error *apiError       `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// Insights fetches one day of insights at the given granularity.
// Numeric fields are normalized on the way in: missing or unparseable
// values become 0. Returns the rows and the ad account currency.
func (c *Client) Insights(ctx context.Context, day time.Time, level Level) ([]models.InsightRow, string, error) {
	dayStr := day.Format("2006-01-02")

	params := url.Values{}
	params.Set("access_token", c.cfg.AccessToken)
	params.Set("level", string(level))
	params.Set("fields", "account_currency,campaign_id,adset_id,ad_id,impressions,reach,spend,unique_outbound_clicks")
	params.Set("time_range", fmt.Sprintf(`{"since":"%s","until":"%s"}`, dayStr, dayStr))
	params.Set("limit", "500")

	endpoint := fmt.Sprintf("%s/%s/act_%s/insights?%s",
		c.cfg.BaseURL, c.cfg.APIVersion, c.cfg.AdAccountID, params.Encode())

	var resp insightsResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, "", fmt.Errorf("failed to fetch %s insights for %s: %w", level, dayStr, err)
	}
	if resp.Error != nil {
		return nil, "", fmt.Errorf("marketing api error for %s insights on %s: %s (code %d)",
			level, dayStr, resp.Error.Message, resp.Error.Code)
	}

	rows := make([]models.InsightRow, 0, len(resp.Data))
	accountCurrency := ""
	for _, rec := range resp.Data {
		if rec.AccountCurrency != "" {
			accountCurrency = rec.AccountCurrency
		}
		rows = append(rows, models.InsightRow{
			CampaignID:           rec.CampaignID,
			AdsetID:              rec.AdsetID,
			AdID:                 rec.AdID,
			Impressions:          parseCount(rec.Impressions),
			Reach:                parseCount(rec.Reach),
			Spend:                parseAmount(rec.Spend),
			UniqueOutboundClicks: outboundClicks(rec),
		})
	}

	return rows, accountCurrency, nil
}

// objectResponse mirrors a node lookup (/{id}?fields=name).
type objectResponse struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Error *apiError `json:"error"`
}

// ObjectName resolves the human-readable name of a campaign, adset or
// ad by id.
func (c *Client) ObjectName(ctx context.Context, objectID string) (string, error) {
	params := url.Values{}
	params.Set("access_token", c.cfg.AccessToken)
	params.Set("fields", "name")

	endpoint := fmt.Sprintf("%s/%s/%s?%s", c.cfg.BaseURL, c.cfg.APIVersion, objectID, params.Encode())

	var resp objectResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return "", fmt.Errorf("failed to fetch name of %s: %w", objectID, err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("marketing api error for object %s: %s (code %d)",
			objectID, resp.Error.Message, resp.Error.Code)
	}
	if resp.Name == "" {
		return "", fmt.Errorf("object %s has no name", objectID)
	}
	return resp.Name, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	// Space calls out; the Marketing API throttles bursts hard.
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.observe("error", elapsed)
		return err
	}
	defer resp.Body.Close()

	status := "ok"
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status = "error"
	}
	c.observe(status, elapsed)

	c.logger.Debug("marketing api call",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed),
	)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return err
	}
	// Graph errors come back as JSON bodies with non-2xx statuses;
	// decode either way so the api error surfaces with its message.
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("non-decodable response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}

func (c *Client) observe(status string, elapsed time.Duration) {
	if c.metrics != nil {
		c.metrics.ObserveExternalCall(apiName, status, elapsed)
	}
}

func outboundClicks(rec insightRecord) int64 {
	for _, a := range rec.UniqueOutboundClicks {
		if a.ActionType == "outbound_click" {
			return parseCount(a.Value)
		}
	}
	return 0
}

func parseCount(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseAmount(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
