package fbads

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/quantleap/funnelsight/internal/config"
	"github.com/quantleap/funnelsight/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// One shared registration per test binary; promauto registers into the
// default registry.
var testMetrics = metrics.NewMetrics("fbads_test")

func testClient(baseURL string) *Client {
	return NewClient(config.FacebookConfig{
		BaseURL:      baseURL,
		APIVersion:   "v18.0",
		AccessToken:  "tok",
		AdAccountID:  "123",
		CallInterval: time.Millisecond,
		Timeout:      5 * time.Second,
	}, zap.NewNop(), testMetrics)
}

func TestInsightsParsesAndRecordsCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/v18.0/act_123/insights")
		assert.Equal(t, "campaign", r.URL.Query().Get("level"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{
			"account_currency":"EUR",
			"campaign_id":"c1",
			"impressions":"1200",
			"reach":"900",
			"spend":"34.56",
			"unique_outbound_clicks":[{"action_type":"outbound_click","value":"78"}]
		}]}`))
	}))
	defer srv.Close()

	before := testutil.ToFloat64(testMetrics.ExternalCalls.WithLabelValues("facebook", "ok"))

	rows, currency, err := testClient(srv.URL).Insights(context.Background(), time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), LevelCampaign)
	require.NoError(t, err)

	assert.Equal(t, "EUR", currency)
	require.Len(t, rows, 1)
	assert.Equal(t, "c1", rows[0].CampaignID)
	assert.Equal(t, int64(1200), rows[0].Impressions)
	assert.Equal(t, int64(78), rows[0].UniqueOutboundClicks)
	assert.InDelta(t, 34.56, rows[0].Spend, 1e-9)

	after := testutil.ToFloat64(testMetrics.ExternalCalls.WithLabelValues("facebook", "ok"))
	assert.Equal(t, before+1, after)
}

func TestInsightsGraphErrorRecordsErrorCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid parameter","type":"OAuthException","code":100}}`))
	}))
	defer srv.Close()

	before := testutil.ToFloat64(testMetrics.ExternalCalls.WithLabelValues("facebook", "error"))

	_, _, err := testClient(srv.URL).Insights(context.Background(), time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), LevelAd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid parameter")
	assert.Contains(t, err.Error(), "code 100")

	after := testutil.ToFloat64(testMetrics.ExternalCalls.WithLabelValues("facebook", "error"))
	assert.Equal(t, before+1, after)
}

func TestObjectName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v18.0/c1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","name":"Spring Launch"}`))
	}))
	defer srv.Close()

	name, err := testClient(srv.URL).ObjectName(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Spring Launch", name)
}
