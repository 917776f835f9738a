package report

import (
	"testing"
	"time"

	"github.com/quantleap/funnelsight/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dailyDays(t *testing.T, start, end time.Time, campaigns map[string][]models.InsightRow) map[models.DayKey]*models.DayCacheEntry {
	t.Helper()
	days := make(map[models.DayKey]*models.DayCacheEntry)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := models.DayKeyFor(d)
		days[key] = &models.DayCacheEntry{
			Key:        key,
			Currencies: models.RateTable{Base: "USD", Rates: map[string]float64{"USD": 1, "EUR": 0.92}},
			Facebook: models.AdPlatformDay{
				AccountCurrency: "USD",
				Campaigns:       campaigns[key.String()],
			},
		}
	}
	return days
}

func TestBuildDailyRowsBucketsAndDerives(t *testing.T) {
	start, end := day(1), day(2)

	days := dailyDays(t, start, end, map[string][]models.InsightRow{
		"2024-03-01": {{CampaignID: "c1", Spend: 50, Impressions: 10000, Reach: 4000, UniqueOutboundClicks: 200}},
	})

	events := []*models.TrackingEvent{
		{Type: models.EventView, Timestamp: day(1)},
		{Type: models.EventView, Timestamp: day(1).Add(time.Hour)},
		{Type: models.EventSignUp, Timestamp: day(1)},
		{Type: models.EventView, Timestamp: day(2)},
	}

	purchases := &PurchaseSummary{
		Rows: []models.PurchaseRow{
			{Event: models.TrackingEvent{Timestamp: day(1)}, LocalValue: 120},
		},
		Refunds: []models.PurchaseRow{
			{Event: models.TrackingEvent{Timestamp: day(2)}, LocalValue: 30},
		},
		TotalCash: 120,
	}

	conv := NewConverter(days, "USD")
	rows, err := BuildDailyRows(days, events, purchases, conv, start, end)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, "2024-03-01", first.Date)
	assert.InDelta(t, 50, first.Spend, 1e-9)
	assert.Equal(t, int64(10000), first.Impressions)
	assert.InDelta(t, 2.5, first.Frequency, 1e-9)          // 10000/4000
	assert.InDelta(t, 5, first.CPM, 1e-9)                  // 50/10000*1000
	assert.InDelta(t, 0.25, first.CPC, 1e-9)               // 50/200
	assert.InDelta(t, 2, first.CTR, 1e-9)                  // 200/10000*100
	assert.Equal(t, int64(2), first.Visitors)
	assert.Equal(t, int64(1), first.Leads)
	assert.Equal(t, int64(1), first.Purchases)
	assert.InDelta(t, 120, first.Cash, 1e-9)
	assert.InDelta(t, 50, first.VisitToLeadRate, 1e-9)     // 1/2*100
	assert.InDelta(t, 100, first.LeadToPurchaseRate, 1e-9) // 1/1*100
	assert.InDelta(t, 50, first.VisitToPurchaseRate, 1e-9)
	assert.InDelta(t, 70, first.ProfitLoss, 1e-9) // 120-50
	assert.InDelta(t, 2.4, first.ROAS, 1e-9)      // 120/50

	second := rows[1]
	assert.Equal(t, "2024-03-02", second.Date)
	// No ad activity: every ratio divides by zero and stays 0 instead
	// of NaN.
	assert.Zero(t, second.Spend)
	assert.Zero(t, second.Frequency)
	assert.Zero(t, second.ROAS)
	assert.Equal(t, int64(1), second.Visitors)
	assert.Equal(t, int64(1), second.RefundCount)
	assert.InDelta(t, 30, second.RefundAmount, 1e-9)
	assert.InDelta(t, -30, second.ProfitLoss, 1e-9)
}

func TestBuildDailyRowsCashReconcilesWithTotal(t *testing.T) {
	start, end := day(1), day(3)
	days := dailyDays(t, start, end, nil)

	purchases := &PurchaseSummary{
		Rows: []models.PurchaseRow{
			{Event: models.TrackingEvent{Timestamp: day(1)}, LocalValue: 40},
			{Event: models.TrackingEvent{Timestamp: day(2)}, LocalValue: 60},
			{Event: models.TrackingEvent{Timestamp: day(2).Add(5 * time.Hour)}, LocalValue: 25},
		},
		TotalCash: 125,
	}

	conv := NewConverter(days, "USD")
	rows, err := BuildDailyRows(days, nil, purchases, conv, start, end)
	require.NoError(t, err)

	var cash float64
	for _, row := range rows {
		cash += row.Cash
	}
	assert.InDelta(t, purchases.TotalCash, cash, 1e-9)
}

func TestBuildDailyRowsMissingDayIsFatal(t *testing.T) {
	start, end := day(1), day(2)
	days := dailyDays(t, start, start, nil) // only day 1 cached

	conv := NewConverter(days, "USD")
	_, err := BuildDailyRows(days, nil, &PurchaseSummary{}, conv, start, end)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no day cache entry for 2024-03-02")
}

func TestBuildDailyRowsConvertsSpend(t *testing.T) {
	start := day(1)
	days := dailyDays(t, start, start, map[string][]models.InsightRow{
		"2024-03-01": {{CampaignID: "c1", Spend: 92}},
	})
	for _, entry := range days {
		entry.Facebook.AccountCurrency = "EUR"
	}

	conv := NewConverter(days, "USD")
	rows, err := BuildDailyRows(days, nil, &PurchaseSummary{}, conv, start, start)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 100, rows[0].Spend, 1e-9)
}
