package report

import (
	"context"
	"testing"
	"time"

	"github.com/quantleap/funnelsight/internal/fbads"
	"github.com/quantleap/funnelsight/internal/models"
	"github.com/quantleap/funnelsight/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fixedNow pins "today" well past the test range so every day counts
// as a past day unless a test moves it.
func fixedNow() time.Time {
	return time.Date(2024, 3, 20, 15, 0, 0, 0, time.Local)
}

func TestDayCacheLoaderFetchesAndPersists(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewInMemoryDayCacheRepo()

	api := newStubInsights()
	api.addRow(day(5), fbads.LevelCampaign, models.InsightRow{CampaignID: "c1", Spend: 12})
	rates := &stubRates{rates: map[string]float64{"USD": 1, "EUR": 0.92}}

	loader := NewDayCacheLoader(repo, api, rates, zap.NewNop(), nil, fixedNow)
	days, err := loader.Load(ctx, day(5), day(5))
	require.NoError(t, err)
	require.Len(t, days, 1)

	key := models.DayKeyFor(day(5))
	entry := days[key]
	require.NotNil(t, entry)
	assert.Equal(t, "USD", entry.Facebook.AccountCurrency)
	require.Len(t, entry.Facebook.Campaigns, 1)
	assert.InDelta(t, 12, entry.Facebook.Campaigns[0].Spend, 1e-9)

	// Past day was written through to the repo.
	persisted, err := repo.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, persisted.Valid())
}

func TestDayCacheLoaderReusesPersistedPastDay(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewInMemoryDayCacheRepo()

	key := models.DayKeyFor(day(5))
	require.NoError(t, repo.Upsert(ctx, &models.DayCacheEntry{
		Key:        key,
		Currencies: models.RateTable{Base: "USD", Rates: map[string]float64{"USD": 1}},
		Facebook: models.AdPlatformDay{
			AccountCurrency: "USD",
			Campaigns:       []models.InsightRow{{CampaignID: "c1", Spend: 7}},
		},
	}))

	api := newStubInsights()
	rates := &stubRates{rates: map[string]float64{"USD": 1}}

	loader := NewDayCacheLoader(repo, api, rates, zap.NewNop(), nil, fixedNow)
	days, err := loader.Load(ctx, day(5), day(5))
	require.NoError(t, err)

	assert.InDelta(t, 7, days[key].Facebook.Campaigns[0].Spend, 1e-9)
	// Cache hit means no external traffic at all.
	assert.Zero(t, api.insightCalls)
	assert.Zero(t, rates.calls)
}

func TestDayCacheLoaderAlwaysRefetchesToday(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewInMemoryDayCacheRepo()

	today := day(5)
	now := func() time.Time { return today.Add(6 * time.Hour) }
	key := models.DayKeyFor(today)

	// A stale entry for today exists; it must be ignored.
	require.NoError(t, repo.Upsert(ctx, &models.DayCacheEntry{
		Key:        key,
		Currencies: models.RateTable{Base: "USD", Rates: map[string]float64{"USD": 1}},
		Facebook: models.AdPlatformDay{
			AccountCurrency: "USD",
			Campaigns:       []models.InsightRow{{CampaignID: "c1", Spend: 1}},
		},
	}))

	api := newStubInsights()
	api.addRow(today, fbads.LevelCampaign, models.InsightRow{CampaignID: "c1", Spend: 42})
	rates := &stubRates{rates: map[string]float64{"USD": 1}}

	loader := NewDayCacheLoader(repo, api, rates, zap.NewNop(), nil, now)
	days, err := loader.Load(ctx, today, today)
	require.NoError(t, err)

	assert.InDelta(t, 42, days[key].Facebook.Campaigns[0].Spend, 1e-9)
	assert.Equal(t, 3, api.insightCalls)

	// And the fresh numbers were not written back: the stale entry is
	// still what the repo holds.
	persisted, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.InDelta(t, 1, persisted.Facebook.Campaigns[0].Spend, 1e-9)
}

func TestDayCacheLoaderDefaultsAccountCurrency(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewInMemoryDayCacheRepo()

	api := newStubInsights()
	api.currency = "" // no delivery, API reports no currency
	rates := &stubRates{rates: map[string]float64{"USD": 1}}

	loader := NewDayCacheLoader(repo, api, rates, zap.NewNop(), nil, fixedNow)
	days, err := loader.Load(ctx, day(5), day(5))
	require.NoError(t, err)

	assert.Equal(t, "USD", days[models.DayKeyFor(day(5))].Facebook.AccountCurrency)
}

func TestDayCacheLoaderRejectsIncompleteInsightRows(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewInMemoryDayCacheRepo()

	api := newStubInsights()
	api.addRow(day(5), fbads.LevelAdset, models.InsightRow{CampaignID: "c1"}) // no adset_id
	rates := &stubRates{rates: map[string]float64{"USD": 1}}

	loader := NewDayCacheLoader(repo, api, rates, zap.NewNop(), nil, fixedNow)
	_, err := loader.Load(ctx, day(5), day(5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no adset_id")
}

func TestDayCacheLoaderRateFailureAborts(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewInMemoryDayCacheRepo()

	api := newStubInsights()
	rates := &stubRates{err: assert.AnError}

	loader := NewDayCacheLoader(repo, api, rates, zap.NewNop(), nil, fixedNow)
	_, err := loader.Load(ctx, day(5), day(6))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch FX rates")
}
