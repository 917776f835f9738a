package report

import (
	"context"
	"fmt"
	"time"

	"github.com/quantleap/funnelsight/internal/fbads"
	"github.com/quantleap/funnelsight/internal/metrics"
	"github.com/quantleap/funnelsight/internal/models"
	"github.com/quantleap/funnelsight/internal/storage"
	"go.uber.org/zap"
)

// InsightsSource is the slice of the ad-platform client the report
// computation needs.
type InsightsSource interface {
	Insights(ctx context.Context, day time.Time, level fbads.Level) ([]models.InsightRow, string, error)
	ObjectName(ctx context.Context, objectID string) (string, error)
}

// RateSource provides historical FX rates, base USD.
type RateSource interface {
	DayRates(ctx context.Context, day time.Time) (*models.RateTable, error)
}

// DayCacheLoader populates per-day cache entries for a date range.
// Persisted entries for past days are reused as-is; today's entry is
// always refetched and never persisted. A fetch failure for any day
// fails the whole load, there are no partial results.
type DayCacheLoader struct {
	repo     storage.DayCacheRepo
	insights InsightsSource
	rates    RateSource
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewDayCacheLoader creates a loader. now is injectable for tests.
func NewDayCacheLoader(repo storage.DayCacheRepo, insights InsightsSource, rates RateSource, logger *zap.Logger, m *metrics.Metrics, now func() time.Time) *DayCacheLoader {
	if now == nil {
		now = time.Now
	}
	return &DayCacheLoader{
		repo:     repo,
		insights: insights,
		rates:    rates,
		logger:   logger,
		metrics:  m,
		now:      now,
	}
}

// Load populates entries for every local calendar day in [start, end].
func (l *DayCacheLoader) Load(ctx context.Context, start, end time.Time) (map[models.DayKey]*models.DayCacheEntry, error) {
	days := make(map[models.DayKey]*models.DayCacheEntry)

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		key := models.DayKeyFor(day)

		entry, err := l.repo.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to look up day cache for %s: %w", key, err)
		}
		if entry.Valid() && !key.IsToday(l.now()) {
			if l.metrics != nil {
				l.metrics.DayCacheHits.Inc()
			}
			days[key] = entry
			continue
		}
		if l.metrics != nil {
			l.metrics.DayCacheMisses.Inc()
		}

		entry, err = l.fetchDay(ctx, key)
		if err != nil {
			return nil, err
		}

		// Today's numbers are still moving; keep them out of the
		// persistent cache so tomorrow's report refetches the final
		// figures.
		if !key.IsToday(l.now()) {
			if err := l.repo.Upsert(ctx, entry); err != nil {
				return nil, fmt.Errorf("failed to persist day cache for %s: %w", key, err)
			}
		}
		days[key] = entry
	}

	return days, nil
}

func (l *DayCacheLoader) fetchDay(ctx context.Context, key models.DayKey) (*models.DayCacheEntry, error) {
	day := key.Time()

	rates, err := l.rates.DayRates(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch FX rates for %s: %w", key, err)
	}

	campaigns, accountCurrency, err := l.insights.Insights(ctx, day, fbads.LevelCampaign)
	if err != nil {
		return nil, err
	}
	if err := validateInsightRows(campaigns, fbads.LevelCampaign, key); err != nil {
		return nil, err
	}

	adsets, cur, err := l.insights.Insights(ctx, day, fbads.LevelAdset)
	if err != nil {
		return nil, err
	}
	if cur != "" {
		accountCurrency = cur
	}
	if err := validateInsightRows(adsets, fbads.LevelAdset, key); err != nil {
		return nil, err
	}

	ads, cur, err := l.insights.Insights(ctx, day, fbads.LevelAd)
	if err != nil {
		return nil, err
	}
	if cur != "" {
		accountCurrency = cur
	}
	if err := validateInsightRows(ads, fbads.LevelAd, key); err != nil {
		return nil, err
	}

	if accountCurrency == "" {
		// Days without any delivery report no rows and therefore no
		// account currency; USD-denominated zero spend is safe.
		accountCurrency = "USD"
	}

	l.logger.Info("fetched day cache entry",
		zap.String("day", key.String()),
		zap.Int("campaign_rows", len(campaigns)),
		zap.Int("adset_rows", len(adsets)),
		zap.Int("ad_rows", len(ads)),
	)

	return &models.DayCacheEntry{
		Key:        key,
		Currencies: *rates,
		Facebook: models.AdPlatformDay{
			AccountCurrency: accountCurrency,
			Campaigns:       campaigns,
			Adsets:          adsets,
			Ads:             ads,
		},
	}, nil
}

// validateInsightRows enforces the id fields each granularity must
// carry before a row may enter the cache.
func validateInsightRows(rows []models.InsightRow, level fbads.Level, key models.DayKey) error {
	for _, row := range rows {
		if row.CampaignID == "" {
			return fmt.Errorf("%s insight row for %s has no campaign_id", level, key)
		}
		switch level {
		case fbads.LevelAdset:
			if row.AdsetID == "" {
				return fmt.Errorf("adset insight row for %s (campaign %s) has no adset_id", key, row.CampaignID)
			}
		case fbads.LevelAd:
			if row.AdsetID == "" || row.AdID == "" {
				return fmt.Errorf("ad insight row for %s (campaign %s) is missing adset_id or ad_id", key, row.CampaignID)
			}
		}
	}
	return nil
}
