package report

import (
	"context"
	"fmt"
	"time"

	"github.com/quantleap/funnelsight/internal/metrics"
	"github.com/quantleap/funnelsight/internal/models"
	"github.com/quantleap/funnelsight/internal/storage"
	"go.uber.org/zap"
)

// Service computes full attribution/sales reports. One report is a
// single-pass batch computation; the only state it leaves behind is
// the day cache and name cache, both idempotent under concurrent
// writers.
type Service struct {
	events   storage.EventStore
	txs      storage.TransactionRepo
	names    storage.NameCacheRepo
	dayCache storage.DayCacheRepo
	insights InsightsSource
	rates    RateSource
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewService wires the report computation. now is injectable for tests
// and may be nil.
func NewService(
	events storage.EventStore,
	txs storage.TransactionRepo,
	names storage.NameCacheRepo,
	dayCache storage.DayCacheRepo,
	insights InsightsSource,
	rates RateSource,
	logger *zap.Logger,
	m *metrics.Metrics,
	now func() time.Time,
) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		events:   events,
		txs:      txs,
		names:    names,
		dayCache: dayCache,
		insights: insights,
		rates:    rates,
		logger:   logger,
		metrics:  m,
		now:      now,
	}
}

// Generate runs the whole report for the request. Fail-fast: the first
// integrity violation aborts with an error and no partial output.
func (s *Service) Generate(ctx context.Context, req models.ReportRequest) (*models.ReportResponse, error) {
	started := s.now()

	start, end, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	if req.BaseCurrency == "" {
		return nil, fmt.Errorf("base_currency is required")
	}
	model, err := ParseModel(req.AttributionModel)
	if err != nil {
		return nil, err
	}

	loader := NewDayCacheLoader(s.dayCache, s.insights, s.rates, s.logger, s.metrics, s.now)
	days, err := loader.Load(ctx, start, end)
	if err != nil {
		return nil, err
	}
	conv := NewConverter(days, req.BaseCurrency)

	endOfRange := end.AddDate(0, 0, 1).Add(-time.Nanosecond)
	events, err := s.events.EventsInRange(ctx, start, endOfRange, req.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	var visitors int64
	var signups, buys []*models.TrackingEvent
	for _, ev := range events {
		switch ev.Type {
		case models.EventView:
			visitors++
		case models.EventSignUp:
			signups = append(signups, ev)
		case models.EventBuy:
			buys = append(buys, ev)
		}
	}

	uniqueSignups, allSignups, err := DeduplicateSignups(ctx, s.events, signups, start)
	if err != nil {
		return nil, err
	}

	purchases, err := ValuatePurchases(ctx, s.txs, buys, conv)
	if err != nil {
		return nil, err
	}

	resolver := NewNameResolver(s.names, s.insights, s.logger)
	walker := NewWalker(s.events, resolver, s.logger)

	var attributed []models.AttributedPurchase
	for _, row := range purchases.Rows {
		ap, err := walker.Attribute(ctx, row)
		if err != nil {
			return nil, err
		}
		if ap == nil {
			if s.metrics != nil {
				s.metrics.PurchasesUnresolved.Inc()
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.PurchasesAttributed.Inc()
		}
		attributed = append(attributed, *ap)
	}

	hierarchy, err := BuildHierarchy(ctx, s.names)
	if err != nil {
		return nil, err
	}
	if err := hierarchy.ApplyPlatformMetrics(ctx, days, resolver, conv); err != nil {
		return nil, err
	}
	credits := make(map[string]*models.TrackedStep, len(attributed))
	if model == ModelFirstTouch {
		credits = ReattributeFirstTouch(attributed)
	} else {
		for i := range attributed {
			credits[attributed[i].PurchaseID] = CreditedStep(attributed[i].Steps, ModelLastTouch)
		}
	}
	for i := range attributed {
		if err := hierarchy.ApplySale(&attributed[i], credits[attributed[i].PurchaseID]); err != nil {
			return nil, err
		}
	}
	salesData := hierarchy.Rollup()

	dailyRows, err := BuildDailyRows(days, events, purchases, conv, start, end)
	if err != nil {
		return nil, err
	}

	var totalSpend, totalRefunds float64
	for _, row := range dailyRows {
		totalSpend += row.Spend
		totalRefunds += row.RefundAmount
	}

	idToName, err := s.nameMappings(ctx)
	if err != nil {
		return nil, err
	}

	resp := &models.ReportResponse{
		Visitors:                visitors,
		SignUpsUnique:           uniqueSignups,
		SignUpsAll:              allSignups,
		Purchases:               purchases.Rows,
		OrderBumpConversionRate: purchases.OrderBumpConversionRate,
		TotalCash:               purchases.TotalCash,
		TotalAdSpend:            totalSpend,
		TotalProfitLoss:         purchases.TotalCash - totalSpend - totalRefunds,
		TotalROAS:               safeDiv(purchases.TotalCash, totalSpend),
		DailyData:               dailyRows,
		AttributedPurchases:     attributed,
		FacebookSalesData:       salesData,
		IDToNameMappings:        idToName,
	}

	elapsed := s.now().Sub(started)
	if s.metrics != nil {
		s.metrics.ReportDuration.Observe(elapsed.Seconds())
	}
	s.logger.Info("report generated",
		zap.String("start", req.StartDate),
		zap.String("end", req.EndDate),
		zap.String("base_currency", req.BaseCurrency),
		zap.String("model", string(model)),
		zap.Int64("visitors", visitors),
		zap.Int("purchases", len(purchases.Rows)),
		zap.Int("attributed", len(attributed)),
		zap.Duration("elapsed", elapsed),
	)

	return resp, nil
}

func (s *Service) nameMappings(ctx context.Context) (map[string]string, error) {
	entries, err := s.names.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export name mappings: %w", err)
	}
	mappings := make(map[string]string, len(entries))
	for _, e := range entries {
		mappings[e.ObjectID] = e.Name
	}
	return mappings, nil
}

// parseRange parses inclusive local calendar days.
func parseRange(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01-02", startDate, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date %q: %w", startDate, err)
	}
	end, err := time.ParseInLocation("2006-01-02", endDate, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date %q: %w", endDate, err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date %s precedes start_date %s", endDate, startDate)
	}
	return start, end, nil
}
