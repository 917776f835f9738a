package report

import (
	"fmt"
	"math"
	"time"

	"github.com/quantleap/funnelsight/internal/models"
)

// BuildDailyRows produces one row per calendar day in [start, end],
// joining ad-platform figures with the funnel events and valuated
// purchases bucketed by local day. Rows come out ascending by date.
//
// Every numeric field is checked finite before the row is accepted; a
// violation aborts the run so a broken figure surface as an error, not
// a corrupted report.
func BuildDailyRows(days map[models.DayKey]*models.DayCacheEntry, events []*models.TrackingEvent, purchases *PurchaseSummary, conv *Converter, start, end time.Time) ([]models.DailyRow, error) {
	type bucket struct {
		visitors     int64
		leads        int64
		purchases    int64
		cash         float64
		refundCount  int64
		refundAmount float64
	}
	buckets := make(map[models.DayKey]*bucket)

	ensure := func(key models.DayKey) *bucket {
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		return b
	}

	for _, ev := range events {
		key := models.DayKeyFor(ev.Timestamp)
		switch ev.Type {
		case models.EventView:
			ensure(key).visitors++
		case models.EventSignUp:
			ensure(key).leads++
		}
	}
	for i := range purchases.Rows {
		row := &purchases.Rows[i]
		b := ensure(models.DayKeyFor(row.Event.Timestamp))
		b.purchases++
		b.cash += row.LocalValue
	}
	for i := range purchases.Refunds {
		row := &purchases.Refunds[i]
		b := ensure(models.DayKeyFor(row.Event.Timestamp))
		b.refundCount++
		b.refundAmount += row.LocalValue
	}

	var rows []models.DailyRow

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		key := models.DayKeyFor(day)

		entry, ok := days[key]
		if !ok {
			return nil, fmt.Errorf("no day cache entry for %s", key)
		}

		var (
			spend       float64
			impressions int64
			reach       int64
			clicks      int64
		)
		for _, insight := range entry.Facebook.Campaigns {
			converted, err := conv.Convert(key, insight.Spend, entry.Facebook.AccountCurrency)
			if err != nil {
				return nil, fmt.Errorf("failed to convert ad spend for %s: %w", key, err)
			}
			spend += converted
			impressions += insight.Impressions
			reach += insight.Reach
			clicks += insight.UniqueOutboundClicks
		}

		b := ensure(key)

		row := models.DailyRow{
			Date:        key.String(),
			Spend:       spend,
			Impressions: impressions,
			Reach:       reach,
			Frequency:   safeDiv(float64(impressions), float64(reach)),
			CPM:         safeDiv(spend, float64(impressions)) * 1000,
			Clicks:      clicks,
			CPC:         safeDiv(spend, float64(clicks)),
			CTR:         safeDiv(float64(clicks), float64(impressions)) * 100,

			Visitors:     b.visitors,
			Leads:        b.leads,
			Purchases:    b.purchases,
			Cash:         b.cash,
			RefundCount:  b.refundCount,
			RefundAmount: b.refundAmount,

			VisitToLeadRate:     safeDiv(float64(b.leads), float64(b.visitors)) * 100,
			LeadToPurchaseRate:  safeDiv(float64(b.purchases), float64(b.leads)) * 100,
			VisitToPurchaseRate: safeDiv(float64(b.purchases), float64(b.visitors)) * 100,
		}
		row.ProfitLoss = row.Cash - row.Spend - row.RefundAmount
		row.ROAS = safeDiv(row.Cash, row.Spend)

		if err := validateRow(&row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// safeDiv returns a/b, or 0 when b is 0.
func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func validateRow(row *models.DailyRow) error {
	fields := map[string]float64{
		"spend":                  row.Spend,
		"frequency":              row.Frequency,
		"cpm":                    row.CPM,
		"cpc":                    row.CPC,
		"ctr":                    row.CTR,
		"cash":                   row.Cash,
		"refund_amount":          row.RefundAmount,
		"visit_to_lead_rate":     row.VisitToLeadRate,
		"lead_to_purchase_rate":  row.LeadToPurchaseRate,
		"visit_to_purchase_rate": row.VisitToPurchaseRate,
		"profit_loss":            row.ProfitLoss,
		"roas":                   row.ROAS,
	}
	for name, value := range fields {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("daily row %s has non-finite %s", row.Date, name)
		}
	}
	return nil
}
