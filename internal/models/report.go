package models

import (
	"time"
)

// ===========================================
// REPORT REQUEST / RESPONSE
// ===========================================

// ReportRequest is the admin UI's report query. Dates are local
// calendar days in YYYY-MM-DD form, both inclusive.
type ReportRequest struct {
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	BaseCurrency string `json:"base_currency"`
	URL          string `json:"url"`

	// AttributionModel selects which Facebook touchpoint a sale is
	// credited to: "last_touch" (default) or "first_touch".
	AttributionModel string `json:"attribution_model,omitempty"`
}

// ReportResponse is the full attribution/sales report payload.
type ReportResponse struct {
	Visitors      int64       `json:"visitors"`
	SignUpsUnique []SignupRow `json:"sign_ups_unique"`
	SignUpsAll    []SignupRow `json:"sign_ups_all"`

	Purchases               []PurchaseRow `json:"purchases"`
	OrderBumpConversionRate float64       `json:"order_bump_conversion_rate"`

	TotalCash       float64 `json:"total_cash"`
	TotalAdSpend    float64 `json:"total_adspend"`
	TotalProfitLoss float64 `json:"total_profit_loss"`
	TotalROAS       float64 `json:"total_roas"`

	DailyData           []DailyRow            `json:"daily_data"`
	AttributedPurchases []AttributedPurchase  `json:"attributed_purchases"`
	FacebookSalesData   *FacebookSalesData    `json:"facebook_sales_data"`
	IDToNameMappings    map[string]string     `json:"id_to_name_mappings"`
}

// ===========================================
// SIGN-UPS
// ===========================================

// SignupTag classifies an in-range sign-up row against lifetime
// history. Uniqueness is global by email, not per query range.
type SignupTag string

const (
	SignupUnique               SignupTag = "unique"
	SignupDuplicate            SignupTag = "duplicate"
	SignupRegisteredPreviously SignupTag = "registered_previously"
)

type SignupRow struct {
	Event TrackingEvent `json:"event"`
	Tag   SignupTag     `json:"tag"`
}

// ===========================================
// PURCHASES
// ===========================================

// PurchaseRow joins a buy event to its payment-processor transaction.
// LocalValue is the net transaction value converted into the report's
// base currency.
type PurchaseRow struct {
	Event       TrackingEvent `json:"event"`
	Transaction Transaction   `json:"transaction"`
	LocalValue  float64       `json:"local_value"`
	Item        string        `json:"item"`
}

// ===========================================
// ATTRIBUTION
// ===========================================

// StepKind says how a touchpoint was classified.
type StepKind string

const (
	StepFacebook StepKind = "facebook"
	StepSource   StepKind = "source"
	StepReferrer StepKind = "referrer"
)

// TrackedStep is one deduplicated touchpoint in a buyer's journey,
// sorted chronologically within an AttributedPurchase.
type TrackedStep struct {
	Kind      StepKind  `json:"kind"`
	Label     string    `json:"label"`
	Timestamp time.Time `json:"timestamp"`

	// Set for Facebook steps only.
	CampaignID string `json:"campaign_id,omitempty"`
	AdsetID    string `json:"adset_id,omitempty"`
	AdID       string `json:"ad_id,omitempty"`
}

// AttributedPurchase is a purchase with its reconstructed touchpoint
// sequence. Purchases with zero resolvable steps are not reported.
type AttributedPurchase struct {
	PurchaseID string        `json:"purchase_id"`
	Steps      []TrackedStep `json:"steps"`
	Cash       float64       `json:"cash"`
	Email      string        `json:"email"`
	Currency   string        `json:"currency"`
	Item       string        `json:"item"`
}

// ===========================================
// CAMPAIGN HIERARCHY
// ===========================================

// AdMetrics are platform-reported volume/spend figures. At parent
// levels the rollup takes max(own, sum(children)) per field, which
// tolerates deleted children still present in parent totals.
type AdMetrics struct {
	Impressions          int64   `json:"impressions"`
	UniqueOutboundClicks int64   `json:"unique_outbound_clicks"`
	Reach                int64   `json:"reach"`
	Spend                float64 `json:"spend"`
}

// Add accumulates another day's metrics into m.
func (m *AdMetrics) Add(o AdMetrics) {
	m.Impressions += o.Impressions
	m.UniqueOutboundClicks += o.UniqueOutboundClicks
	m.Reach += o.Reach
	m.Spend += o.Spend
}

// AdInfo is a leaf node of the campaign tree.
type AdInfo struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Metrics AdMetrics `json:"metrics"`
	Sales   int64     `json:"sales"`
	Cash    float64   `json:"cash"`
}

type AdsetInfo struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Metrics AdMetrics `json:"metrics"`
	Sales   int64     `json:"sales"`
	Cash    float64   `json:"cash"`
	Ads     []*AdInfo `json:"ads"`
}

type CampaignInfo struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Metrics AdMetrics    `json:"metrics"`
	Sales   int64        `json:"sales"`
	Cash    float64      `json:"cash"`
	Adsets  []*AdsetInfo `json:"adsets"`
}

// FacebookSalesData is the rolled-up campaign tree plus grand totals.
// ROAS is cash/spend, 0 when spend is 0.
type FacebookSalesData struct {
	Campaigns  []*CampaignInfo `json:"campaigns"`
	TotalSpend float64         `json:"total_spend"`
	TotalSales int64           `json:"total_sales"`
	TotalCash  float64         `json:"total_cash"`
	ROAS       float64         `json:"roas"`
}

// ===========================================
// DAILY ROLLUP
// ===========================================

// DailyRow is one calendar day of the report. Every numeric field is
// validated finite before the row is accepted; a violation aborts the
// whole report rather than corrupting it.
type DailyRow struct {
	Date string `json:"date"`

	// Ad platform, converted to the report base currency.
	Spend       float64 `json:"spend"`
	Impressions int64   `json:"impressions"`
	Reach       int64   `json:"reach"`
	Frequency   float64 `json:"frequency"`
	CPM         float64 `json:"cpm"`
	Clicks      int64   `json:"clicks"`
	CPC         float64 `json:"cpc"`
	CTR         float64 `json:"ctr"`

	// Funnel
	Visitors     int64   `json:"visitors"`
	Leads        int64   `json:"leads"`
	Purchases    int64   `json:"purchases"`
	Cash         float64 `json:"cash"`
	RefundCount  int64   `json:"refund_count"`
	RefundAmount float64 `json:"refund_amount"`

	// Derived rates, percent.
	VisitToLeadRate     float64 `json:"visit_to_lead_rate"`
	LeadToPurchaseRate  float64 `json:"lead_to_purchase_rate"`
	VisitToPurchaseRate float64 `json:"visit_to_purchase_rate"`

	ProfitLoss float64 `json:"profit_loss"`
	ROAS       float64 `json:"roas"`
}
