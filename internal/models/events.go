package models

import (
	"time"
)

// ===========================================
// TRACKING EVENT
// ===========================================

type EventType string

const (
	EventView       EventType = "view"
	EventSignUp     EventType = "sign_up"
	EventBuyClick   EventType = "buy_click"
	EventBuy        EventType = "buy"
	EventBuyDecline EventType = "buy_decline"
)

// Payment status values carried in event metadata.
const (
	PaymentCompleted         = "completed"
	PaymentRefunded          = "refunded"
	PaymentPartiallyRefunded = "partially_refunded"
)

// TrackingEvent is one row of the append-only funnel event log.
// Events are immutable once recorded.
type TrackingEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"date"`

	// Identity
	Email  string `json:"email,omitempty"`
	UserID string `json:"user_id,omitempty"`

	// Page context
	URL     string `json:"url,omitempty"`
	Referer string `json:"referer,omitempty"`

	// Ad-platform attribution IDs, present when the visit came
	// through a tagged Meta ad link.
	CampaignID string `json:"campaign_id,omitempty"`
	AdsetID    string `json:"adset_id,omitempty"`
	AdID       string `json:"ad_id,omitempty"`

	Metadata EventMetadata `json:"metadata,omitempty"`
}

// EventMetadata is the loosely-typed payload attached to an event.
// Which fields are populated depends on the event type.
type EventMetadata struct {
	PaymentID      string  `json:"payment_id,omitempty"`
	PaymentMethod  string  `json:"payment_method,omitempty"`
	PaymentStatus  string  `json:"payment_status,omitempty"`
	Region         string  `json:"region,omitempty"`
	PrimaryOffer   string  `json:"primary_offer,omitempty"`
	SecondaryOffer string  `json:"secondary_offer,omitempty"`
	Value          float64 `json:"value,omitempty"`
	Currency       string  `json:"currency,omitempty"`

	// Labeled external traffic source (newsletter, affiliate, ...).
	Source     string `json:"source,omitempty"`
	SourceType string `json:"source_type,omitempty"`

	// Email the payment processor reported for the payer, which can
	// differ from the email the visitor signed up with.
	PayerEmail string `json:"payer_email,omitempty"`
}

// HasAdIDs reports whether the event carries the Meta id triple needed
// for structural attribution.
func (e *TrackingEvent) HasAdIDs() bool {
	return e.CampaignID != "" && e.AdsetID != "" && e.AdID != ""
}

// ===========================================
// TRANSACTION RECORD
// ===========================================

// Transaction is a payment-processor ledger row. Every buy event in a
// report range must resolve to exactly one transaction via PaymentID.
type Transaction struct {
	TransactionID string  `json:"transaction_id"`
	UnitPrice     float64 `json:"unit_price"`
	Fee           float64 `json:"fee"`
	Currency      string  `json:"currency"`
}

// Net returns the transaction value after processor fees, in the
// transaction's native currency.
func (t *Transaction) Net() float64 {
	return t.UnitPrice - t.Fee
}
