package models

import (
	"fmt"
	"time"
)

// ===========================================
// DAY CACHE
// ===========================================

// DayKey identifies one local calendar day.
type DayKey struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

func DayKeyFor(t time.Time) DayKey {
	return DayKey{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// String renders the key as YYYY-MM-DD.
func (k DayKey) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", k.Year, k.Month, k.Day)
}

// Time returns midnight local time of the day.
func (k DayKey) Time() time.Time {
	return time.Date(k.Year, time.Month(k.Month), k.Day, 0, 0, 0, 0, time.Local)
}

// IsToday reports whether the key names the current local day.
// Today's cache entry is never persisted and always refetched.
func (k DayKey) IsToday(now time.Time) bool {
	return k == DayKeyFor(now)
}

// RateTable is one day's FX snapshot. Base is the currency the rates
// themselves are denominated in (the cache base, normally USD), which
// is distinct from a report's base currency.
type RateTable struct {
	Base  string             `json:"base_currency"`
	Rates map[string]float64 `json:"rates"`
}

// InsightRow is one normalized ad-platform insight record for a single
// day at one granularity. Numeric fields are normalized on ingest:
// missing or non-finite values become 0.
type InsightRow struct {
	CampaignID string `json:"campaign_id"`
	AdsetID    string `json:"adset_id,omitempty"`
	AdID       string `json:"ad_id,omitempty"`

	Impressions          int64   `json:"impressions"`
	UniqueOutboundClicks int64   `json:"unique_outbound_clicks"`
	Reach                int64   `json:"reach"`
	Spend                float64 `json:"spend"`
}

// AdPlatformDay holds one day's insights at all three granularities.
type AdPlatformDay struct {
	AccountCurrency string       `json:"account_currency"`
	Campaigns       []InsightRow `json:"campaigns"`
	Adsets          []InsightRow `json:"adsets"`
	Ads             []InsightRow `json:"ads"`
}

// DayCacheEntry is the persisted per-day memo of FX rates and ad
// metrics. Once stored for a past day it is treated as immutable.
type DayCacheEntry struct {
	Key        DayKey        `json:"key"`
	Currencies RateTable     `json:"currencies"`
	Facebook   AdPlatformDay `json:"facebook"`
}

// Valid reports whether the entry is structurally complete enough to
// reuse. Invalid persisted entries are refetched rather than trusted.
func (e *DayCacheEntry) Valid() bool {
	if e == nil {
		return false
	}
	if e.Currencies.Base == "" || len(e.Currencies.Rates) == 0 {
		return false
	}
	return e.Facebook.AccountCurrency != ""
}

// ===========================================
// NAME CACHE
// ===========================================

type ObjectType string

const (
	ObjectCampaign ObjectType = "campaign"
	ObjectAdset    ObjectType = "adset"
	ObjectAd       ObjectType = "ad"
)

// NameCacheEntry maps an ad-platform object id to its human-readable
// name and parent. The cache is append-only and grows lazily as
// unseen ids are encountered.
type NameCacheEntry struct {
	ObjectID   string     `json:"object_id"`
	ObjectType ObjectType `json:"object_type"`
	Name       string     `json:"name"`
	ParentID   string     `json:"parent_id,omitempty"`
}
