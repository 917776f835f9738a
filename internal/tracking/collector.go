package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quantleap/funnelsight/internal/metrics"
	"github.com/quantleap/funnelsight/internal/models"
	"github.com/quantleap/funnelsight/internal/storage"
	"go.uber.org/zap"
)

// TrackRequest is the collector's wire payload.
type TrackRequest struct {
	Type       string `json:"type"`
	Email      string `json:"email,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	URL        string `json:"url"`
	Referer    string `json:"referer,omitempty"`
	CampaignID string `json:"campaign_id,omitempty"`
	AdsetID    string `json:"adset_id,omitempty"`
	AdID       string `json:"ad_id,omitempty"`

	Metadata models.EventMetadata `json:"metadata,omitempty"`
}

var validTypes = map[models.EventType]bool{
	models.EventView:       true,
	models.EventSignUp:     true,
	models.EventBuyClick:   true,
	models.EventBuy:        true,
	models.EventBuyDecline: true,
}

// Collector appends tracking events to the event log, enriching them
// with a geo-derived region when the client did not send one.
type Collector struct {
	events  storage.EventStore
	geo     GeoResolver
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewCollector creates a collector. geo may be nil when GeoIP is
// disabled.
func NewCollector(events storage.EventStore, geo GeoResolver, logger *zap.Logger, m *metrics.Metrics) *Collector {
	return &Collector{
		events:  events,
		geo:     geo,
		logger:  logger,
		metrics: m,
	}
}

// Record validates and appends one event. remoteIP feeds the region
// enrichment and is never stored.
func (c *Collector) Record(ctx context.Context, req *TrackRequest, remoteIP string) (*models.TrackingEvent, error) {
	evType := models.EventType(req.Type)
	if !validTypes[evType] {
		return nil, fmt.Errorf("unknown event type %q", req.Type)
	}
	if req.URL == "" {
		return nil, fmt.Errorf("url is required")
	}

	ev := &models.TrackingEvent{
		ID:         uuid.NewString(),
		Type:       evType,
		Timestamp:  time.Now(),
		Email:      req.Email,
		UserID:     req.UserID,
		URL:        req.URL,
		Referer:    req.Referer,
		CampaignID: req.CampaignID,
		AdsetID:    req.AdsetID,
		AdID:       req.AdID,
		Metadata:   req.Metadata,
	}

	if ev.Metadata.Region == "" && c.geo != nil && remoteIP != "" {
		ev.Metadata.Region = c.geo.Region(remoteIP)
	}

	if err := c.events.SaveEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("failed to store event: %w", err)
	}

	if c.metrics != nil {
		c.metrics.EventsCollected.WithLabelValues(string(evType)).Inc()
	}
	c.logger.Debug("event collected",
		zap.String("id", ev.ID),
		zap.String("type", string(ev.Type)),
		zap.String("url", ev.URL),
	)

	return ev, nil
}
