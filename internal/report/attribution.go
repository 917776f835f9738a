package report

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/quantleap/funnelsight/internal/models"
	"github.com/quantleap/funnelsight/internal/storage"
	"go.uber.org/zap"
)

// Model selects which qualifying touchpoint gets the sale.
type Model string

const (
	// ModelLastTouch credits the most recent Facebook step. Default.
	ModelLastTouch Model = "last_touch"
	// ModelFirstTouch credits the earliest Facebook step.
	ModelFirstTouch Model = "first_touch"
)

// ParseModel parses a request's attribution model; empty selects
// last-touch.
func ParseModel(s string) (Model, error) {
	switch s {
	case "", string(ModelLastTouch):
		return ModelLastTouch, nil
	case string(ModelFirstTouch):
		return ModelFirstTouch, nil
	}
	return "", fmt.Errorf("unknown attribution model %q", s)
}

// facebookDomains are Meta-owned referrer hosts. Visits from these
// are already captured structurally when ad ids are present, so bare
// referrer steps pointing at them are dropped.
var facebookDomains = map[string]string{
	"facebook.com":          "facebook.com",
	"www.facebook.com":      "facebook.com",
	"m.facebook.com":        "facebook.com",
	"l.facebook.com":        "facebook.com",
	"lm.facebook.com":       "facebook.com",
	"web.facebook.com":      "facebook.com",
	"business.facebook.com": "facebook.com",
	"fb.com":                "facebook.com",
	"fb.me":                 "facebook.com",
	"instagram.com":         "instagram.com",
	"www.instagram.com":     "instagram.com",
	"l.instagram.com":       "instagram.com",
}

// NameResolver resolves ad-object ids to human-readable names through
// the name cache, fetching and caching from the ad platform on a miss.
// Lookup failure degrades to a placeholder label instead of aborting;
// it is the one soft failure in the report path.
type NameResolver struct {
	repo   storage.NameCacheRepo
	api    InsightsSource
	logger *zap.Logger
}

func NewNameResolver(repo storage.NameCacheRepo, api InsightsSource, logger *zap.Logger) *NameResolver {
	return &NameResolver{repo: repo, api: api, logger: logger}
}

// Resolve returns the object's name. parentID is recorded alongside
// newly cached entries to keep the hierarchy reconstructable.
func (r *NameResolver) Resolve(ctx context.Context, objectID string, objectType models.ObjectType, parentID string) string {
	entry, err := r.repo.Get(ctx, objectID)
	if err != nil {
		r.logger.Warn("name cache lookup failed",
			zap.String("object_id", objectID),
			zap.Error(err),
		)
		return placeholderName(objectType, objectID)
	}
	if entry != nil {
		return entry.Name
	}

	name, err := r.api.ObjectName(ctx, objectID)
	if err != nil {
		r.logger.Warn("ad object name fetch failed",
			zap.String("object_id", objectID),
			zap.String("object_type", string(objectType)),
			zap.Error(err),
		)
		return placeholderName(objectType, objectID)
	}

	if err := r.repo.Upsert(ctx, &models.NameCacheEntry{
		ObjectID:   objectID,
		ObjectType: objectType,
		Name:       name,
		ParentID:   parentID,
	}); err != nil {
		r.logger.Warn("name cache upsert failed",
			zap.String("object_id", objectID),
			zap.Error(err),
		)
	}
	return name
}

func placeholderName(objectType models.ObjectType, objectID string) string {
	return fmt.Sprintf("%s %s", objectType, objectID)
}

// Walker reconstructs purchase touchpoint sequences from the event log.
type Walker struct {
	events storage.EventStore
	names  *NameResolver
	logger *zap.Logger
}

func NewWalker(events storage.EventStore, names *NameResolver, logger *zap.Logger) *Walker {
	return &Walker{events: events, names: names, logger: logger}
}

// Attribute reconstructs the touchpoint sequence for one purchase.
// Returns nil (and no error) when no step resolves; such purchases are
// excluded from the attribution output.
func (w *Walker) Attribute(ctx context.Context, p models.PurchaseRow) (*models.AttributedPurchase, error) {
	emails := identityEmails(&p.Event)

	userIDs, err := w.events.UserIDsForEmails(ctx, emails)
	if err != nil {
		return nil, fmt.Errorf("failed to expand identities for purchase %s: %w", p.Event.ID, err)
	}
	if p.Event.UserID != "" {
		userIDs = appendUnique(userIDs, p.Event.UserID)
	}

	history, err := w.events.EventsForIdentities(ctx, emails, userIDs, p.Event.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to load touchpoint history for purchase %s: %w", p.Event.ID, err)
	}

	var steps []models.TrackedStep
	seen := make(map[string]bool)

	for _, ev := range history {
		step, ok := w.classify(ctx, ev)
		if !ok || seen[step.Label] {
			continue
		}
		seen[step.Label] = true
		steps = append(steps, step)
	}

	if len(steps) == 0 {
		return nil, nil
	}

	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Timestamp.Before(steps[j].Timestamp)
	})

	return &models.AttributedPurchase{
		PurchaseID: p.Event.ID,
		Steps:      steps,
		Cash:       p.LocalValue,
		Email:      p.Event.Email,
		Currency:   p.Transaction.Currency,
		Item:       p.Item,
	}, nil
}

// classify turns one event into a touchpoint, or reports it carries
// none (plain page view with an excluded or empty referrer).
func (w *Walker) classify(ctx context.Context, ev *models.TrackingEvent) (models.TrackedStep, bool) {
	if ev.HasAdIDs() {
		campaign := w.names.Resolve(ctx, ev.CampaignID, models.ObjectCampaign, "")
		adset := w.names.Resolve(ctx, ev.AdsetID, models.ObjectAdset, ev.CampaignID)
		ad := w.names.Resolve(ctx, ev.AdID, models.ObjectAd, ev.AdsetID)
		return models.TrackedStep{
			Kind:       models.StepFacebook,
			Label:      fmt.Sprintf("%s / %s / %s", campaign, adset, ad),
			Timestamp:  ev.Timestamp,
			CampaignID: ev.CampaignID,
			AdsetID:    ev.AdsetID,
			AdID:       ev.AdID,
		}, true
	}

	if ev.Metadata.Source != "" || ev.Metadata.SourceType != "" {
		label := ev.Metadata.Source
		if ev.Metadata.SourceType != "" {
			if label == "" {
				label = ev.Metadata.SourceType
			} else {
				label = fmt.Sprintf("%s: %s", ev.Metadata.SourceType, ev.Metadata.Source)
			}
		}
		return models.TrackedStep{
			Kind:      models.StepSource,
			Label:     label,
			Timestamp: ev.Timestamp,
		}, true
	}

	domain := NormalizeMetaDomain(refererDomain(ev.Referer))
	if domain == "" {
		return models.TrackedStep{}, false
	}
	if _, isMeta := facebookDomains[domain]; isMeta {
		// Already captured structurally when ids were present; a bare
		// Meta referrer carries no attributable information.
		return models.TrackedStep{}, false
	}
	return models.TrackedStep{
		Kind:      models.StepReferrer,
		Label:     domain,
		Timestamp: ev.Timestamp,
	}, true
}

// refererDomain extracts the lower-cased host of a referrer URL.
func refererDomain(referer string) string {
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// NormalizeMetaDomain collapses Meta-owned host variants onto their
// canonical domain; other hosts pass through unchanged.
func NormalizeMetaDomain(host string) string {
	if canonical, ok := facebookDomains[strings.ToLower(host)]; ok {
		return canonical
	}
	return strings.ToLower(host)
}

// CreditedStep returns the Facebook step the model credits with the
// sale, or nil when the sequence has no Facebook step.
func CreditedStep(steps []models.TrackedStep, model Model) *models.TrackedStep {
	switch model {
	case ModelFirstTouch:
		for i := range steps {
			if steps[i].Kind == models.StepFacebook {
				return &steps[i]
			}
		}
	default:
		for i := len(steps) - 1; i >= 0; i-- {
			if steps[i].Kind == models.StepFacebook {
				return &steps[i]
			}
		}
	}
	return nil
}

// ReattributeFirstTouch recomputes credited steps under first-touch
// from already-stored step sequences, without re-walking event
// history. Touchpoints recorded after the original attribution ran are
// not picked up; rerun the walker with ModelFirstTouch for a full
// recomputation.
func ReattributeFirstTouch(purchases []models.AttributedPurchase) map[string]*models.TrackedStep {
	credited := make(map[string]*models.TrackedStep, len(purchases))
	for i := range purchases {
		credited[purchases[i].PurchaseID] = CreditedStep(purchases[i].Steps, ModelFirstTouch)
	}
	return credited
}

func identityEmails(ev *models.TrackingEvent) []string {
	var emails []string
	if ev.Email != "" {
		emails = append(emails, ev.Email)
	}
	if ev.Metadata.PayerEmail != "" {
		emails = appendUnique(emails, ev.Metadata.PayerEmail)
	}
	return emails
}

func appendUnique(items []string, item string) []string {
	for _, existing := range items {
		if existing == item {
			return items
		}
	}
	return append(items, item)
}
