package storage

import (
	"context"
	"time"

	"github.com/quantleap/funnelsight/internal/models"
)

// =============================================
// EVENT STORE
// =============================================

// EventStore defines operations over the append-only tracking-event log.
type EventStore interface {
	// SaveEvent appends one event. Events are never updated.
	SaveEvent(ctx context.Context, ev *models.TrackingEvent) error

	// EventsInRange returns every event with start <= ts <= end whose
	// URL begins with urlPrefix (all URLs when urlPrefix is empty),
	// sorted ascending by timestamp.
	EventsInRange(ctx context.Context, start, end time.Time, urlPrefix string) ([]*models.TrackingEvent, error)

	// EarliestSignups returns, per email, the timestamp of the
	// lifetime-earliest sign_up event. Emails with no sign-up history
	// are absent from the result. Implementations batch large email
	// lists into multiple queries.
	EarliestSignups(ctx context.Context, emails []string) (map[string]time.Time, error)

	// UserIDsForEmails returns every user id that ever produced an
	// event carrying one of the given emails.
	UserIDsForEmails(ctx context.Context, emails []string) ([]string, error)

	// EventsForIdentities returns every event at or before `until`
	// matching any of the emails or user ids, sorted ascending by
	// timestamp.
	EventsForIdentities(ctx context.Context, emails, userIDs []string, until time.Time) ([]*models.TrackingEvent, error)
}

// =============================================
// TRANSACTION REPOSITORY
// =============================================

// TransactionRepo defines operations over the payment-processor ledger.
type TransactionRepo interface {
	// ByPaymentIDs resolves transactions for a set of payment ids.
	// Missing ids are simply absent from the map; the caller decides
	// whether that is fatal.
	ByPaymentIDs(ctx context.Context, ids []string) (map[string]*models.Transaction, error)

	Upsert(ctx context.Context, tx *models.Transaction) error
}

// =============================================
// NAME CACHE REPOSITORY
// =============================================

// NameCacheRepo defines operations over the ad-object name cache.
// The cache is append-mostly; Upsert absorbs concurrent duplicate
// fetches of the same object.
type NameCacheRepo interface {
	Get(ctx context.Context, objectID string) (*models.NameCacheEntry, error)
	ListAll(ctx context.Context) ([]*models.NameCacheEntry, error)
	Upsert(ctx context.Context, entry *models.NameCacheEntry) error
}

// =============================================
// DAY CACHE REPOSITORY
// =============================================

// DayCacheRepo defines operations over the per-day ad-metrics cache.
// Entries for past days are written once and then treated as
// immutable; Upsert semantics make concurrent writers converge.
type DayCacheRepo interface {
	// Get returns the entry for the day, or nil when none is stored.
	Get(ctx context.Context, key models.DayKey) (*models.DayCacheEntry, error)
	Upsert(ctx context.Context, entry *models.DayCacheEntry) error
}
