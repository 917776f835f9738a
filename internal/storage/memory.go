package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quantleap/funnelsight/internal/models"
)

// In-memory implementations, used in tests and when the service runs
// without its databases (development mode).

// =============================================
// EVENT STORE
// =============================================

// InMemoryEventStore provides in-memory storage for tracking events.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events []*models.TrackingEvent
}

// NewInMemoryEventStore creates a new in-memory event store.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{}
}

func (s *InMemoryEventStore) SaveEvent(ctx context.Context, ev *models.TrackingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *InMemoryEventStore) EventsInRange(ctx context.Context, start, end time.Time, urlPrefix string) ([]*models.TrackingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.TrackingEvent
	for _, ev := range s.events {
		if ev.Timestamp.Before(start) || ev.Timestamp.After(end) {
			continue
		}
		if urlPrefix != "" && !strings.HasPrefix(ev.URL, urlPrefix) {
			continue
		}
		result = append(result, ev)
	}
	sortEventsAsc(result)
	return result, nil
}

func (s *InMemoryEventStore) EarliestSignups(ctx context.Context, emails []string) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(emails))
	for _, e := range emails {
		wanted[e] = true
	}

	result := make(map[string]time.Time)
	for _, ev := range s.events {
		if ev.Type != models.EventSignUp || ev.Email == "" || !wanted[ev.Email] {
			continue
		}
		if cur, ok := result[ev.Email]; !ok || ev.Timestamp.Before(cur) {
			result[ev.Email] = ev.Timestamp
		}
	}
	return result, nil
}

func (s *InMemoryEventStore) UserIDsForEmails(ctx context.Context, emails []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(emails))
	for _, e := range emails {
		wanted[e] = true
	}

	seen := make(map[string]bool)
	var ids []string
	for _, ev := range s.events {
		if ev.UserID == "" || !wanted[ev.Email] || seen[ev.UserID] {
			continue
		}
		seen[ev.UserID] = true
		ids = append(ids, ev.UserID)
	}
	return ids, nil
}

func (s *InMemoryEventStore) EventsForIdentities(ctx context.Context, emails, userIDs []string, until time.Time) ([]*models.TrackingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wantEmail := make(map[string]bool, len(emails))
	for _, e := range emails {
		wantEmail[e] = true
	}
	wantUser := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		wantUser[id] = true
	}

	var result []*models.TrackingEvent
	for _, ev := range s.events {
		if ev.Timestamp.After(until) {
			continue
		}
		if (ev.Email != "" && wantEmail[ev.Email]) || (ev.UserID != "" && wantUser[ev.UserID]) {
			result = append(result, ev)
		}
	}
	sortEventsAsc(result)
	return result, nil
}

func sortEventsAsc(events []*models.TrackingEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

// =============================================
// TRANSACTION REPOSITORY
// =============================================

// InMemoryTransactionRepo provides in-memory transaction storage.
type InMemoryTransactionRepo struct {
	mu  sync.RWMutex
	txs map[string]*models.Transaction
}

func NewInMemoryTransactionRepo() *InMemoryTransactionRepo {
	return &InMemoryTransactionRepo{txs: make(map[string]*models.Transaction)}
}

func (r *InMemoryTransactionRepo) ByPaymentIDs(ctx context.Context, ids []string) (map[string]*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*models.Transaction, len(ids))
	for _, id := range ids {
		if tx, ok := r.txs[id]; ok {
			result[id] = tx
		}
	}
	return result, nil
}

func (r *InMemoryTransactionRepo) Upsert(ctx context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs[tx.TransactionID] = tx
	return nil
}

// =============================================
// NAME CACHE REPOSITORY
// =============================================

// InMemoryNameCacheRepo provides in-memory name cache storage.
type InMemoryNameCacheRepo struct {
	mu      sync.RWMutex
	entries map[string]*models.NameCacheEntry
}

func NewInMemoryNameCacheRepo() *InMemoryNameCacheRepo {
	return &InMemoryNameCacheRepo{entries: make(map[string]*models.NameCacheEntry)}
}

func (r *InMemoryNameCacheRepo) Get(ctx context.Context, objectID string) (*models.NameCacheEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[objectID], nil
}

func (r *InMemoryNameCacheRepo) ListAll(ctx context.Context) ([]*models.NameCacheEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*models.NameCacheEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *InMemoryNameCacheRepo) Upsert(ctx context.Context, entry *models.NameCacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.ObjectID] = entry
	return nil
}

// =============================================
// DAY CACHE REPOSITORY
// =============================================

// InMemoryDayCacheRepo provides in-memory day cache storage.
type InMemoryDayCacheRepo struct {
	mu      sync.RWMutex
	entries map[models.DayKey]*models.DayCacheEntry
}

func NewInMemoryDayCacheRepo() *InMemoryDayCacheRepo {
	return &InMemoryDayCacheRepo{entries: make(map[models.DayKey]*models.DayCacheEntry)}
}

func (r *InMemoryDayCacheRepo) Get(ctx context.Context, key models.DayKey) (*models.DayCacheEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[key], nil
}

func (r *InMemoryDayCacheRepo) Upsert(ctx context.Context, entry *models.DayCacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.Key] = entry
	return nil
}
