package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/quantleap/funnelsight/internal/models"
)

// ClickHouseEventStore implements EventStore on top of the ClickHouse
// tracking_events table.
//
// Expected schema:
//
//	CREATE TABLE tracking_events (
//	    id          String,
//	    type        LowCardinality(String),
//	    ts          DateTime64(3),
//	    email       String,
//	    user_id     String,
//	    url         String,
//	    referer     String,
//	    campaign_id String,
//	    adset_id    String,
//	    ad_id       String,
//	    metadata    String
//	) ENGINE = MergeTree ORDER BY (ts, id)
type ClickHouseEventStore struct {
	conn       driver.Conn
	batchLimit int
}

// NewClickHouseEventStore creates an event store. batchLimit caps the
// number of ids placed into one IN (...) clause.
func NewClickHouseEventStore(conn driver.Conn, batchLimit int) *ClickHouseEventStore {
	if batchLimit <= 0 {
		batchLimit = 500
	}
	return &ClickHouseEventStore{conn: conn, batchLimit: batchLimit}
}

const eventColumns = `id, type, ts, email, user_id, url, referer, campaign_id, adset_id, ad_id, metadata`

func (s *ClickHouseEventStore) SaveEvent(ctx context.Context, ev *models.TrackingEvent) error {
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal event metadata: %w", err)
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO tracking_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, string(ev.Type), ev.Timestamp, ev.Email, ev.UserID, ev.URL,
		ev.Referer, ev.CampaignID, ev.AdsetID, ev.AdID, string(meta))
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (s *ClickHouseEventStore) EventsInRange(ctx context.Context, start, end time.Time, urlPrefix string) ([]*models.TrackingEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM tracking_events
		WHERE ts >= ? AND ts <= ?`
	args := []any{start, end}

	if urlPrefix != "" {
		query += ` AND startsWith(url, ?)`
		args = append(args, urlPrefix)
	}
	query += ` ORDER BY ts ASC`

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events in range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *ClickHouseEventStore) EarliestSignups(ctx context.Context, emails []string) (map[string]time.Time, error) {
	result := make(map[string]time.Time, len(emails))

	for _, chunk := range chunkStrings(emails, s.batchLimit) {
		rows, err := s.conn.Query(ctx, `
			SELECT email, min(ts)
			FROM tracking_events
			WHERE type = 'sign_up' AND email IN (?)
			GROUP BY email
		`, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to query earliest sign-ups: %w", err)
		}

		for rows.Next() {
			var (
				email    string
				earliest time.Time
			)
			if err := rows.Scan(&email, &earliest); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan earliest sign-up: %w", err)
			}
			result[email] = earliest
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	return result, nil
}

func (s *ClickHouseEventStore) UserIDsForEmails(ctx context.Context, emails []string) ([]string, error) {
	var ids []string

	for _, chunk := range chunkStrings(emails, s.batchLimit) {
		rows, err := s.conn.Query(ctx, `
			SELECT DISTINCT user_id
			FROM tracking_events
			WHERE email IN (?) AND user_id != ''
		`, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to query user ids for emails: %w", err)
		}

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan user id: %w", err)
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	return ids, nil
}

func (s *ClickHouseEventStore) EventsForIdentities(ctx context.Context, emails, userIDs []string, until time.Time) ([]*models.TrackingEvent, error) {
	if len(emails) == 0 && len(userIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + eventColumns + `
		FROM tracking_events
		WHERE ts <= ? AND (`
	args := []any{until}

	switch {
	case len(emails) > 0 && len(userIDs) > 0:
		query += `email IN (?) OR user_id IN (?)`
		args = append(args, emails, userIDs)
	case len(emails) > 0:
		query += `email IN (?)`
		args = append(args, emails)
	default:
		query += `user_id IN (?)`
		args = append(args, userIDs)
	}
	query += `) ORDER BY ts ASC`

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query identity events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows driver.Rows) ([]*models.TrackingEvent, error) {
	var events []*models.TrackingEvent

	for rows.Next() {
		var (
			ev      models.TrackingEvent
			evType  string
			rawMeta string
		)
		if err := rows.Scan(&ev.ID, &evType, &ev.Timestamp, &ev.Email, &ev.UserID,
			&ev.URL, &ev.Referer, &ev.CampaignID, &ev.AdsetID, &ev.AdID, &rawMeta); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Type = models.EventType(evType)

		if rawMeta != "" {
			if err := json.Unmarshal([]byte(rawMeta), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata for event %s: %w", ev.ID, err)
			}
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

func chunkStrings(items []string, size int) [][]string {
	if len(items) == 0 {
		return nil
	}
	var chunks [][]string
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
