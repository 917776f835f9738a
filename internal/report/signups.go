package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/quantleap/funnelsight/internal/models"
	"github.com/quantleap/funnelsight/internal/storage"
)

// DeduplicateSignups classifies the in-range sign-up events against
// lifetime history. Uniqueness is global by email: the canonical
// occurrence is the email's earliest sign-up across all time, not just
// the query range.
//
// Tags:
//   - registered_previously: the email's lifetime-earliest sign-up
//     predates the range start.
//   - duplicate: a prior in-range row already claimed the email.
//   - unique: the canonical occurrence. Rows without an email always
//     count unique.
//
// Both returned lists are sorted newest-first.
func DeduplicateSignups(ctx context.Context, store storage.EventStore, inRange []*models.TrackingEvent, rangeStart time.Time) (unique, all []models.SignupRow, err error) {
	emailSet := make(map[string]bool)
	for _, ev := range inRange {
		if ev.Type == models.EventSignUp && ev.Email != "" {
			emailSet[ev.Email] = true
		}
	}
	emails := make([]string, 0, len(emailSet))
	for e := range emailSet {
		emails = append(emails, e)
	}

	earliest, err := store.EarliestSignups(ctx, emails)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve lifetime-earliest sign-ups: %w", err)
	}

	claimed := make(map[string]bool)

	// Walk oldest-first so the earliest in-range occurrence of an
	// email is the one that claims it.
	ordered := make([]*models.TrackingEvent, 0, len(inRange))
	for _, ev := range inRange {
		if ev.Type == models.EventSignUp {
			ordered = append(ordered, ev)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	for _, ev := range ordered {
		row := models.SignupRow{Event: *ev, Tag: models.SignupUnique}

		if ev.Email != "" {
			first, ok := earliest[ev.Email]
			if !ok {
				// The in-range event itself must be in the log; a
				// missing lookup means the stores disagree.
				return nil, nil, fmt.Errorf("sign-up %s has no lifetime-earliest record for %s", ev.ID, ev.Email)
			}
			switch {
			case first.Before(rangeStart):
				row.Tag = models.SignupRegisteredPreviously
			case claimed[ev.Email]:
				row.Tag = models.SignupDuplicate
			default:
				claimed[ev.Email] = true
			}
		}

		all = append(all, row)
		if row.Tag == models.SignupUnique {
			unique = append(unique, row)
		}
	}

	sortSignupsNewestFirst(unique)
	sortSignupsNewestFirst(all)
	return unique, all, nil
}

func sortSignupsNewestFirst(rows []models.SignupRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Event.Timestamp.After(rows[j].Event.Timestamp)
	})
}
