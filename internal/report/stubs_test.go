package report

import (
	"context"
	"fmt"
	"time"

	"github.com/quantleap/funnelsight/internal/fbads"
	"github.com/quantleap/funnelsight/internal/models"
)

// stubInsights fakes the Marketing API for tests.
type stubInsights struct {
	rows     map[string]map[fbads.Level][]models.InsightRow // day -> level -> rows
	currency string
	names    map[string]string

	insightCalls int
	nameCalls    int
}

func newStubInsights() *stubInsights {
	return &stubInsights{
		rows:     make(map[string]map[fbads.Level][]models.InsightRow),
		currency: "USD",
		names:    make(map[string]string),
	}
}

func (s *stubInsights) addRow(day time.Time, level fbads.Level, row models.InsightRow) {
	key := day.Format("2006-01-02")
	if s.rows[key] == nil {
		s.rows[key] = make(map[fbads.Level][]models.InsightRow)
	}
	s.rows[key][level] = append(s.rows[key][level], row)
}

func (s *stubInsights) Insights(ctx context.Context, day time.Time, level fbads.Level) ([]models.InsightRow, string, error) {
	s.insightCalls++
	return s.rows[day.Format("2006-01-02")][level], s.currency, nil
}

func (s *stubInsights) ObjectName(ctx context.Context, objectID string) (string, error) {
	s.nameCalls++
	name, ok := s.names[objectID]
	if !ok {
		return "", fmt.Errorf("object %s not found", objectID)
	}
	return name, nil
}

// stubRates fakes the FX-rate API.
type stubRates struct {
	rates map[string]float64
	calls int
	err   error
}

func (s *stubRates) DayRates(ctx context.Context, day time.Time) (*models.RateTable, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &models.RateTable{Base: "USD", Rates: s.rates}, nil
}
