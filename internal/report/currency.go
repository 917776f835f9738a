package report

import (
	"fmt"
	"math"

	"github.com/quantleap/funnelsight/internal/models"
)

// Converter performs day-keyed currency conversion into a report's
// base currency. Conversion goes two hops through the day cache's own
// base currency (normally USD): divide by the source rate, multiply by
// the target rate. Any non-finite intermediate aborts the report;
// every downstream money figure depends on these numbers.
type Converter struct {
	days map[models.DayKey]*models.DayCacheEntry
	base string
}

// NewConverter creates a converter over loaded day-cache entries.
func NewConverter(days map[models.DayKey]*models.DayCacheEntry, baseCurrency string) *Converter {
	return &Converter{days: days, base: baseCurrency}
}

// Base returns the report base currency.
func (c *Converter) Base() string {
	return c.base
}

// Convert converts amount from the given currency into the report
// base currency using the rates cached for day.
func (c *Converter) Convert(day models.DayKey, amount float64, from string) (float64, error) {
	if from == c.base {
		return amount, nil
	}

	entry, ok := c.days[day]
	if !ok || entry == nil {
		return 0, fmt.Errorf("no day cache entry for %s", day)
	}

	rates := entry.Currencies.Rates
	fromRate, ok := rates[from]
	if !ok {
		return 0, fmt.Errorf("no %s rate cached for %s", from, day)
	}
	toRate, ok := rates[c.base]
	if !ok {
		return 0, fmt.Errorf("no %s rate cached for %s", c.base, day)
	}

	inCacheBase := amount / fromRate
	if math.IsNaN(inCacheBase) || math.IsInf(inCacheBase, 0) {
		return 0, fmt.Errorf("conversion %f %s via %s rate %f on %s is not finite", amount, from, entry.Currencies.Base, fromRate, day)
	}

	converted := inCacheBase * toRate
	if math.IsNaN(converted) || math.IsInf(converted, 0) {
		return 0, fmt.Errorf("conversion %f %s to %s on %s is not finite", amount, from, c.base, day)
	}

	return converted, nil
}
