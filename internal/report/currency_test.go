package report

import (
	"testing"
	"time"

	"github.com/quantleap/funnelsight/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDayKey() models.DayKey {
	return models.DayKeyFor(time.Date(2024, 3, 10, 12, 0, 0, 0, time.Local))
}

func testDays(rates map[string]float64) map[models.DayKey]*models.DayCacheEntry {
	return map[models.DayKey]*models.DayCacheEntry{
		testDayKey(): {
			Key:        testDayKey(),
			Currencies: models.RateTable{Base: "USD", Rates: rates},
			Facebook:   models.AdPlatformDay{AccountCurrency: "USD"},
		},
	}
}

func TestConvertSameCurrencyShortCircuits(t *testing.T) {
	// No cache entry at all: identity conversion must not need one.
	conv := NewConverter(map[models.DayKey]*models.DayCacheEntry{}, "USD")

	got, err := conv.Convert(testDayKey(), 42.5, "USD")
	require.NoError(t, err)
	assert.Equal(t, 42.5, got)
}

func TestConvertTwoHop(t *testing.T) {
	conv := NewConverter(testDays(map[string]float64{"EUR": 0.92, "USD": 1}), "USD")

	// 100 EUR purchase with a 3 EUR fee: net 97 EUR -> 97/0.92 USD.
	got, err := conv.Convert(testDayKey(), 97, "EUR")
	require.NoError(t, err)
	assert.InDelta(t, 105.43, got, 0.01)
}

func TestConvertCrossCurrency(t *testing.T) {
	rates := map[string]float64{"EUR": 0.92, "GBP": 0.79, "USD": 1}
	conv := NewConverter(testDays(rates), "GBP")

	got, err := conv.Convert(testDayKey(), 97, "EUR")
	require.NoError(t, err)

	// Two-hop agrees with converting through USD by hand.
	assert.InDelta(t, 97/0.92*0.79, got, 1e-9)
}

func TestConvertMissingDayEntry(t *testing.T) {
	conv := NewConverter(map[models.DayKey]*models.DayCacheEntry{}, "USD")

	_, err := conv.Convert(testDayKey(), 10, "EUR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no day cache entry")
}

func TestConvertMissingRates(t *testing.T) {
	conv := NewConverter(testDays(map[string]float64{"USD": 1}), "USD")
	_, err := conv.Convert(testDayKey(), 10, "EUR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no EUR rate")

	conv = NewConverter(testDays(map[string]float64{"EUR": 0.92}), "USD")
	_, err = conv.Convert(testDayKey(), 10, "EUR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no USD rate")
}

func TestConvertNonFiniteIsFatal(t *testing.T) {
	// A zero source rate divides to +Inf; that must surface as an
	// error, never as a silent number.
	conv := NewConverter(testDays(map[string]float64{"EUR": 0, "USD": 1}), "USD")

	_, err := conv.Convert(testDayKey(), 10, "EUR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not finite")
}
