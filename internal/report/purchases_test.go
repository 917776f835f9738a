package report

import (
	"context"
	"testing"
	"time"

	"github.com/quantleap/funnelsight/internal/models"
	"github.com/quantleap/funnelsight/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buyEvent(id, email, paymentID, primary, secondary string, ts time.Time) *models.TrackingEvent {
	return &models.TrackingEvent{
		ID:        id,
		Type:      models.EventBuy,
		Timestamp: ts,
		Email:     email,
		URL:       "https://funnel.example.com/checkout",
		Metadata: models.EventMetadata{
			PaymentID:      paymentID,
			PrimaryOffer:   primary,
			SecondaryOffer: secondary,
			PaymentStatus:  models.PaymentCompleted,
		},
	}
}

func converterFor(t *testing.T, ts time.Time, rates map[string]float64, base string) *Converter {
	t.Helper()
	key := models.DayKeyFor(ts)
	return NewConverter(map[models.DayKey]*models.DayCacheEntry{
		key: {
			Key:        key,
			Currencies: models.RateTable{Base: "USD", Rates: rates},
			Facebook:   models.AdPlatformDay{AccountCurrency: "USD"},
		},
	}, base)
}

func TestValuatePurchases(t *testing.T) {
	ctx := context.Background()
	ts := day(5)

	txs := storage.NewInMemoryTransactionRepo()
	require.NoError(t, txs.Upsert(ctx, &models.Transaction{
		TransactionID: "pay-1", UnitPrice: 100, Fee: 3, Currency: "EUR",
	}))

	conv := converterFor(t, ts, map[string]float64{"EUR": 0.92, "USD": 1}, "USD")
	buys := []*models.TrackingEvent{buyEvent("b1", "a@x.com", "pay-1", "course-basic", "", ts)}

	summary, err := ValuatePurchases(ctx, txs, buys, conv)
	require.NoError(t, err)

	require.Len(t, summary.Rows, 1)
	assert.InDelta(t, 105.43, summary.Rows[0].LocalValue, 0.01)
	assert.Equal(t, "course-basic", summary.Rows[0].Item)
	assert.InDelta(t, summary.Rows[0].LocalValue, summary.TotalCash, 1e-9)
}

func TestValuatePurchasesMissingTransactionIsFatal(t *testing.T) {
	ctx := context.Background()
	ts := day(5)

	txs := storage.NewInMemoryTransactionRepo()
	conv := converterFor(t, ts, map[string]float64{"USD": 1}, "USD")

	_, err := ValuatePurchases(ctx, txs,
		[]*models.TrackingEvent{buyEvent("b1", "a@x.com", "pay-missing", "course-basic", "", ts)}, conv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no transaction for payment pay-missing")
}

func TestValuatePurchasesMissingPrimaryOfferIsFatal(t *testing.T) {
	ctx := context.Background()
	ts := day(5)

	txs := storage.NewInMemoryTransactionRepo()
	require.NoError(t, txs.Upsert(ctx, &models.Transaction{
		TransactionID: "pay-1", UnitPrice: 50, Fee: 1, Currency: "USD",
	}))
	conv := converterFor(t, ts, map[string]float64{"USD": 1}, "USD")

	_, err := ValuatePurchases(ctx, txs,
		[]*models.TrackingEvent{buyEvent("b1", "a@x.com", "pay-1", "", "", ts)}, conv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no primary offer")
}

func TestValuatePurchasesOrderBumpRate(t *testing.T) {
	ctx := context.Background()
	ts := day(5)

	txs := storage.NewInMemoryTransactionRepo()
	for _, id := range []string{"pay-1", "pay-2", "pay-3", "pay-4"} {
		require.NoError(t, txs.Upsert(ctx, &models.Transaction{
			TransactionID: id, UnitPrice: 10, Fee: 0, Currency: "USD",
		}))
	}
	conv := converterFor(t, ts, map[string]float64{"USD": 1}, "USD")

	buys := []*models.TrackingEvent{
		buyEvent("b1", "a@x.com", "pay-1", "course", "workbook", ts),
		buyEvent("b2", "b@x.com", "pay-2", "course", "", ts),
		buyEvent("b3", "c@x.com", "pay-3", "course", "", ts),
		buyEvent("b4", "d@x.com", "pay-4", "course", "", ts),
	}

	summary, err := ValuatePurchases(ctx, txs, buys, conv)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, summary.OrderBumpConversionRate, 1e-9)
}

func TestValuatePurchasesSplitsRefunds(t *testing.T) {
	ctx := context.Background()
	ts := day(5)

	txs := storage.NewInMemoryTransactionRepo()
	require.NoError(t, txs.Upsert(ctx, &models.Transaction{
		TransactionID: "pay-1", UnitPrice: 80, Fee: 2, Currency: "USD",
	}))
	require.NoError(t, txs.Upsert(ctx, &models.Transaction{
		TransactionID: "pay-2", UnitPrice: 80, Fee: 2, Currency: "USD",
	}))
	conv := converterFor(t, ts, map[string]float64{"USD": 1}, "USD")

	kept := buyEvent("b1", "a@x.com", "pay-1", "course", "", ts)
	refunded := buyEvent("b2", "b@x.com", "pay-2", "course", "", ts)
	refunded.Metadata.PaymentStatus = models.PaymentRefunded

	summary, err := ValuatePurchases(ctx, txs, []*models.TrackingEvent{kept, refunded}, conv)
	require.NoError(t, err)

	require.Len(t, summary.Rows, 1)
	require.Len(t, summary.Refunds, 1)
	assert.Equal(t, "b2", summary.Refunds[0].Event.ID)
	assert.InDelta(t, 78, summary.TotalCash, 1e-9)
	assert.InDelta(t, 78, summary.Refunds[0].LocalValue, 1e-9)
}
