package report

import (
	"context"
	"fmt"

	"github.com/quantleap/funnelsight/internal/models"
	"github.com/quantleap/funnelsight/internal/storage"
)

// PurchaseSummary is the valuated purchase set for a report range.
type PurchaseSummary struct {
	// Rows are completed purchases with their net value converted to
	// the report base currency.
	Rows []models.PurchaseRow

	// Refunds are buy events whose payment was refunded; they carry
	// the refunded net value, converted.
	Refunds []models.PurchaseRow

	// OrderBumpConversionRate is purchases that took the secondary
	// offer over purchases with a primary offer.
	OrderBumpConversionRate float64

	// TotalCash is the sum of Rows' local values.
	TotalCash float64
}

// ValuatePurchases joins each in-range buy event to its
// payment-processor transaction and computes net values in the report
// base currency. A buy event without a resolvable transaction or
// without a primary offer slug is a data-integrity violation and
// aborts the report.
func ValuatePurchases(ctx context.Context, txRepo storage.TransactionRepo, buys []*models.TrackingEvent, conv *Converter) (*PurchaseSummary, error) {
	paymentIDs := make([]string, 0, len(buys))
	for _, ev := range buys {
		if ev.Metadata.PaymentID == "" {
			return nil, fmt.Errorf("buy event %s has no payment_id", ev.ID)
		}
		paymentIDs = append(paymentIDs, ev.Metadata.PaymentID)
	}

	txs, err := txRepo.ByPaymentIDs(ctx, paymentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	summary := &PurchaseSummary{}
	primaryCount := 0
	secondaryCount := 0

	for _, ev := range buys {
		tx, ok := txs[ev.Metadata.PaymentID]
		if !ok {
			return nil, fmt.Errorf("buy event %s has no transaction for payment %s", ev.ID, ev.Metadata.PaymentID)
		}

		if ev.Metadata.PrimaryOffer == "" {
			return nil, fmt.Errorf("buy event %s has no primary offer slug", ev.ID)
		}

		local, err := conv.Convert(models.DayKeyFor(ev.Timestamp), tx.Net(), tx.Currency)
		if err != nil {
			return nil, fmt.Errorf("failed to valuate purchase %s: %w", ev.ID, err)
		}

		row := models.PurchaseRow{
			Event:       *ev,
			Transaction: *tx,
			LocalValue:  local,
			Item:        ev.Metadata.PrimaryOffer,
		}

		switch ev.Metadata.PaymentStatus {
		case models.PaymentRefunded, models.PaymentPartiallyRefunded:
			summary.Refunds = append(summary.Refunds, row)
			continue
		}

		primaryCount++
		if ev.Metadata.SecondaryOffer != "" {
			secondaryCount++
		}

		summary.Rows = append(summary.Rows, row)
		summary.TotalCash += local
	}

	if primaryCount > 0 {
		summary.OrderBumpConversionRate = float64(secondaryCount) / float64(primaryCount)
	}

	return summary, nil
}
