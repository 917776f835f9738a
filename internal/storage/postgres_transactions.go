package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quantleap/funnelsight/internal/models"
)

// PostgresTransactionRepo implements TransactionRepo using PostgreSQL.
type PostgresTransactionRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresTransactionRepo(pool *pgxpool.Pool) *PostgresTransactionRepo {
	return &PostgresTransactionRepo{pool: pool}
}

func (r *PostgresTransactionRepo) ByPaymentIDs(ctx context.Context, ids []string) (map[string]*models.Transaction, error) {
	result := make(map[string]*models.Transaction, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT transaction_id, unit_price, fee, currency
		FROM transactions WHERE transaction_id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.TransactionID, &t.UnitPrice, &t.Fee, &t.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result[t.TransactionID] = &t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PostgresTransactionRepo) Upsert(ctx context.Context, tx *models.Transaction) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO transactions (transaction_id, unit_price, fee, currency)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (transaction_id) DO UPDATE SET
			unit_price = EXCLUDED.unit_price,
			fee = EXCLUDED.fee,
			currency = EXCLUDED.currency
	`, tx.TransactionID, tx.UnitPrice, tx.Fee, tx.Currency)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction: %w", err)
	}
	return nil
}
