package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Zhima-Mochi/paylink/internal/domain/receipt"
)

type ReceiptRepository struct {
	pool *pgxpool.Pool
}

func NewReceiptRepository(pool *pgxpool.Pool) *ReceiptRepository {
	return &ReceiptRepository{pool: pool}
}

func (r *ReceiptRepository) Upsert(ctx context.Context, rc *receipt.Receipt) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO receipts (payment_id, url, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (payment_id) DO UPDATE SET url = EXCLUDED.url, updated_at = EXCLUDED.updated_at`,
		rc.PaymentID, rc.URL, rc.CreatedAt, rc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert receipt: %w", err)
	}
	return nil
}

func (r *ReceiptRepository) GetByPayment(ctx context.Context, paymentID string) (*receipt.Receipt, error) {
	var rc receipt.Receipt
	err := r.pool.QueryRow(ctx, `
		SELECT payment_id, url, created_at, updated_at FROM receipts WHERE payment_id = $1`, paymentID,
	).Scan(&rc.PaymentID, &rc.URL, &rc.CreatedAt, &rc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, receipt.ErrNotFound
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	return &rc, nil
}
