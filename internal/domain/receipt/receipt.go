package receipt

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("receipt: not found")

// Receipt points at the rendered artifact of a confirmed payment; one per payment.
type Receipt struct {
	PaymentID string
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Repository interface {
	// Upsert creates or replaces the receipt of r.PaymentID.
	Upsert(ctx context.Context, r *Receipt) error
	GetByPayment(ctx context.Context, paymentID string) (*Receipt, error)
}
