package memory

import (
	"context"
	"sync"

	domain "github.com/Zhima-Mochi/paylink/internal/domain/receipt"
)

type ReceiptRepository struct {
	mu       sync.RWMutex
	receipts map[string]*domain.Receipt
}

func NewReceiptRepository() *ReceiptRepository {
	return &ReceiptRepository{receipts: make(map[string]*domain.Receipt)}
}

func (r *ReceiptRepository) Upsert(ctx context.Context, rc *domain.Receipt) error {
	_ = ctx
	if rc == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *rc
	if existing, ok := r.receipts[rc.PaymentID]; ok {
		clone.CreatedAt = existing.CreatedAt
	}
	r.receipts[rc.PaymentID] = &clone
	return nil
}

func (r *ReceiptRepository) GetByPayment(ctx context.Context, paymentID string) (*domain.Receipt, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	rc, ok := r.receipts[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *rc
	return &clone, nil
}

// Len reports how many receipts are stored.
func (r *ReceiptRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.receipts)
}
