package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/paylink/internal/domain/payment"
)

type PaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*domain.Payment
	products *ProductRepository
}

// NewPaymentRepository returns a payment store that resolves product links through products.
func NewPaymentRepository(products *ProductRepository) *PaymentRepository {
	if products == nil {
		products = NewProductRepository()
	}
	return &PaymentRepository{
		payments: make(map[string]*domain.Payment),
		products: products,
	}
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("payment repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payments[p.ID]; exists {
		return fmt.Errorf("payment repository: %s already exists", p.ID)
	}
	r.payments[p.ID] = p.Clone()
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PaymentRepository) GetDetails(ctx context.Context, id string) (*domain.Details, error) {
	p, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	d := &domain.Details{Payment: p}
	if p.ProductID == "" {
		return d, nil
	}

	r.products.mu.RLock()
	defer r.products.mu.RUnlock()
	prod, m := r.products.lookup(p.ProductID)
	d.Product = prod.Clone()
	d.Merchant = m.Clone()
	return d, nil
}

func (r *PaymentRepository) SaveCheckout(ctx context.Context, id string, c domain.Checkout) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status != domain.StatusNotInitialized {
		return domain.ErrStatusChanged
	}
	if p.ExternalReference != "" && p.ExternalReference != c.ExternalReference {
		return domain.ErrCheckoutMismatch
	}
	p.Customer = c.Customer
	p.Mode = c.Mode
	p.Quantity = c.Quantity
	p.Amount = c.Amount
	p.CurrencyCode = c.CurrencyCode
	p.CountryCode = c.CountryCode
	p.ExternalReference = c.ExternalReference
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *PaymentRepository) TransitionStatus(ctx context.Context, id string, from domain.Status, update domain.StatusUpdate) (bool, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status != from {
		return false, nil
	}
	p.Status = update.Status
	if update.MomoReference != "" {
		p.MomoReference = update.MomoReference
	}
	p.UpdatedAt = time.Now().UTC()
	return true, nil
}
