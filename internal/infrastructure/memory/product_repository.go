package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Zhima-Mochi/paylink/internal/domain/merchant"
	domain "github.com/Zhima-Mochi/paylink/internal/domain/product"
)

type ProductRepository struct {
	mu        sync.RWMutex
	products  map[string]*domain.Product
	merchants map[string]*merchant.Merchant
}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{
		products:  make(map[string]*domain.Product),
		merchants: make(map[string]*merchant.Merchant),
	}
}

// Put inserts or replaces a product.
func (r *ProductRepository) Put(p *domain.Product) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p.Clone()
}

// PutMerchant inserts or replaces a merchant.
func (r *ProductRepository) PutMerchant(m *merchant.Merchant) {
	if m == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.merchants[m.ID] = m.Clone()
}

// Delete removes a product; payments keep their dangling product id.
func (r *ProductRepository) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.products, id)
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *ProductRepository) GetWithMerchant(ctx context.Context, id string) (*domain.Product, *merchant.Merchant, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, m := r.lookup(id)
	if p == nil {
		return nil, nil, domain.ErrNotFound
	}
	return p.Clone(), m.Clone(), nil
}

func (r *ProductRepository) DecrementStock(ctx context.Context, id string, units int) (domain.StockChange, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return domain.StockChange{}, domain.ErrNotFound
	}
	if p.Quantity.IsUnlimited() {
		return domain.StockChange{Remaining: p.Quantity}, nil
	}
	if p.Quantity.Exhausted() {
		return domain.StockChange{Remaining: p.Quantity, Shortfall: max(units, 0)}, nil
	}

	rest, shortfall := p.Quantity.Take(units)
	p.Quantity = rest
	change := domain.StockChange{Applied: true, Remaining: rest, Shortfall: shortfall}
	if rest.Exhausted() {
		p.IsActive = false
		change.Deactivated = true
	}
	p.UpdatedAt = time.Now().UTC()
	return change, nil
}

// lookup returns the stored product and merchant without copying; callers hold r.mu.
func (r *ProductRepository) lookup(id string) (*domain.Product, *merchant.Merchant) {
	p, ok := r.products[id]
	if !ok {
		return nil, nil
	}
	return p, r.merchants[p.MerchantID]
}
