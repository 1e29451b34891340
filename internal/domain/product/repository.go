package product

import (
	"context"

	"github.com/Zhima-Mochi/paylink/internal/domain/merchant"
)

type Repository interface {
	Get(ctx context.Context, id string) (*Product, error)
	GetWithMerchant(ctx context.Context, id string) (*Product, *merchant.Merchant, error)
	// DecrementStock atomically removes units from a finite, non-exhausted stock,
	// never going below zero and deactivating the product when it reaches zero.
	DecrementStock(ctx context.Context, id string, units int) (StockChange, error)
}
