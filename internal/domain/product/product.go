package product

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound    = errors.New("product: not found")
	ErrUnavailable = errors.New("product: unavailable")
)

type Product struct {
	ID          string
	MerchantID  string
	Title       string
	Description string
	Image       string
	Price       decimal.Decimal
	Currency    string
	Quantity    Quantity
	Email       string
	PaymentLink string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Available reports whether the product can be sold: it must be active and
// not out of stock. An exhausted product is unavailable even if still flagged active.
func (p *Product) Available() bool {
	return p != nil && p.IsActive && !p.Quantity.Exhausted()
}

// PriceFor returns price x units.
func (p *Product) PriceFor(units int) decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(units)))
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// StockChange is the outcome of a conditional stock decrement.
type StockChange struct {
	// Applied is false when the stock was unlimited or already exhausted.
	Applied   bool
	Remaining Quantity
	// Shortfall counts units confirmed beyond what was left.
	Shortfall int
	// Deactivated is true when this change brought the stock to zero.
	Deactivated bool
}
