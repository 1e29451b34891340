package payment

import (
	"context"

	"github.com/Zhima-Mochi/paylink/internal/domain/merchant"
	"github.com/Zhima-Mochi/paylink/internal/domain/product"
)

// StatusUpdate is written by a conditional status transition.
type StatusUpdate struct {
	Status Status
	// MomoReference is only written when non-empty.
	MomoReference string
}

// Details is a payment with its product and the product's merchant.
// Product and Merchant are nil when the link no longer resolves.
type Details struct {
	Payment  *Payment
	Product  *product.Product
	Merchant *merchant.Merchant
}

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	GetDetails(ctx context.Context, id string) (*Details, error)
	// SaveCheckout persists buyer fields while the payment is still not_initialized;
	// otherwise it returns ErrStatusChanged. The stored external reference must be empty
	// or equal to c.ExternalReference, else ErrCheckoutMismatch: a reference is written once.
	SaveCheckout(ctx context.Context, id string, c Checkout) error
	// TransitionStatus applies update only if the current status equals from.
	// It reports false, without error, when the status had already moved on.
	TransitionStatus(ctx context.Context, id string, from Status, update StatusUpdate) (bool, error)
}
