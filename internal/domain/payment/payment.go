package payment

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound         = errors.New("payment: not found")
	ErrAlreadyConfirmed = errors.New("payment: already completed")
	ErrFailed           = errors.New("payment: failed at provider, start a new payment")
	ErrAlreadyInitiated = errors.New("payment: already initiated")
	ErrNotCheckable     = errors.New("payment: not ready to be checked")
	ErrMissingReference = errors.New("payment: external reference missing")
	ErrMissingToken     = errors.New("payment: session token missing, authenticate first")
	ErrCheckoutMismatch = errors.New("payment: already initiated with a different quantity")
	ErrStatusChanged    = errors.New("payment: status changed concurrently")
)

// Mode is the mobile-money channel chosen by the buyer.
type Mode string

const (
	ModeMOMO Mode = "MOMO"
	ModeOM   Mode = "OM"
)

func (m Mode) Valid() bool { return m == ModeMOMO || m == ModeOM }

type Customer struct {
	Name  string
	Email string
	Phone string
}

type Payment struct {
	ID                string
	ProductID         string
	Token             string
	Status            Status
	Customer          Customer
	Mode              Mode
	Quantity          int
	Amount            decimal.Decimal
	ExternalReference string
	MomoReference     string
	CurrencyCode      string
	CountryCode       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// New creates a payment right after a successful gateway authentication.
func New(id, productID, token string, now time.Time) *Payment {
	return &Payment{
		ID:        id,
		ProductID: productID,
		Token:     token,
		Status:    StatusNotInitialized,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanInitiate checks the status preconditions of an initiate call.
func (p *Payment) CanInitiate() error {
	switch {
	case p.Status == StatusConfirmed:
		return ErrAlreadyConfirmed
	case p.Status.Outcome() == OutcomeFailed:
		return ErrFailed
	case p.Status != StatusNotInitialized:
		return ErrAlreadyInitiated
	}
	return nil
}

// CanCheck checks the preconditions of a status check. Only an initiated payment
// may be checked; this keeps confirmation side effects to a single pass.
func (p *Payment) CanCheck() error {
	if p.Status != StatusInitiated {
		return ErrNotCheckable
	}
	if p.ExternalReference == "" {
		return ErrMissingReference
	}
	return nil
}

// Checkout holds the buyer-supplied fields persisted before the gateway initiate call.
type Checkout struct {
	Customer          Customer
	Mode              Mode
	Quantity          int
	Amount            decimal.Decimal
	CurrencyCode      string
	CountryCode       string
	ExternalReference string
}

// ApplyCheckout records the checkout on the payment. Amount and reference are
// written once; a retry keeps them and must request the same quantity.
func (p *Payment) ApplyCheckout(c Checkout) (Checkout, error) {
	if p.ExternalReference != "" {
		if c.Quantity != p.Quantity {
			return Checkout{}, ErrCheckoutMismatch
		}
		c.Amount = p.Amount
		c.ExternalReference = p.ExternalReference
	}
	p.Customer = c.Customer
	p.Mode = c.Mode
	p.Quantity = c.Quantity
	p.Amount = c.Amount
	p.CurrencyCode = c.CurrencyCode
	p.CountryCode = c.CountryCode
	p.ExternalReference = c.ExternalReference
	return c, nil
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
