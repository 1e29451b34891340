package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Gateway failures. Adapters wrap transport and provider errors so that they match one of these.
var (
	ErrGatewayUnauthorized  = errors.New("gateway: unauthorized")
	ErrGatewayFailure       = errors.New("gateway: request failed")
	ErrGatewayMisconfigured = errors.New("gateway: configuration is missing")
)

const TransactionTypePayin = "payin"

type Session struct {
	AccessToken string
	ExpiresIn   int64
}

type InitiateRequest struct {
	PaymentMode       string
	PhoneNumber       string
	TransactionType   string
	Amount            decimal.Decimal
	FullName          string
	EmailAddress      string
	CurrencyCode      string
	CountryCode       string
	ExternalReference string
}

type InitiateResponse struct {
	ProviderStatus    string
	InternalPaymentID string
	ProviderChannel   string
	PaymentProvider   string
	ProviderMessage   string
}

type StatusResponse struct {
	Status            string
	ExternalReference string
	InternalPaymentID string
	Amount            string
	Fees              string
}

// Gateway is the mobile-money provider.
type Gateway interface {
	Authenticate(ctx context.Context) (Session, error)
	Initiate(ctx context.Context, token string, req InitiateRequest) (InitiateResponse, error)
	CheckStatus(ctx context.Context, token, reference string) (StatusResponse, error)
}
