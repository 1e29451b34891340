package payment

import (
	"context"
	"time"

	dompayment "github.com/Zhima-Mochi/paylink/internal/domain/payment"
	"github.com/Zhima-Mochi/paylink/internal/domain/product"
	"github.com/Zhima-Mochi/paylink/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseAuthenticate   = "payment.authenticate"
	authenticateSpanName  = "AuthenticatePayment"
	endpointAuthenticate  = "authenticate"
	msgAuthenticated      = "Payment authentication successful"
	msgProductUnavailable = "Product quantity is 0 or product is not active"
)

type AuthenticateInput struct {
	ProductID string
}

type AuthenticateResult struct {
	PaymentID string
	Message   string
}

// AuthenticateUseCase opens a gateway session for a product and records a fresh payment.
type AuthenticateUseCase struct {
	products product.Repository
	payments dompayment.Repository
	gateway  Gateway
	ids      IDGenerator
	now      Clock
	in       *instruments
}

func NewAuthenticateUseCase(d Deps, tel observability.Observability) *AuthenticateUseCase {
	return newAuthenticateUseCase(d, newInstruments(tel))
}

func newAuthenticateUseCase(d Deps, in *instruments) *AuthenticateUseCase {
	return &AuthenticateUseCase{
		products: d.Products,
		payments: d.Payments,
		gateway:  d.Gateway,
		ids:      d.IDs,
		now:      d.now(),
		in:       in,
	}
}

func (uc *AuthenticateUseCase) Execute(ctx context.Context, cmd AuthenticateInput) (_ *AuthenticateResult, err error) {
	ctx, r := uc.in.begin(ctx, useCaseAuthenticate, authenticateSpanName,
		[]observability.Field{observability.F("product_id", cmd.ProductID)},
		attribute.String("product.id", cmd.ProductID),
	)
	defer func() { r.end(err) }()

	prod, err := uc.products.Get(ctx, cmd.ProductID)
	if err != nil {
		r.fail("PRODUCT_LOOKUP_FAILED")
		return nil, wrapRepositoryError("load product", err)
	}
	if !prod.Available() {
		r.fail("PRODUCT_UNAVAILABLE")
		return nil, notFound(msgProductUnavailable, product.ErrUnavailable)
	}

	start := time.Now()
	session, err := uc.gateway.Authenticate(ctx)
	uc.in.external(ctx, peerGateway, endpointAuthenticate, start, err)
	if err != nil {
		r.fail("GATEWAY_AUTHENTICATE_FAILED")
		return nil, gatewayError("authentication", "Payment API credentials were rejected", err)
	}
	if session.AccessToken == "" {
		r.fail("GATEWAY_TOKEN_MISSING")
		return nil, badGateway("Invalid response from payment API: missing accessToken", nil)
	}

	p := dompayment.New(uc.ids.NewID(), prod.ID, session.AccessToken, uc.now())
	if err = uc.payments.Create(ctx, p); err != nil {
		r.fail("PAYMENT_CREATE_FAILED")
		return nil, internal("Failed to create payment", err)
	}
	r.note(observability.F("payment_id", p.ID))
	r.event("payment.created", attribute.String("payment.id", p.ID))

	return &AuthenticateResult{PaymentID: p.ID, Message: msgAuthenticated}, nil
}
