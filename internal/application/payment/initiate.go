package payment

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/paylink/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/paylink/internal/domain/payment"
	"github.com/Zhima-Mochi/paylink/internal/domain/product"
	"github.com/Zhima-Mochi/paylink/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseInitiate   = "payment.initiate"
	initiateSpanName  = "InitiatePayment"
	endpointInitiate  = "initiate"
	msgInitiated      = "Payment initialized successfully"
	msgTokenExpired   = "Payment token has expired. Please authenticate payment again."
	msgTokenMissing   = "Payment token not found. Please authenticate payment first."
	msgQuantityExceed = "Quantity is greater than product quantity"
)

type InitiateInput struct {
	PaymentID    string
	PaymentMode  dompayment.Mode
	PhoneNumber  string
	Quantity     int
	FullName     string
	EmailAddress string
	CurrencyCode string
	CountryCode  string
}

type InitiateResult struct {
	PaymentID         string
	Message           string
	ProviderStatus    string
	InternalPaymentID string
}

// InitiateUseCase prices the checkout, persists it and asks the gateway to start collecting.
type InitiateUseCase struct {
	products  product.Repository
	payments  dompayment.Repository
	gateway   Gateway
	publisher outbox.Publisher
	ids       IDGenerator
	now       Clock
	in        *instruments
}

func NewInitiateUseCase(d Deps, tel observability.Observability) *InitiateUseCase {
	return newInitiateUseCase(d, newInstruments(tel))
}

func newInitiateUseCase(d Deps, in *instruments) *InitiateUseCase {
	return &InitiateUseCase{
		products:  d.Products,
		payments:  d.Payments,
		gateway:   d.Gateway,
		publisher: d.Publisher,
		ids:       d.IDs,
		now:       d.now(),
		in:        in,
	}
}

func (uc *InitiateUseCase) Execute(ctx context.Context, cmd InitiateInput) (_ *InitiateResult, err error) {
	ctx, r := uc.in.begin(ctx, useCaseInitiate, initiateSpanName,
		[]observability.Field{
			observability.F("payment_id", cmd.PaymentID),
			observability.F("quantity", cmd.Quantity),
		},
		attribute.String("payment.id", cmd.PaymentID),
		attribute.Int("payment.quantity", cmd.Quantity),
	)
	defer func() { r.end(err) }()

	p, err := uc.payments.Get(ctx, cmd.PaymentID)
	if err != nil {
		r.fail("PAYMENT_LOOKUP_FAILED")
		return nil, wrapRepositoryError("load payment", err)
	}
	if err = p.CanInitiate(); err != nil {
		r.fail("PAYMENT_NOT_INITIABLE")
		if errors.Is(err, dompayment.ErrAlreadyConfirmed) {
			return nil, badGateway("Payment has already been completed", err)
		}
		return nil, badGateway("Payment cannot be initiated", err)
	}

	if p.ProductID == "" {
		r.fail("PRODUCT_UNLINKED")
		return nil, notFound("Product not found", product.ErrNotFound)
	}
	prod, err := uc.products.Get(ctx, p.ProductID)
	if err != nil {
		r.fail("PRODUCT_LOOKUP_FAILED")
		return nil, wrapRepositoryError("load product", err)
	}
	if !prod.Available() {
		r.fail("PRODUCT_UNAVAILABLE")
		return nil, notFound(msgProductUnavailable, product.ErrUnavailable)
	}
	if p.Token == "" {
		r.fail("TOKEN_MISSING")
		return nil, unauthorized(msgTokenMissing, dompayment.ErrMissingToken)
	}
	if cmd.Quantity < 1 {
		r.fail("QUANTITY_INVALID")
		return nil, badGateway("Quantity must be at least 1", nil)
	}
	if !prod.Quantity.Covers(cmd.Quantity) {
		r.fail("QUANTITY_EXCEEDS_STOCK")
		r.note(observability.F("stock", prod.Quantity.String()))
		return nil, badGateway(msgQuantityExceed, nil)
	}

	checkout, err := p.ApplyCheckout(dompayment.Checkout{
		Customer: dompayment.Customer{
			Name:  cmd.FullName,
			Email: cmd.EmailAddress,
			Phone: cmd.PhoneNumber,
		},
		Mode:              cmd.PaymentMode,
		Quantity:          cmd.Quantity,
		Amount:            prod.PriceFor(cmd.Quantity),
		CurrencyCode:      cmd.CurrencyCode,
		CountryCode:       cmd.CountryCode,
		ExternalReference: uc.ids.NewID(),
	})
	if err != nil {
		r.fail("CHECKOUT_MISMATCH")
		return nil, badGateway("Payment was already initiated with a different quantity", err)
	}
	r.note(
		observability.F("external_reference", checkout.ExternalReference),
		observability.F("amount", checkout.Amount.String()),
	)

	// Persist before calling out so an interrupted call leaves a recoverable record.
	if err = uc.payments.SaveCheckout(ctx, p.ID, checkout); err != nil {
		r.fail("CHECKOUT_SAVE_FAILED")
		if errors.Is(err, dompayment.ErrStatusChanged) {
			return nil, badGateway("Payment cannot be initiated", dompayment.ErrAlreadyInitiated)
		}
		if errors.Is(err, dompayment.ErrCheckoutMismatch) {
			// A concurrent initiate stored its reference first and owns the gateway call.
			return nil, badGateway("Payment is already being initiated", err)
		}
		return nil, wrapRepositoryError("save checkout", err)
	}

	start := time.Now()
	resp, err := uc.gateway.Initiate(ctx, p.Token, InitiateRequest{
		PaymentMode:       string(checkout.Mode),
		PhoneNumber:       checkout.Customer.Phone,
		TransactionType:   TransactionTypePayin,
		Amount:            checkout.Amount,
		FullName:          checkout.Customer.Name,
		EmailAddress:      checkout.Customer.Email,
		CurrencyCode:      checkout.CurrencyCode,
		CountryCode:       checkout.CountryCode,
		ExternalReference: checkout.ExternalReference,
	})
	uc.in.external(ctx, peerGateway, endpointInitiate, start, err)
	if err != nil {
		r.fail("GATEWAY_INITIATE_FAILED")
		return nil, gatewayError("initiation", msgTokenExpired, err)
	}
	if resp.ProviderStatus == "" {
		r.fail("PROVIDER_STATUS_MISSING")
		return nil, badGateway("Invalid response from payment API: missing providerStatus", nil)
	}

	status := dompayment.Status(resp.ProviderStatus)
	r.note(observability.F("provider_status", resp.ProviderStatus))
	won, err := uc.payments.TransitionStatus(ctx, p.ID, dompayment.StatusNotInitialized, dompayment.StatusUpdate{
		Status:        status,
		MomoReference: resp.InternalPaymentID,
	})
	if err != nil {
		r.fail("STATUS_UPDATE_FAILED")
		return nil, wrapRepositoryError("update payment status", err)
	}
	if !won {
		current, getErr := uc.payments.Get(ctx, p.ID)
		if getErr != nil {
			r.fail("PAYMENT_RELOAD_FAILED")
			return nil, wrapRepositoryError("load payment", getErr)
		}
		r.status("ALREADY_PROCESSED")
		return &InitiateResult{
			PaymentID:         current.ID,
			Message:           msgInitiated,
			ProviderStatus:    string(current.Status),
			InternalPaymentID: current.MomoReference,
		}, nil
	}

	if status.Outcome() == dompayment.OutcomeFailed {
		r.status("PROVIDER_DECLINED")
		publishEvent(ctx, uc.in, uc.publisher, dompayment.FailedEvent{
			PaymentID:         p.ID,
			ProductID:         p.ProductID,
			ExternalReference: checkout.ExternalReference,
			Status:            status,
			OccurredAt:        uc.now(),
		})
	}

	return &InitiateResult{
		PaymentID:         p.ID,
		Message:           msgInitiated,
		ProviderStatus:    resp.ProviderStatus,
		InternalPaymentID: resp.InternalPaymentID,
	}, nil
}
