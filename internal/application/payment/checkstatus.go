package payment

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/paylink/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/paylink/internal/domain/payment"
	"github.com/Zhima-Mochi/paylink/internal/domain/product"
	"github.com/Zhima-Mochi/paylink/internal/domain/receipt"
	"github.com/Zhima-Mochi/paylink/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseCheckStatus  = "payment.check_status"
	checkStatusSpanName = "CheckPaymentStatus"
	endpointCheckStatus = "check_status"
)

type CheckStatusInput struct {
	PaymentID string
}

type CheckStatusResult struct {
	PaymentID         string
	Status            dompayment.Status
	ExternalReference string
	// ReceiptURL is empty unless the payment is confirmed and its receipt was stored.
	ReceiptURL string
}

// CheckStatusUseCase polls the gateway for an initiated payment and, on confirmation,
// runs the one-time side effects: stock decrement, receipt and notification event.
type CheckStatusUseCase struct {
	products  product.Repository
	payments  dompayment.Repository
	receipts  receipt.Repository
	gateway   Gateway
	storage   ObjectStore
	renderer  ReceiptRenderer
	publisher outbox.Publisher
	cache     ProductCache
	now       Clock
	in        *instruments
}

func NewCheckStatusUseCase(d Deps, tel observability.Observability) *CheckStatusUseCase {
	return newCheckStatusUseCase(d, newInstruments(tel))
}

func newCheckStatusUseCase(d Deps, in *instruments) *CheckStatusUseCase {
	return &CheckStatusUseCase{
		products:  d.Products,
		payments:  d.Payments,
		receipts:  d.Receipts,
		gateway:   d.Gateway,
		storage:   d.Storage,
		renderer:  d.Renderer,
		publisher: d.Publisher,
		cache:     d.Cache,
		now:       d.now(),
		in:        in,
	}
}

func (uc *CheckStatusUseCase) Execute(ctx context.Context, cmd CheckStatusInput) (_ *CheckStatusResult, err error) {
	ctx, r := uc.in.begin(ctx, useCaseCheckStatus, checkStatusSpanName,
		[]observability.Field{observability.F("payment_id", cmd.PaymentID)},
		attribute.String("payment.id", cmd.PaymentID),
	)
	defer func() { r.end(err) }()

	details, err := uc.payments.GetDetails(ctx, cmd.PaymentID)
	if err != nil {
		r.fail("PAYMENT_LOOKUP_FAILED")
		return nil, wrapRepositoryError("load payment", err)
	}
	p := details.Payment

	if err = p.CanCheck(); err != nil {
		r.fail("PAYMENT_NOT_CHECKABLE")
		r.note(observability.F("current_status", string(p.Status)))
		if errors.Is(err, dompayment.ErrMissingReference) {
			return nil, badGateway("Payment has no external reference", err)
		}
		return nil, badGateway("Payment is not ready to be checked (status: "+string(p.Status)+")", err)
	}
	if p.Token == "" {
		r.fail("TOKEN_MISSING")
		return nil, unauthorized(msgTokenMissing, dompayment.ErrMissingToken)
	}

	start := time.Now()
	resp, err := uc.gateway.CheckStatus(ctx, p.Token, p.ExternalReference)
	uc.in.external(ctx, peerGateway, endpointCheckStatus, start, err)
	if err != nil {
		r.fail("GATEWAY_CHECK_FAILED")
		return nil, gatewayError("status check", msgTokenExpired, err)
	}
	if resp.Status == "" {
		r.fail("PROVIDER_STATUS_MISSING")
		return nil, badGateway("Invalid response from payment API: missing status", nil)
	}

	status := dompayment.Status(resp.Status)
	r.note(observability.F("provider_status", resp.Status))
	result := &CheckStatusResult{
		PaymentID:         p.ID,
		Status:            status,
		ExternalReference: p.ExternalReference,
	}
	if status == p.Status {
		r.status("PENDING")
		return result, nil
	}

	won, err := uc.payments.TransitionStatus(ctx, p.ID, dompayment.StatusInitiated, dompayment.StatusUpdate{Status: status})
	if err != nil {
		r.fail("STATUS_UPDATE_FAILED")
		return nil, wrapRepositoryError("update payment status", err)
	}
	if !won {
		// Another caller moved the payment first and owns the side effects.
		r.status("ALREADY_PROCESSED")
		return uc.priorOutcome(ctx, p.ID)
	}
	p.Status = status
	p.UpdatedAt = uc.now()

	switch status.Outcome() {
	case dompayment.OutcomeSucceeded:
		r.status("CONFIRMED")
		result.ReceiptURL = uc.confirm(ctx, r, details)
		if result.ReceiptURL == "" {
			r.note(observability.F("receipt", "missing"))
		}
	case dompayment.OutcomeFailed:
		r.status("PROVIDER_DECLINED")
		publishEvent(ctx, uc.in, uc.publisher, dompayment.FailedEvent{
			PaymentID:         p.ID,
			ProductID:         p.ProductID,
			ExternalReference: p.ExternalReference,
			Status:            status,
			OccurredAt:        uc.now(),
		})
	default:
		r.status("PENDING")
	}

	return result, nil
}

// priorOutcome reports the state left behind by whichever call won the status transition.
func (uc *CheckStatusUseCase) priorOutcome(ctx context.Context, paymentID string) (*CheckStatusResult, error) {
	current, err := uc.payments.Get(ctx, paymentID)
	if err != nil {
		return nil, wrapRepositoryError("load payment", err)
	}
	result := &CheckStatusResult{
		PaymentID:         current.ID,
		Status:            current.Status,
		ExternalReference: current.ExternalReference,
	}
	if current.Status == dompayment.StatusConfirmed && uc.receipts != nil {
		if rc, rcErr := uc.receipts.GetByPayment(ctx, paymentID); rcErr == nil {
			result.ReceiptURL = rc.URL
		}
	}
	return result, nil
}
