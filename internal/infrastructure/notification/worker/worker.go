package worker

import (
	"context"

	"github.com/Zhima-Mochi/paylink/internal/application/notification"
	domoutbox "github.com/Zhima-Mochi/paylink/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/paylink/internal/domain/payment"
	"github.com/Zhima-Mochi/paylink/internal/observability"
	"github.com/Zhima-Mochi/paylink/internal/observability/logctx"
	workerpresentation "github.com/Zhima-Mochi/paylink/internal/presentation/worker"
)

// Worker turns payment events into buyer and merchant emails.
type Worker struct {
	subscriber domoutbox.Subscriber
	dispatcher *notification.Dispatcher
	tel        observability.Observability
}

func New(subscriber domoutbox.Subscriber, dispatcher *notification.Dispatcher, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		subscriber: subscriber,
		dispatcher: dispatcher,
		tel:        tel,
	}
}

func (w *Worker) Start() {
	w.subscriber.Subscribe(dompayment.ConfirmedEvent{}.EventName(), w.handlePaymentConfirmed)
	w.subscriber.Subscribe(dompayment.FailedEvent{}.EventName(), w.handlePaymentFailed)
}

func (w *Worker) handlePaymentConfirmed(ctx context.Context, e domoutbox.Event) error {
	evt, ok := asConfirmed(e)
	if !ok {
		return nil
	}

	ctx = w.eventContext(ctx, evt.EventName(), evt.PaymentID)
	w.dispatcher.PaymentConfirmed(ctx, evt)
	return nil
}

func (w *Worker) handlePaymentFailed(ctx context.Context, e domoutbox.Event) error {
	evt, ok := asFailed(e)
	if !ok {
		return nil
	}

	ctx = w.eventContext(ctx, evt.EventName(), evt.PaymentID)
	logctx.FromOr(ctx, w.tel.Logger()).Info("payment_failed_observed",
		observability.F("status", string(evt.Status)),
		observability.F("external_reference", evt.ExternalReference),
	)
	return nil
}

func (w *Worker) eventContext(ctx context.Context, name, paymentID string) context.Context {
	return workerpresentation.WithEventContext(ctx, logctx.From(ctx), w.tel, workerpresentation.Delivery{
		Event: name,
		Attrs: map[string]string{
			"component":  "notification_worker",
			"payment_id": paymentID,
		},
	})
}

func asConfirmed(e domoutbox.Event) (dompayment.ConfirmedEvent, bool) {
	switch evt := e.(type) {
	case dompayment.ConfirmedEvent:
		return evt, true
	case *dompayment.ConfirmedEvent:
		if evt != nil {
			return *evt, true
		}
	}
	return dompayment.ConfirmedEvent{}, false
}

func asFailed(e domoutbox.Event) (dompayment.FailedEvent, bool) {
	switch evt := e.(type) {
	case dompayment.FailedEvent:
		return evt, true
	case *dompayment.FailedEvent:
		if evt != nil {
			return *evt, true
		}
	}
	return dompayment.FailedEvent{}, false
}
