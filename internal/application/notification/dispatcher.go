// Package notification emails buyers and merchants about confirmed payments.
package notification

import (
	"context"
	"time"

	dompayment "github.com/Zhima-Mochi/paylink/internal/domain/payment"
	"github.com/Zhima-Mochi/paylink/internal/observability"
	"github.com/Zhima-Mochi/paylink/internal/observability/logctx"
)

const (
	SubjectReceipt  = "Payment Confirmation - Receipt Available"
	SubjectMerchant = "New Payment Received - Payment Notification"

	kindReceipt  = "receipt"
	kindMerchant = "merchant"

	fallbackCustomer = "Customer"
	fallbackMerchant = "Merchant"
	fallbackProduct  = "Product"
	fallbackCurrency = "XAF"
)

type Message struct {
	To      string
	Subject string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// Dispatcher sends the confirmation emails. It never fails the caller.
type Dispatcher struct {
	mailer Mailer
	log    observability.Logger
	sent   observability.Counter
	now    func() time.Time
}

func NewDispatcher(mailer Mailer, tel observability.Observability) *Dispatcher {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Dispatcher{
		mailer: mailer,
		log:    tel.Logger().With(observability.F("component", "notification")),
		sent:   tel.Metrics().Counter(observability.MNotificationsSent),
		now:    time.Now,
	}
}

// PaymentConfirmed sends the buyer receipt and the merchant notice that apply to e.
// Both need a receipt URL; each needs its recipient address.
func (d *Dispatcher) PaymentConfirmed(ctx context.Context, e dompayment.ConfirmedEvent) {
	logger := logctx.FromOr(ctx, d.log).With(observability.F("payment_id", e.PaymentID))
	if e.ReceiptURL == "" {
		logger.Info("notification_skipped", observability.F("reason", "no receipt"))
		return
	}

	v := view{
		CustomerName: orDefault(e.CustomerName, fallbackCustomer),
		MerchantName: orDefault(e.MerchantName, fallbackMerchant),
		ProductTitle: orDefault(e.ProductTitle, fallbackProduct),
		Amount:       e.Amount,
		Currency:     orDefault(e.Currency, fallbackCurrency),
		ReceiptURL:   e.ReceiptURL,
		Year:         d.now().Year(),
	}

	if e.CustomerEmail != "" {
		d.send(ctx, logger, kindReceipt, e.CustomerEmail, SubjectReceipt, templateReceipt, v)
	}
	if e.MerchantEmail != "" {
		d.send(ctx, logger, kindMerchant, e.MerchantEmail, SubjectMerchant, templateMerchant, v)
	}
}

func (d *Dispatcher) send(ctx context.Context, logger observability.Logger, kind, to, subject, tmpl string, v view) {
	outcome := "success"
	defer func() {
		d.sent.Add(1, observability.L("kind", kind), observability.L("outcome", outcome))
	}()

	html, err := render(tmpl, v)
	if err != nil {
		outcome = "error"
		logger.Error("notification_render_failed", observability.F("kind", kind), observability.F("error", err.Error()))
		return
	}

	if d.mailer == nil {
		outcome = "skipped"
		return
	}
	if err := d.mailer.Send(ctx, Message{To: to, Subject: subject, HTML: html}); err != nil {
		outcome = "error"
		logger.Warn("notification_send_failed",
			observability.F("kind", kind),
			observability.F("to", to),
			observability.F("error", err.Error()),
		)
		return
	}
	logger.Info("notification_sent", observability.F("kind", kind), observability.F("to", to))
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
