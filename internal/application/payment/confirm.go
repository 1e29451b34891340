package payment

import (
	"context"
	"fmt"
	"time"

	dompayment "github.com/Zhima-Mochi/paylink/internal/domain/payment"
	"github.com/Zhima-Mochi/paylink/internal/domain/receipt"
	"github.com/Zhima-Mochi/paylink/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	endpointUploadReceipt = "upload_receipt"
	defaultCurrency       = "XAF"
)

// confirm runs the side effects of a confirmed payment. Only the caller that won the
// initiated -> confirmed transition gets here. Each step degrades on failure instead
// of failing the call; the returned receipt URL is empty when no receipt was stored.
func (uc *CheckStatusUseCase) confirm(ctx context.Context, r *run, d *dompayment.Details) string {
	p := d.Payment
	logger := r.logger

	if d.Product != nil {
		change, err := uc.products.DecrementStock(ctx, d.Product.ID, p.Quantity)
		switch {
		case err != nil:
			logger.Error("inventory_decrement_failed",
				observability.F("product_id", d.Product.ID),
				observability.F("quantity", p.Quantity),
				observability.F("error", err.Error()),
			)
		case change.Applied:
			d.Product.Quantity = change.Remaining
			if change.Deactivated {
				d.Product.IsActive = false
			}
			r.event("inventory.decremented",
				attribute.String("product.id", d.Product.ID),
				attribute.String("product.remaining", change.Remaining.String()),
			)
			uc.invalidateProduct(ctx, d.Product.ID)
		}
		if change.Shortfall > 0 {
			uc.in.shortfall.Add(float64(change.Shortfall), observability.L("product_id", d.Product.ID))
			logger.Warn("inventory_shortfall",
				observability.F("product_id", d.Product.ID),
				observability.F("quantity", p.Quantity),
				observability.F("shortfall", change.Shortfall),
			)
		}
	}

	receiptURL := uc.issueReceipt(ctx, r, d)
	publishEvent(ctx, uc.in, uc.publisher, confirmedEvent(d, receiptURL, uc.now()))
	return receiptURL
}

func (uc *CheckStatusUseCase) issueReceipt(ctx context.Context, r *run, d *dompayment.Details) string {
	p := d.Payment
	logger := r.logger
	if uc.renderer == nil || uc.storage == nil || uc.receipts == nil {
		logger.Warn("receipt_skipped", observability.F("reason", "receipt pipeline not configured"))
		return ""
	}

	doc, err := uc.renderer.Render(*d)
	if err != nil {
		logger.Warn("receipt_render_failed", observability.F("error", err.Error()))
		return ""
	}

	now := uc.now()
	name := fmt.Sprintf("receipt-%s-%d", p.ID, now.UnixMilli())
	start := time.Now()
	url, err := uc.storage.UploadBinary(ctx, name, doc)
	uc.in.external(ctx, peerObjectStore, endpointUploadReceipt, start, err)
	if err != nil {
		logger.Warn("receipt_upload_failed",
			observability.F("name", name),
			observability.F("error", err.Error()),
		)
		return ""
	}

	if err := uc.receipts.Upsert(ctx, &receipt.Receipt{
		PaymentID: p.ID,
		URL:       url,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		logger.Warn("receipt_save_failed", observability.F("error", err.Error()))
		return ""
	}
	r.event("receipt.issued", attribute.String("receipt.url", url))
	return url
}

func (uc *CheckStatusUseCase) invalidateProduct(ctx context.Context, productID string) {
	if uc.cache == nil {
		return
	}
	start := time.Now()
	err := uc.cache.Invalidate(ctx, productID)
	uc.in.external(ctx, peerCache, "invalidate", start, err)
	if err != nil {
		uc.in.log.Warn("product_cache_invalidate_failed",
			observability.F("product_id", productID),
			observability.F("error", err.Error()),
		)
	}
}

func confirmedEvent(d *dompayment.Details, receiptURL string, at time.Time) dompayment.ConfirmedEvent {
	p := d.Payment
	e := dompayment.ConfirmedEvent{
		PaymentID:         p.ID,
		ProductID:         p.ProductID,
		ExternalReference: p.ExternalReference,
		ReceiptURL:        receiptURL,
		CustomerName:      p.Customer.Name,
		CustomerEmail:     p.Customer.Email,
		Amount:            p.Amount.StringFixed(2),
		Currency:          p.CurrencyCode,
		OccurredAt:        at,
	}
	if d.Product != nil {
		e.ProductTitle = d.Product.Title
		if e.Currency == "" {
			e.Currency = d.Product.Currency
		}
	}
	if d.Merchant != nil {
		e.MerchantName = d.Merchant.BusinessName
		e.MerchantEmail = d.Merchant.ContactEmail()
	}
	if e.Currency == "" {
		e.Currency = defaultCurrency
	}
	return e
}
