package payment

import (
	"context"
	"time"

	dompayment "github.com/Zhima-Mochi/paylink/internal/domain/payment"
)

type IDGenerator interface {
	NewID() string
}

// ObjectStore keeps rendered receipts and returns their public URL.
type ObjectStore interface {
	UploadBinary(ctx context.Context, name string, data []byte) (string, error)
}

// ReceiptRenderer turns a confirmed payment snapshot into a document.
type ReceiptRenderer interface {
	Render(d dompayment.Details) ([]byte, error)
}

// ProductCache stores product views for the public product page.
type ProductCache interface {
	Get(ctx context.Context, productID string) (*ProductView, bool, error)
	Set(ctx context.Context, productID string, v *ProductView) error
	Invalidate(ctx context.Context, productID string) error
}

type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }
