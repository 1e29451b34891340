package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/paylink/internal/domain/payment"
	"github.com/Zhima-Mochi/paylink/internal/domain/product"
	"github.com/Zhima-Mochi/paylink/internal/domain/receipt"
)

func TestPaymentRepository_TransitionStatusIsConditional(t *testing.T) {
	products := NewProductRepository()
	repo := NewPaymentRepository(products)
	ctx := context.Background()

	p := payment.New("pay-1", "p1", "tok", time.Now())
	p.Status = payment.StatusInitiated
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.TransitionStatus(ctx, "pay-1", payment.StatusInitiated, payment.StatusUpdate{Status: payment.StatusConfirmed})
			if err != nil {
				t.Errorf("TransitionStatus: %v", err)
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("winners = %d, want 1", got)
	}

	if _, err := repo.TransitionStatus(ctx, "missing", payment.StatusInitiated, payment.StatusUpdate{Status: payment.StatusConfirmed}); !errors.Is(err, payment.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPaymentRepository_SaveCheckout(t *testing.T) {
	repo := NewPaymentRepository(nil)
	ctx := context.Background()
	_ = repo.Create(ctx, payment.New("pay-1", "p1", "tok", time.Now()))

	c := payment.Checkout{
		Customer:          payment.Customer{Name: "Ada", Email: "ada@example.com"},
		Mode:              payment.ModeMOMO,
		Quantity:          2,
		Amount:            decimal.NewFromInt(200),
		ExternalReference: "ref-1",
	}
	if err := repo.SaveCheckout(ctx, "pay-1", c); err != nil {
		t.Fatalf("SaveCheckout: %v", err)
	}

	got, _ := repo.Get(ctx, "pay-1")
	if got.ExternalReference != "ref-1" || got.Quantity != 2 || !got.Amount.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("stored = %+v", got)
	}

	// A retry with the stored reference may refresh buyer fields.
	c.Customer.Name = "Ada L."
	if err := repo.SaveCheckout(ctx, "pay-1", c); err != nil {
		t.Fatalf("retry SaveCheckout: %v", err)
	}

	other := c
	other.Quantity = 5
	other.Amount = decimal.NewFromInt(500)
	other.ExternalReference = "ref-2"
	if err := repo.SaveCheckout(ctx, "pay-1", other); !errors.Is(err, payment.ErrCheckoutMismatch) {
		t.Fatalf("err = %v, want ErrCheckoutMismatch", err)
	}
	got, _ = repo.Get(ctx, "pay-1")
	if got.ExternalReference != "ref-1" || got.Quantity != 2 || got.Customer.Name != "Ada L." {
		t.Fatalf("reference overwritten: %+v", got)
	}

	_, _ = repo.TransitionStatus(ctx, "pay-1", payment.StatusNotInitialized, payment.StatusUpdate{Status: payment.StatusInitiated})
	if err := repo.SaveCheckout(ctx, "pay-1", c); !errors.Is(err, payment.ErrStatusChanged) {
		t.Fatalf("err = %v, want ErrStatusChanged", err)
	}
}

func TestPaymentRepository_GetDetails(t *testing.T) {
	products := NewProductRepository()
	seedProduct(products, "p1", product.Limited(4))
	repo := NewPaymentRepository(products)
	ctx := context.Background()

	_ = repo.Create(ctx, payment.New("pay-1", "p1", "tok", time.Now()))
	d, err := repo.GetDetails(ctx, "pay-1")
	if err != nil {
		t.Fatalf("GetDetails: %v", err)
	}
	if d.Product == nil || d.Merchant == nil {
		t.Fatalf("details not joined: %+v", d)
	}

	products.Delete("p1")
	d, err = repo.GetDetails(ctx, "pay-1")
	if err != nil {
		t.Fatalf("GetDetails after delete: %v", err)
	}
	if d.Product != nil || d.Merchant != nil {
		t.Fatal("dangling product should resolve to nil")
	}
}

func TestReceiptRepository_UpsertKeepsCreatedAt(t *testing.T) {
	repo := NewReceiptRepository()
	ctx := context.Background()
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = repo.Upsert(ctx, &receipt.Receipt{PaymentID: "pay-1", URL: "a", CreatedAt: first, UpdatedAt: first})
	_ = repo.Upsert(ctx, &receipt.Receipt{PaymentID: "pay-1", URL: "b", CreatedAt: first.Add(time.Hour), UpdatedAt: first.Add(time.Hour)})

	got, err := repo.GetByPayment(ctx, "pay-1")
	if err != nil {
		t.Fatalf("GetByPayment: %v", err)
	}
	if got.URL != "b" || !got.CreatedAt.Equal(first) || repo.Len() != 1 {
		t.Fatalf("receipt = %+v len=%d", got, repo.Len())
	}
	if _, err := repo.GetByPayment(ctx, "other"); !errors.Is(err, receipt.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
