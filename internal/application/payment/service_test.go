package payment_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	apppayment "github.com/Zhima-Mochi/paylink/internal/application/payment"
	"github.com/Zhima-Mochi/paylink/internal/domain/merchant"
	domoutbox "github.com/Zhima-Mochi/paylink/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/paylink/internal/domain/payment"
	"github.com/Zhima-Mochi/paylink/internal/domain/product"
	"github.com/Zhima-Mochi/paylink/internal/infrastructure/memory"
)

type mockGateway struct {
	AuthenticateFunc func(ctx context.Context) (apppayment.Session, error)
	InitiateFunc     func(ctx context.Context, token string, req apppayment.InitiateRequest) (apppayment.InitiateResponse, error)
	CheckStatusFunc  func(ctx context.Context, token, reference string) (apppayment.StatusResponse, error)

	checks atomic.Int32
}

func (g *mockGateway) Authenticate(ctx context.Context) (apppayment.Session, error) {
	if g.AuthenticateFunc != nil {
		return g.AuthenticateFunc(ctx)
	}
	return apppayment.Session{AccessToken: "token-1", ExpiresIn: 3600}, nil
}

func (g *mockGateway) Initiate(ctx context.Context, token string, req apppayment.InitiateRequest) (apppayment.InitiateResponse, error) {
	if g.InitiateFunc != nil {
		return g.InitiateFunc(ctx, token, req)
	}
	return apppayment.InitiateResponse{ProviderStatus: "initiated", InternalPaymentID: "momo-" + req.ExternalReference}, nil
}

func (g *mockGateway) CheckStatus(ctx context.Context, token, reference string) (apppayment.StatusResponse, error) {
	g.checks.Add(1)
	if g.CheckStatusFunc != nil {
		return g.CheckStatusFunc(ctx, token, reference)
	}
	return apppayment.StatusResponse{Status: "confirmed", ExternalReference: reference}, nil
}

type sequentialIDs struct{ n atomic.Int64 }

func (s *sequentialIDs) NewID() string { return fmt.Sprintf("id-%d", s.n.Add(1)) }

type mockRenderer struct {
	RenderFunc func(d dompayment.Details) ([]byte, error)
}

func (r *mockRenderer) Render(d dompayment.Details) ([]byte, error) {
	if r.RenderFunc != nil {
		return r.RenderFunc(d)
	}
	return []byte("%PDF-receipt-" + d.Payment.ID), nil
}

type mockStore struct {
	UploadFunc func(ctx context.Context, name string, data []byte) (string, error)
}

func (s *mockStore) UploadBinary(ctx context.Context, name string, data []byte) (string, error) {
	return s.UploadFunc(ctx, name, data)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event

	onPublish func(e domoutbox.Event)
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	if p.onPublish != nil {
		p.onPublish(e)
	}
	return nil
}

func (p *recordingPublisher) named(name string) []domoutbox.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domoutbox.Event
	for _, e := range p.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

// gatedPayments lets a test hold reads and observe transitions on the wrapped repository.
type gatedPayments struct {
	*memory.PaymentRepository

	beforeGet       func()
	afterTransition func(won bool)
}

func (g *gatedPayments) Get(ctx context.Context, id string) (*dompayment.Payment, error) {
	if g.beforeGet != nil {
		g.beforeGet()
	}
	return g.PaymentRepository.Get(ctx, id)
}

func (g *gatedPayments) TransitionStatus(ctx context.Context, id string, from dompayment.Status, u dompayment.StatusUpdate) (bool, error) {
	won, err := g.PaymentRepository.TransitionStatus(ctx, id, from, u)
	if g.afterTransition != nil {
		g.afterTransition(won)
	}
	return won, err
}

// barrier returns a func that blocks until n callers have entered it.
func barrier(n int) func() {
	var wg sync.WaitGroup
	wg.Add(n)
	return func() {
		wg.Done()
		wg.Wait()
	}
}

type fixture struct {
	products  *memory.ProductRepository
	payments  *memory.PaymentRepository
	receipts  *memory.ReceiptRepository
	objects   *memory.ObjectStore
	gateway   *mockGateway
	renderer  *mockRenderer
	publisher *recordingPublisher
	deps      apppayment.Deps
}

var fixedNow = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

func newFixture(t *testing.T, stock product.Quantity, price int64) *fixture {
	t.Helper()
	products := memory.NewProductRepository()
	products.PutMerchant(&merchant.Merchant{
		ID:           "merchant-1",
		Email:        "owner@acme.test",
		BusinessName: "Acme",
		SupportEmail: "help@acme.test",
	})
	products.Put(&product.Product{
		ID:         "prod-1",
		MerchantID: "merchant-1",
		Title:      "Widget",
		Price:      decimal.NewFromInt(price),
		Currency:   "XAF",
		Quantity:   stock,
		IsActive:   true,
	})

	f := &fixture{
		products:  products,
		payments:  memory.NewPaymentRepository(products),
		receipts:  memory.NewReceiptRepository(),
		objects:   memory.NewObjectStore(),
		gateway:   &mockGateway{},
		renderer:  &mockRenderer{},
		publisher: &recordingPublisher{},
	}
	f.deps = apppayment.Deps{
		Products:  f.products,
		Payments:  f.payments,
		Receipts:  f.receipts,
		Gateway:   f.gateway,
		Storage:   f.objects,
		Renderer:  f.renderer,
		Publisher: f.publisher,
		IDs:       &sequentialIDs{},
		Clock:     func() time.Time { return fixedNow },
	}
	return f
}

func (f *fixture) service() *apppayment.Service {
	return apppayment.NewService(f.deps, nil)
}

func checkoutFor(paymentID string, quantity int) apppayment.InitiateInput {
	return apppayment.InitiateInput{
		PaymentID:    paymentID,
		PaymentMode:  dompayment.ModeMOMO,
		PhoneNumber:  "237670000000",
		Quantity:     quantity,
		FullName:     "Ada Lovelace",
		EmailAddress: "ada@example.com",
		CurrencyCode: "XAF",
		CountryCode:  "CM",
	}
}

// initiated runs authenticate and initiate and returns the payment id.
func (f *fixture) initiated(t *testing.T, svc *apppayment.Service, quantity int) string {
	t.Helper()
	ctx := context.Background()
	auth, err := svc.Authenticate(ctx, "prod-1")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := svc.Initiate(ctx, checkoutFor(auth.PaymentID, quantity)); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	return auth.PaymentID
}

func (f *fixture) stock(t *testing.T) product.Quantity {
	t.Helper()
	p, err := f.products.Get(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	return p.Quantity
}

func (f *fixture) payment(t *testing.T, id string) *dompayment.Payment {
	t.Helper()
	p, err := f.payments.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get payment: %v", err)
	}
	return p
}

func assertKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("error = %v, want kind %v", err, kind)
	}
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name      string
		productID string
		stock     product.Quantity
		inactive  bool
		gateway   func(context.Context) (apppayment.Session, error)
		wantKind  error
	}{
		{name: "unlimited stock", productID: "prod-1", stock: product.Unlimited()},
		{name: "finite stock", productID: "prod-1", stock: product.Limited(3)},
		{name: "missing product", productID: "nope", stock: product.Unlimited(), wantKind: apppayment.ErrNotFound},
		{name: "sold out", productID: "prod-1", stock: product.Limited(0), wantKind: apppayment.ErrNotFound},
		{name: "inactive", productID: "prod-1", stock: product.Unlimited(), inactive: true, wantKind: apppayment.ErrNotFound},
		{
			name: "credentials rejected", productID: "prod-1", stock: product.Unlimited(),
			gateway: func(context.Context) (apppayment.Session, error) {
				return apppayment.Session{}, fmt.Errorf("401: %w", apppayment.ErrGatewayUnauthorized)
			},
			wantKind: apppayment.ErrUnauthorized,
		},
		{
			name: "gateway down", productID: "prod-1", stock: product.Unlimited(),
			gateway: func(context.Context) (apppayment.Session, error) {
				return apppayment.Session{}, fmt.Errorf("dial: %w", apppayment.ErrGatewayFailure)
			},
			wantKind: apppayment.ErrBadGateway,
		},
		{
			name: "missing token", productID: "prod-1", stock: product.Unlimited(),
			gateway: func(context.Context) (apppayment.Session, error) {
				return apppayment.Session{}, nil
			},
			wantKind: apppayment.ErrBadGateway,
		},
		{
			name: "gateway not configured", productID: "prod-1", stock: product.Unlimited(),
			gateway: func(context.Context) (apppayment.Session, error) {
				return apppayment.Session{}, apppayment.ErrGatewayMisconfigured
			},
			wantKind: apppayment.ErrInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.stock, 1000)
			if tt.inactive {
				p, _ := f.products.Get(context.Background(), "prod-1")
				p.IsActive = false
				f.products.Put(p)
			}
			f.gateway.AuthenticateFunc = tt.gateway

			res, err := f.service().Authenticate(context.Background(), tt.productID)
			if tt.wantKind != nil {
				assertKind(t, err, tt.wantKind)
				return
			}
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			p := f.payment(t, res.PaymentID)
			if p.Status != dompayment.StatusNotInitialized || p.Token != "token-1" || p.ProductID != "prod-1" {
				t.Fatalf("payment = %+v", p)
			}
			if res.Message != "Payment authentication successful" {
				t.Fatalf("message = %q", res.Message)
			}
		})
	}
}

// Price 1000, stock 5, quantity 2: the stored amount is 2000 and confirmation leaves 3.
func TestCheckout_PricesAndDecrementsStock(t *testing.T) {
	f := newFixture(t, product.Limited(5), 1000)
	svc := f.service()
	ctx := context.Background()

	var sentAmount decimal.Decimal
	f.gateway.InitiateFunc = func(_ context.Context, token string, req apppayment.InitiateRequest) (apppayment.InitiateResponse, error) {
		if token != "token-1" || req.TransactionType != apppayment.TransactionTypePayin {
			t.Errorf("token=%q type=%q", token, req.TransactionType)
		}
		sentAmount = req.Amount
		return apppayment.InitiateResponse{ProviderStatus: "initiated", InternalPaymentID: "momo-1"}, nil
	}

	id := f.initiated(t, svc, 2)
	p := f.payment(t, id)
	if !p.Amount.Equal(decimal.NewFromInt(2000)) || !sentAmount.Equal(p.Amount) {
		t.Fatalf("amount stored=%s sent=%s, want 2000", p.Amount, sentAmount)
	}
	if p.Status != dompayment.StatusInitiated || p.MomoReference != "momo-1" || p.ExternalReference == "" {
		t.Fatalf("payment = %+v", p)
	}

	res, err := svc.CheckStatus(ctx, id)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if res.Status != dompayment.StatusConfirmed || res.ReceiptURL == "" || res.ExternalReference != p.ExternalReference {
		t.Fatalf("result = %+v", res)
	}
	if n, _ := f.stock(t).Count(); n != 3 {
		t.Fatalf("stock = %s, want 3", f.stock(t))
	}
	rc, err := f.receipts.GetByPayment(ctx, id)
	if err != nil || rc.URL != res.ReceiptURL {
		t.Fatalf("receipt = %+v, %v", rc, err)
	}

	events := f.publisher.named("payment.confirmed")
	if len(events) != 1 {
		t.Fatalf("confirmed events = %d, want 1", len(events))
	}
	evt := events[0].(dompayment.ConfirmedEvent)
	if evt.Amount != "2000.00" || evt.MerchantEmail != "help@acme.test" || evt.ReceiptURL != res.ReceiptURL || evt.ProductTitle != "Widget" {
		t.Fatalf("event = %+v", evt)
	}
}

func TestCheckout_AmountSurvivesPriceEdit(t *testing.T) {
	f := newFixture(t, product.Unlimited(), 1500)
	svc := f.service()

	var rendered decimal.Decimal
	f.renderer.RenderFunc = func(d dompayment.Details) ([]byte, error) {
		rendered = d.Payment.Amount
		return []byte("%PDF"), nil
	}

	id := f.initiated(t, svc, 2)

	p, _ := f.products.Get(context.Background(), "prod-1")
	p.Price = decimal.NewFromInt(9999)
	f.products.Put(p)

	if _, err := svc.CheckStatus(context.Background(), id); err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if !rendered.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("receipt amount = %s, want 3000", rendered)
	}
	if !f.stock(t).IsUnlimited() {
		t.Fatalf("unlimited stock changed to %s", f.stock(t))
	}
}

// Two payments for the last unit both confirm: one decrements to zero, the other cannot go negative.
func TestCheckout_LastUnitConfirmedTwice(t *testing.T) {
	f := newFixture(t, product.Limited(1), 1000)
	svc := f.service()

	first := f.initiated(t, svc, 1)
	second := f.initiated(t, svc, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.CheckStatus(context.Background(), id)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("CheckStatus[%d]: %v", i, err)
		}
	}
	p, _ := f.products.Get(context.Background(), "prod-1")
	if n, ok := p.Quantity.Count(); !ok || n != 0 {
		t.Fatalf("stock = %s, want 0", p.Quantity)
	}
	if p.IsActive {
		t.Fatal("product still active after selling out")
	}
	if f.receipts.Len() != 2 {
		t.Fatalf("receipts = %d, want 2", f.receipts.Len())
	}
}

func TestCheckStatus_SameQuantityConfirmedOnce(t *testing.T) {
	f := newFixture(t, product.Limited(10), 1000)
	svc := f.service()
	id := f.initiated(t, svc, 3)

	const callers = 8
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.CheckStatus(context.Background(), id)
			if err != nil {
				// Late callers see a confirmed payment and are turned away.
				if !errors.Is(err, apppayment.ErrBadGateway) {
					t.Errorf("CheckStatus: %v", err)
				}
				return
			}
			if res.Status != dompayment.StatusConfirmed {
				t.Errorf("status = %s", res.Status)
			}
		}()
	}
	wg.Wait()

	if n, _ := f.stock(t).Count(); n != 7 {
		t.Fatalf("stock = %s, want 7", f.stock(t))
	}
	if f.objects.Len() != 1 || f.receipts.Len() != 1 {
		t.Fatalf("objects=%d receipts=%d, want 1 each", f.objects.Len(), f.receipts.Len())
	}
	if n := len(f.publisher.named("payment.confirmed")); n != 1 {
		t.Fatalf("confirmed events = %d, want 1", n)
	}
}

func TestCheckStatus_BeforeInitiate(t *testing.T) {
	f := newFixture(t, product.Unlimited(), 1000)
	svc := f.service()

	auth, err := svc.Authenticate(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	_, err = svc.CheckStatus(context.Background(), auth.PaymentID)
	assertKind(t, err, apppayment.ErrBadGateway)
	if n := f.gateway.checks.Load(); n != 0 {
		t.Fatalf("gateway checked %d times", n)
	}
}

func TestInitiate_TokenRejectedLeavesStatus(t *testing.T) {
	f := newFixture(t, product.Unlimited(), 1000)
	svc := f.service()
	f.gateway.InitiateFunc = func(context.Context, string, apppayment.InitiateRequest) (apppayment.InitiateResponse, error) {
		return apppayment.InitiateResponse{}, fmt.Errorf("status 401: %w", apppayment.ErrGatewayUnauthorized)
	}

	auth, err := svc.Authenticate(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	_, err = svc.Initiate(context.Background(), checkoutFor(auth.PaymentID, 1))
	assertKind(t, err, apppayment.ErrUnauthorized)

	p := f.payment(t, auth.PaymentID)
	if p.Status != dompayment.StatusNotInitialized {
		t.Fatalf("status = %s, want not_initialized", p.Status)
	}
	// Buyer fields are saved before the call so a retry can reuse the reference.
	if p.ExternalReference == "" || !p.Amount.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("checkout not persisted: %+v", p)
	}

	ref := p.ExternalReference
	f.gateway.InitiateFunc = nil
	if _, err := svc.Initiate(context.Background(), checkoutFor(auth.PaymentID, 1)); err != nil {
		t.Fatalf("retry Initiate: %v", err)
	}
	if got := f.payment(t, auth.PaymentID).ExternalReference; got != ref {
		t.Fatalf("retry reference = %q, want %q", got, ref)
	}
}

func TestInitiate_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		stock    product.Quantity
		prepare  func(t *testing.T, f *fixture, id string)
		input    func(id string) apppayment.InitiateInput
		gateway  func(context.Context, string, apppayment.InitiateRequest) (apppayment.InitiateResponse, error)
		wantKind error
	}{
		{
			name:     "quantity exceeds stock",
			stock:    product.Limited(2),
			input:    func(id string) apppayment.InitiateInput { return checkoutFor(id, 3) },
			wantKind: apppayment.ErrBadGateway,
		},
		{
			name:     "quantity below one",
			stock:    product.Unlimited(),
			input:    func(id string) apppayment.InitiateInput { return checkoutFor(id, 0) },
			wantKind: apppayment.ErrBadGateway,
		},
		{
			name:     "unknown payment",
			stock:    product.Unlimited(),
			input:    func(string) apppayment.InitiateInput { return checkoutFor("missing", 1) },
			wantKind: apppayment.ErrNotFound,
		},
		{
			name:  "stock shrank after authenticate",
			stock: product.Limited(5),
			prepare: func(t *testing.T, f *fixture, _ string) {
				p, _ := f.products.Get(context.Background(), "prod-1")
				p.Quantity = product.Limited(1)
				f.products.Put(p)
			},
			input:    func(id string) apppayment.InitiateInput { return checkoutFor(id, 2) },
			wantKind: apppayment.ErrBadGateway,
		},
		{
			name:  "product deleted",
			stock: product.Unlimited(),
			prepare: func(t *testing.T, f *fixture, _ string) {
				f.products.Delete("prod-1")
			},
			input:    func(id string) apppayment.InitiateInput { return checkoutFor(id, 1) },
			wantKind: apppayment.ErrNotFound,
		},
		{
			name:  "product deactivated",
			stock: product.Unlimited(),
			prepare: func(t *testing.T, f *fixture, _ string) {
				p, _ := f.products.Get(context.Background(), "prod-1")
				p.IsActive = false
				f.products.Put(p)
			},
			input:    func(id string) apppayment.InitiateInput { return checkoutFor(id, 1) },
			wantKind: apppayment.ErrNotFound,
		},
		{
			name:  "already initiated",
			stock: product.Unlimited(),
			prepare: func(t *testing.T, f *fixture, id string) {
				if _, err := f.service().Initiate(context.Background(), checkoutFor(id, 1)); err != nil {
					t.Fatalf("first Initiate: %v", err)
				}
			},
			input:    func(id string) apppayment.InitiateInput { return checkoutFor(id, 1) },
			wantKind: apppayment.ErrBadGateway,
		},
		{
			name:  "missing provider status",
			stock: product.Unlimited(),
			input: func(id string) apppayment.InitiateInput { return checkoutFor(id, 1) },
			gateway: func(context.Context, string, apppayment.InitiateRequest) (apppayment.InitiateResponse, error) {
				return apppayment.InitiateResponse{}, nil
			},
			wantKind: apppayment.ErrBadGateway,
		},
		{
			name:  "provider error",
			stock: product.Unlimited(),
			input: func(id string) apppayment.InitiateInput { return checkoutFor(id, 1) },
			gateway: func(context.Context, string, apppayment.InitiateRequest) (apppayment.InitiateResponse, error) {
				return apppayment.InitiateResponse{}, fmt.Errorf("status 500: %w", apppayment.ErrGatewayFailure)
			},
			wantKind: apppayment.ErrBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.stock, 1000)
			svc := f.service()
			auth, err := svc.Authenticate(context.Background(), "prod-1")
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if tt.prepare != nil {
				tt.prepare(t, f, auth.PaymentID)
			}
			f.gateway.InitiateFunc = tt.gateway

			_, err = svc.Initiate(context.Background(), tt.input(auth.PaymentID))
			assertKind(t, err, tt.wantKind)
		})
	}
}

func TestCheckStatus_UploadFailureDegrades(t *testing.T) {
	f := newFixture(t, product.Limited(4), 1000)
	f.deps.Storage = &mockStore{UploadFunc: func(context.Context, string, []byte) (string, error) {
		return "", errors.New("bucket unavailable")
	}}
	svc := f.service()
	id := f.initiated(t, svc, 1)

	res, err := svc.CheckStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if res.Status != dompayment.StatusConfirmed || res.ReceiptURL != "" {
		t.Fatalf("result = %+v, want confirmed without receipt", res)
	}
	if f.receipts.Len() != 0 {
		t.Fatalf("receipts = %d, want 0", f.receipts.Len())
	}

	_, err = svc.CheckStatus(context.Background(), id)
	assertKind(t, err, apppayment.ErrBadGateway)
	if n, _ := f.stock(t).Count(); n != 3 {
		t.Fatalf("stock = %s, want a single decrement to 3", f.stock(t))
	}
	if n := len(f.publisher.named("payment.confirmed")); n != 1 {
		t.Fatalf("confirmed events = %d, want 1", n)
	}
}

func TestCheckStatus_RenderFailureDegrades(t *testing.T) {
	f := newFixture(t, product.Unlimited(), 1000)
	f.renderer.RenderFunc = func(dompayment.Details) ([]byte, error) { return nil, errors.New("font missing") }
	svc := f.service()
	id := f.initiated(t, svc, 1)

	res, err := svc.CheckStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if res.ReceiptURL != "" || f.objects.Len() != 0 {
		t.Fatalf("receipt produced despite render failure: %+v", res)
	}
}

func TestCheckStatus_Pending(t *testing.T) {
	f := newFixture(t, product.Limited(2), 1000)
	f.gateway.CheckStatusFunc = func(_ context.Context, _, ref string) (apppayment.StatusResponse, error) {
		return apppayment.StatusResponse{Status: "initiated", ExternalReference: ref}, nil
	}
	svc := f.service()
	id := f.initiated(t, svc, 1)

	for range 2 {
		res, err := svc.CheckStatus(context.Background(), id)
		if err != nil {
			t.Fatalf("CheckStatus: %v", err)
		}
		if res.Status != dompayment.StatusInitiated || res.ReceiptURL != "" {
			t.Fatalf("result = %+v", res)
		}
	}
	if n, _ := f.stock(t).Count(); n != 2 {
		t.Fatalf("stock changed to %s while pending", f.stock(t))
	}
}

func TestCheckStatus_ProviderFailure(t *testing.T) {
	f := newFixture(t, product.Limited(2), 1000)
	f.gateway.CheckStatusFunc = func(_ context.Context, _, ref string) (apppayment.StatusResponse, error) {
		return apppayment.StatusResponse{Status: "DECLINED", ExternalReference: ref}, nil
	}
	svc := f.service()
	id := f.initiated(t, svc, 1)

	res, err := svc.CheckStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if res.Status != "DECLINED" {
		t.Fatalf("status = %s", res.Status)
	}
	failed := f.publisher.named("payment.failed")
	if len(failed) != 1 || failed[0].(dompayment.FailedEvent).PaymentID != id {
		t.Fatalf("failed events = %+v", failed)
	}
	if n, _ := f.stock(t).Count(); n != 2 {
		t.Fatalf("stock = %s, want untouched 2", f.stock(t))
	}

	_, err = svc.Initiate(context.Background(), checkoutFor(id, 1))
	assertKind(t, err, apppayment.ErrBadGateway)
}

func TestCheckStatus_Errors(t *testing.T) {
	tests := []struct {
		name     string
		gateway  func(context.Context, string, string) (apppayment.StatusResponse, error)
		wantKind error
	}{
		{
			name: "token expired",
			gateway: func(context.Context, string, string) (apppayment.StatusResponse, error) {
				return apppayment.StatusResponse{}, fmt.Errorf("status 401: %w", apppayment.ErrGatewayUnauthorized)
			},
			wantKind: apppayment.ErrUnauthorized,
		},
		{
			name: "timeout",
			gateway: func(context.Context, string, string) (apppayment.StatusResponse, error) {
				return apppayment.StatusResponse{}, fmt.Errorf("%w: %w", apppayment.ErrGatewayFailure, context.DeadlineExceeded)
			},
			wantKind: apppayment.ErrBadGateway,
		},
		{
			name: "missing status",
			gateway: func(context.Context, string, string) (apppayment.StatusResponse, error) {
				return apppayment.StatusResponse{}, nil
			},
			wantKind: apppayment.ErrBadGateway,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, product.Unlimited(), 1000)
			svc := f.service()
			id := f.initiated(t, svc, 1)
			f.gateway.CheckStatusFunc = tt.gateway

			_, err := svc.CheckStatus(context.Background(), id)
			assertKind(t, err, tt.wantKind)
			if got := f.payment(t, id).Status; got != dompayment.StatusInitiated {
				t.Fatalf("status = %s, want initiated", got)
			}
		})
	}

	t.Run("unknown payment", func(t *testing.T) {
		f := newFixture(t, product.Unlimited(), 1000)
		_, err := f.service().CheckStatus(context.Background(), "missing")
		assertKind(t, err, apppayment.ErrNotFound)
	})
}

func TestCheckStatus_ProductDeletedStillConfirms(t *testing.T) {
	f := newFixture(t, product.Limited(3), 1000)
	svc := f.service()
	id := f.initiated(t, svc, 1)
	f.products.Delete("prod-1")

	res, err := svc.CheckStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if res.Status != dompayment.StatusConfirmed || res.ReceiptURL == "" {
		t.Fatalf("result = %+v", res)
	}
}

func TestCheckStatus_LostTransitionReportsWinnerReceipt(t *testing.T) {
	f := newFixture(t, product.Limited(10), 1000)
	svc := f.service()
	id := f.initiated(t, svc, 3)

	published := make(chan struct{})
	var once sync.Once
	f.publisher.onPublish = func(e domoutbox.Event) {
		if e.EventName() == "payment.confirmed" {
			once.Do(func() { close(published) })
		}
	}
	// Both callers see the provider confirm before either writes; the second
	// returns from the gateway only after the first has finished confirming.
	arrive := barrier(2)
	var calls atomic.Int32
	f.gateway.CheckStatusFunc = func(_ context.Context, _, reference string) (apppayment.StatusResponse, error) {
		n := calls.Add(1)
		arrive()
		if n == 2 {
			<-published
		}
		return apppayment.StatusResponse{Status: "confirmed", ExternalReference: reference}, nil
	}

	var wg sync.WaitGroup
	results := make([]*apppayment.CheckStatusResult, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.CheckStatus(context.Background(), id)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("CheckStatus[%d]: %v", i, err)
		}
	}
	for i, res := range results {
		if res.Status != dompayment.StatusConfirmed {
			t.Fatalf("result[%d] status = %s, want confirmed", i, res.Status)
		}
		if res.ReceiptURL == "" {
			t.Fatalf("result[%d] has no receipt url", i)
		}
	}
	if results[0].ReceiptURL != results[1].ReceiptURL {
		t.Fatalf("receipt urls differ: %q vs %q", results[0].ReceiptURL, results[1].ReceiptURL)
	}
	if n, _ := f.stock(t).Count(); n != 7 {
		t.Fatalf("stock = %s, want 7", f.stock(t))
	}
	if f.objects.Len() != 1 || f.receipts.Len() != 1 {
		t.Fatalf("objects=%d receipts=%d, want 1 each", f.objects.Len(), f.receipts.Len())
	}
	if n := len(f.publisher.named("payment.confirmed")); n != 1 {
		t.Fatalf("confirmed events = %d, want 1", n)
	}
	if n := f.gateway.checks.Load(); n != 2 {
		t.Fatalf("gateway checked %d times, want 2", n)
	}
}

func TestInitiate_ConcurrentQuantitiesCallGatewayOnce(t *testing.T) {
	f := newFixture(t, product.Limited(10), 1000)
	payments := &gatedPayments{PaymentRepository: f.payments}
	f.deps.Payments = payments
	svc := f.service()

	auth, err := svc.Authenticate(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	// Both initiates load the untouched payment before either saves its checkout.
	arrive := barrier(2)
	var gets atomic.Int32
	payments.beforeGet = func() {
		if gets.Add(1) <= 2 {
			arrive()
		}
	}
	var mu sync.Mutex
	var sent []apppayment.InitiateRequest
	f.gateway.InitiateFunc = func(_ context.Context, _ string, req apppayment.InitiateRequest) (apppayment.InitiateResponse, error) {
		mu.Lock()
		sent = append(sent, req)
		mu.Unlock()
		return apppayment.InitiateResponse{ProviderStatus: "initiated", InternalPaymentID: "momo-" + req.ExternalReference}, nil
	}

	quantities := []int{1, 5}
	errs := make([]error, len(quantities))
	var wg sync.WaitGroup
	for i, q := range quantities {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Initiate(context.Background(), checkoutFor(auth.PaymentID, q))
		}()
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			if winner >= 0 {
				t.Fatal("both initiates succeeded")
			}
			winner = i
			continue
		}
		assertKind(t, err, apppayment.ErrBadGateway)
	}
	if winner < 0 {
		t.Fatalf("no initiate succeeded: %v", errs)
	}

	if len(sent) != 1 {
		t.Fatalf("gateway initiated %d times, want 1", len(sent))
	}
	p := f.payment(t, auth.PaymentID)
	want := decimal.NewFromInt(int64(1000 * quantities[winner]))
	if p.ExternalReference != sent[0].ExternalReference {
		t.Fatalf("stored reference %q, gateway saw %q", p.ExternalReference, sent[0].ExternalReference)
	}
	if p.Quantity != quantities[winner] || !p.Amount.Equal(want) || !sent[0].Amount.Equal(want) {
		t.Fatalf("stored quantity=%d amount=%s, sent amount=%s, want %d and %s",
			p.Quantity, p.Amount, sent[0].Amount, quantities[winner], want)
	}
	if p.Status != dompayment.StatusInitiated {
		t.Fatalf("status = %s, want initiated", p.Status)
	}
}

func TestInitiate_ConcurrentRetryReportsStoredOutcome(t *testing.T) {
	f := newFixture(t, product.Unlimited(), 1000)
	payments := &gatedPayments{PaymentRepository: f.payments}
	f.deps.Payments = payments
	svc := f.service()

	f.gateway.InitiateFunc = func(context.Context, string, apppayment.InitiateRequest) (apppayment.InitiateResponse, error) {
		return apppayment.InitiateResponse{}, fmt.Errorf("status 401: %w", apppayment.ErrGatewayUnauthorized)
	}
	auth, err := svc.Authenticate(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	_, err = svc.Initiate(context.Background(), checkoutFor(auth.PaymentID, 2))
	assertKind(t, err, apppayment.ErrUnauthorized)
	ref := f.payment(t, auth.PaymentID).ExternalReference

	// Both retries reach the gateway; the second answers only after the first has
	// moved the payment, so its own transition finds the status already changed.
	transitioned := make(chan struct{})
	var once sync.Once
	payments.afterTransition = func(bool) { once.Do(func() { close(transitioned) }) }
	arrive := barrier(2)
	var calls atomic.Int32
	var mu sync.Mutex
	var refs []string
	f.gateway.InitiateFunc = func(_ context.Context, _ string, req apppayment.InitiateRequest) (apppayment.InitiateResponse, error) {
		n := calls.Add(1)
		mu.Lock()
		refs = append(refs, req.ExternalReference)
		mu.Unlock()
		arrive()
		if n == 2 {
			<-transitioned
		}
		return apppayment.InitiateResponse{ProviderStatus: "initiated", InternalPaymentID: fmt.Sprintf("momo-%d", n)}, nil
	}

	results := make([]*apppayment.InitiateResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.Initiate(context.Background(), checkoutFor(auth.PaymentID, 2))
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Initiate[%d]: %v", i, err)
		}
	}
	for _, r := range refs {
		if r != ref {
			t.Fatalf("gateway saw reference %q, want %q", r, ref)
		}
	}
	p := f.payment(t, auth.PaymentID)
	if p.Status != dompayment.StatusInitiated || p.MomoReference != "momo-1" {
		t.Fatalf("stored status=%s momo=%q, want initiated and momo-1", p.Status, p.MomoReference)
	}
	for i, res := range results {
		if res.ProviderStatus != "initiated" || res.InternalPaymentID != p.MomoReference {
			t.Fatalf("result[%d] = %+v, want the stored outcome", i, res)
		}
	}
}
