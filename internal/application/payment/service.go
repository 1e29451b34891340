package payment

import (
	"context"

	"github.com/Zhima-Mochi/paylink/internal/application"
	"github.com/Zhima-Mochi/paylink/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/paylink/internal/domain/payment"
	"github.com/Zhima-Mochi/paylink/internal/domain/product"
	"github.com/Zhima-Mochi/paylink/internal/domain/receipt"
	"github.com/Zhima-Mochi/paylink/internal/observability"
)

// Deps are the collaborators of the payment use cases. Publisher, Cache and Clock are optional.
type Deps struct {
	Products  product.Repository
	Payments  dompayment.Repository
	Receipts  receipt.Repository
	Gateway   Gateway
	Storage   ObjectStore
	Renderer  ReceiptRenderer
	Publisher outbox.Publisher
	Cache     ProductCache
	IDs       IDGenerator
	Clock     Clock
}

func (d Deps) now() Clock {
	if d.Clock == nil {
		return systemClock
	}
	return d.Clock
}

var (
	_ application.UseCase[AuthenticateInput, *AuthenticateResult] = (*AuthenticateUseCase)(nil)
	_ application.UseCase[InitiateInput, *InitiateResult]         = (*InitiateUseCase)(nil)
	_ application.UseCase[CheckStatusInput, *CheckStatusResult]   = (*CheckStatusUseCase)(nil)
	_ application.UseCase[ProductWithMerchantInput, *ProductView] = (*ProductWithMerchantUseCase)(nil)
)

// Service groups the payment use cases behind one handle for transports.
type Service struct {
	authenticate *AuthenticateUseCase
	initiate     *InitiateUseCase
	checkStatus  *CheckStatusUseCase
	product      *ProductWithMerchantUseCase
}

func NewService(d Deps, tel observability.Observability) *Service {
	in := newInstruments(tel)
	return &Service{
		authenticate: newAuthenticateUseCase(d, in),
		initiate:     newInitiateUseCase(d, in),
		checkStatus:  newCheckStatusUseCase(d, in),
		product:      newProductWithMerchantUseCase(d, in),
	}
}

func (s *Service) Authenticate(ctx context.Context, productID string) (*AuthenticateResult, error) {
	return s.authenticate.Execute(ctx, AuthenticateInput{ProductID: productID})
}

func (s *Service) Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	return s.initiate.Execute(ctx, in)
}

func (s *Service) CheckStatus(ctx context.Context, paymentID string) (*CheckStatusResult, error) {
	return s.checkStatus.Execute(ctx, CheckStatusInput{PaymentID: paymentID})
}

func (s *Service) ProductWithMerchant(ctx context.Context, productID string) (*ProductView, error) {
	return s.product.Execute(ctx, ProductWithMerchantInput{ProductID: productID})
}
