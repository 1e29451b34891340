package payment

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/paylink/internal/domain/merchant"
	"github.com/Zhima-Mochi/paylink/internal/domain/product"
	"github.com/Zhima-Mochi/paylink/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseProductWithMerchant = "payment.product_with_merchant"
	productSpanName            = "GetProductWithMerchant"
)

type ProductWithMerchantInput struct {
	ProductID string
}

// ProductView is the public payment page payload.
type ProductView struct {
	Product  ProductData  `json:"product"`
	Merchant MerchantData `json:"merchant"`
}

type ProductData struct {
	ID          string          `json:"id"`
	MerchantID  string          `json:"merchantId"`
	Image       string          `json:"image"`
	Title       string          `json:"title"`
	Description *string         `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Quantity    *int            `json:"quantity"`
	Email       *string         `json:"email"`
	PaymentLink *string         `json:"paymentLink"`
	IsActive    bool            `json:"isActive"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type MerchantData struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	PhoneNumber  string    `json:"phoneNumber"`
	BusinessName string    `json:"businessName"`
	SupportEmail *string   `json:"supportEmail"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ProductWithMerchantUseCase serves the product behind a payment link, read through the cache.
type ProductWithMerchantUseCase struct {
	products product.Repository
	cache    ProductCache
	in       *instruments
}

func NewProductWithMerchantUseCase(d Deps, tel observability.Observability) *ProductWithMerchantUseCase {
	return newProductWithMerchantUseCase(d, newInstruments(tel))
}

func newProductWithMerchantUseCase(d Deps, in *instruments) *ProductWithMerchantUseCase {
	return &ProductWithMerchantUseCase{products: d.Products, cache: d.Cache, in: in}
}

func (uc *ProductWithMerchantUseCase) Execute(ctx context.Context, cmd ProductWithMerchantInput) (_ *ProductView, err error) {
	ctx, r := uc.in.begin(ctx, useCaseProductWithMerchant, productSpanName,
		[]observability.Field{observability.F("product_id", cmd.ProductID)},
		attribute.String("product.id", cmd.ProductID),
	)
	defer func() { r.end(err) }()

	if uc.cache != nil {
		start := time.Now()
		view, ok, cacheErr := uc.cache.Get(ctx, cmd.ProductID)
		uc.in.external(ctx, peerCache, "get", start, cacheErr)
		if cacheErr != nil {
			r.note(observability.F("cache_error", cacheErr.Error()))
		}
		if ok {
			r.status("CACHE_HIT")
			return view, nil
		}
	}

	prod, m, err := uc.products.GetWithMerchant(ctx, cmd.ProductID)
	if err != nil {
		r.fail("PRODUCT_LOOKUP_FAILED")
		return nil, wrapRepositoryError("load product", err)
	}
	if m == nil {
		r.fail("MERCHANT_MISSING")
		return nil, notFound("Merchant not found", merchant.ErrNotFound)
	}

	view := NewProductView(prod, m)
	if uc.cache != nil {
		start := time.Now()
		setErr := uc.cache.Set(ctx, cmd.ProductID, view)
		uc.in.external(ctx, peerCache, "set", start, setErr)
		if setErr != nil {
			r.note(observability.F("cache_error", setErr.Error()))
		}
	}
	return view, nil
}

func NewProductView(p *product.Product, m *merchant.Merchant) *ProductView {
	return &ProductView{
		Product: ProductData{
			ID:          p.ID,
			MerchantID:  p.MerchantID,
			Image:       p.Image,
			Title:       p.Title,
			Description: optional(p.Description),
			Price:       p.Price,
			Currency:    p.Currency,
			Quantity:    p.Quantity.Ptr(),
			Email:       optional(p.Email),
			PaymentLink: optional(p.PaymentLink),
			IsActive:    p.IsActive,
			CreatedAt:   p.CreatedAt,
			UpdatedAt:   p.UpdatedAt,
		},
		Merchant: MerchantData{
			ID:           m.ID,
			Email:        m.Email,
			FirstName:    m.FirstName,
			LastName:     m.LastName,
			PhoneNumber:  m.PhoneNumber,
			BusinessName: m.BusinessName,
			SupportEmail: optional(m.SupportEmail),
			Role:         m.Role,
			CreatedAt:    m.CreatedAt,
			UpdatedAt:    m.UpdatedAt,
		},
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
