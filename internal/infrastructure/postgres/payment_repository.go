package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/paylink/internal/domain/payment"
	"github.com/Zhima-Mochi/paylink/internal/domain/product"
)

const paymentColumns = `pay.id, pay.product_id, pay.token, pay.status, pay.customer_name, pay.customer_email,
	pay.customer_phone, pay.payment_mode, pay.quantity, pay.amount, pay.external_reference,
	pay.momo_reference, pay.currency_code, pay.country_code, pay.created_at, pay.updated_at`

type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payments (id, product_id, token, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, nullable(p.ProductID), p.Token, string(p.Status), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*payment.Payment, error) {
	var pr paymentRow
	err := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments pay WHERE pay.id = $1`, id).Scan(pr.dest()...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return pr.payment(), nil
}

func (r *PaymentRepository) GetDetails(ctx context.Context, id string) (*payment.Details, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+`,
		p.id, p.merchant_id, p.title, p.description, p.image, p.price, p.currency,
		p.quantity, p.email, p.payment_link, p.is_active, p.created_at, p.updated_at, `+merchantColumns+`
		FROM payments pay
		LEFT JOIN products p ON p.id = pay.product_id
		LEFT JOIN merchants m ON m.id = p.merchant_id
		WHERE pay.id = $1`, id)

	var pay paymentRow
	var prod nullableProductRow
	var mr merchantRow
	dest := append(pay.dest(), prod.dest()...)
	if err := row.Scan(append(dest, mr.dest()...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("get payment details: %w", err)
	}
	return &payment.Details{Payment: pay.payment(), Product: prod.product(), Merchant: mr.merchant()}, nil
}

func (r *PaymentRepository) SaveCheckout(ctx context.Context, id string, c payment.Checkout) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments SET
			customer_name = $2, customer_email = $3, customer_phone = $4, payment_mode = $5,
			quantity = $6, amount = $7, currency_code = $8, country_code = $9,
			external_reference = $10, updated_at = now()
		WHERE id = $1 AND status = $11 AND external_reference IN ('', $10)`,
		id, c.Customer.Name, c.Customer.Email, c.Customer.Phone, string(c.Mode),
		c.Quantity, c.Amount, c.CurrencyCode, c.CountryCode, c.ExternalReference,
		string(payment.StatusNotInitialized))
	if err != nil {
		return fmt.Errorf("save checkout: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var status, reference string
	err = r.pool.QueryRow(ctx, `SELECT status, external_reference FROM payments WHERE id = $1`, id).
		Scan(&status, &reference)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return payment.ErrNotFound
	case err != nil:
		return fmt.Errorf("lookup payment: %w", err)
	case status != string(payment.StatusNotInitialized):
		return payment.ErrStatusChanged
	default:
		return payment.ErrCheckoutMismatch
	}
}

// TransitionStatus is a compare-and-swap on the status column.
func (r *PaymentRepository) TransitionStatus(ctx context.Context, id string, from payment.Status, update payment.StatusUpdate) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments SET
			status = $3,
			momo_reference = CASE WHEN $4 = '' THEN momo_reference ELSE $4 END,
			updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(update.Status), update.MomoReference)
	if err != nil {
		return false, fmt.Errorf("transition payment status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if err := r.exists(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *PaymentRepository) exists(ctx context.Context, id string) error {
	var one int
	err := r.pool.QueryRow(ctx, `SELECT 1 FROM payments WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return payment.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup payment: %w", err)
	}
	return nil
}

type paymentRow struct {
	ID                                       string
	ProductID                                *string
	Token, Status                            string
	CustomerName, CustomerEmail, CustomerTel string
	Mode                                     string
	Quantity                                 int
	Amount                                   decimal.Decimal
	ExternalReference, MomoReference         string
	CurrencyCode, CountryCode                string
	CreatedAt, UpdatedAt                     time.Time
}

func (r *paymentRow) dest() []any {
	return []any{&r.ID, &r.ProductID, &r.Token, &r.Status, &r.CustomerName, &r.CustomerEmail,
		&r.CustomerTel, &r.Mode, &r.Quantity, &r.Amount, &r.ExternalReference,
		&r.MomoReference, &r.CurrencyCode, &r.CountryCode, &r.CreatedAt, &r.UpdatedAt}
}

func (r *paymentRow) payment() *payment.Payment {
	return &payment.Payment{
		ID:                r.ID,
		ProductID:         deref(r.ProductID),
		Token:             r.Token,
		Status:            payment.Status(r.Status),
		Customer:          payment.Customer{Name: r.CustomerName, Email: r.CustomerEmail, Phone: r.CustomerTel},
		Mode:              payment.Mode(r.Mode),
		Quantity:          r.Quantity,
		Amount:            r.Amount,
		ExternalReference: r.ExternalReference,
		MomoReference:     r.MomoReference,
		CurrencyCode:      r.CurrencyCode,
		CountryCode:       r.CountryCode,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// nullableProductRow scans the product side of a LEFT JOIN.
type nullableProductRow struct {
	ID, MerchantID, Title, Image, Currency *string
	Description, Email, PaymentLink        *string
	Price                                  decimal.NullDecimal
	Quantity                               *int
	IsActive                               *bool
	CreatedAt, UpdatedAt                   *time.Time
}

func (r *nullableProductRow) dest() []any {
	return []any{&r.ID, &r.MerchantID, &r.Title, &r.Description, &r.Image, &r.Price, &r.Currency,
		&r.Quantity, &r.Email, &r.PaymentLink, &r.IsActive, &r.CreatedAt, &r.UpdatedAt}
}

func (r *nullableProductRow) product() *product.Product {
	if r.ID == nil {
		return nil
	}
	p := &product.Product{
		ID:          *r.ID,
		MerchantID:  deref(r.MerchantID),
		Title:       deref(r.Title),
		Description: deref(r.Description),
		Image:       deref(r.Image),
		Price:       r.Price.Decimal,
		Currency:    deref(r.Currency),
		Quantity:    product.FromPtr(r.Quantity),
		Email:       deref(r.Email),
		PaymentLink: deref(r.PaymentLink),
		IsActive:    r.IsActive != nil && *r.IsActive,
	}
	if r.CreatedAt != nil {
		p.CreatedAt = *r.CreatedAt
	}
	if r.UpdatedAt != nil {
		p.UpdatedAt = *r.UpdatedAt
	}
	return p
}
