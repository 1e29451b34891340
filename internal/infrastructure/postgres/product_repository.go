package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/paylink/internal/domain/merchant"
	"github.com/Zhima-Mochi/paylink/internal/domain/product"
)

const productColumns = `p.id, p.merchant_id, p.title, p.description, p.image, p.price, p.currency,
	p.quantity, p.email, p.payment_link, p.is_active, p.created_at, p.updated_at`

const merchantColumns = `m.id, m.email, m.first_name, m.last_name, m.phone_number,
	m.business_name, m.support_email, m.role, m.created_at, m.updated_at`

type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*product.Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = $1`, id)
	var pr productRow
	if err := row.Scan(pr.dest()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return pr.product(), nil
}

func (r *ProductRepository) GetWithMerchant(ctx context.Context, id string) (*product.Product, *merchant.Merchant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+`, `+merchantColumns+`
		FROM products p LEFT JOIN merchants m ON m.id = p.merchant_id
		WHERE p.id = $1`, id)

	var pr productRow
	var mr merchantRow
	if err := row.Scan(append(pr.dest(), mr.dest()...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, product.ErrNotFound
		}
		return nil, nil, fmt.Errorf("get product with merchant: %w", err)
	}
	return pr.product(), mr.merchant(), nil
}

// DecrementStock subtracts units in one conditional UPDATE. The row lock taken by the
// CTE serialises concurrent confirmations of the same product.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, units int) (product.StockChange, error) {
	var before, after int
	err := r.pool.QueryRow(ctx, `
		WITH prev AS (
			SELECT id, quantity FROM products WHERE id = $1 FOR UPDATE
		)
		UPDATE products p
		SET quantity   = GREATEST(prev.quantity - $2, 0),
		    is_active  = CASE WHEN prev.quantity - $2 <= 0 THEN FALSE ELSE p.is_active END,
		    updated_at = now()
		FROM prev
		WHERE p.id = prev.id AND prev.quantity IS NOT NULL AND prev.quantity > 0
		RETURNING prev.quantity, p.quantity`, id, units).Scan(&before, &after)

	if err == nil {
		change := product.StockChange{Applied: true, Remaining: product.Limited(after)}
		if units > before {
			change.Shortfall = units - before
		}
		change.Deactivated = after == 0
		return change, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return product.StockChange{}, fmt.Errorf("decrement stock: %w", err)
	}

	// Nothing updated: the product is missing, unlimited or already exhausted.
	var qty *int
	if err := r.pool.QueryRow(ctx, `SELECT quantity FROM products WHERE id = $1`, id).Scan(&qty); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.StockChange{}, product.ErrNotFound
		}
		return product.StockChange{}, fmt.Errorf("read stock: %w", err)
	}
	change := product.StockChange{Remaining: product.FromPtr(qty)}
	if change.Remaining.Exhausted() {
		change.Shortfall = max(units, 0)
	}
	return change, nil
}

// Upsert stores a product and its merchant; used by fixtures and tests.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product, m *merchant.Merchant) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if m != nil {
			if _, err := tx.Exec(ctx, `
				INSERT INTO merchants (id, email, first_name, last_name, phone_number, business_name, support_email, role)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO UPDATE SET
					email = EXCLUDED.email, first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
					phone_number = EXCLUDED.phone_number, business_name = EXCLUDED.business_name,
					support_email = EXCLUDED.support_email, updated_at = now()`,
				m.ID, m.Email, m.FirstName, m.LastName, m.PhoneNumber, m.BusinessName, nullable(m.SupportEmail), roleOrDefault(m.Role),
			); err != nil {
				return fmt.Errorf("upsert merchant: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO products (id, merchant_id, title, description, image, price, currency, quantity, email, payment_link, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				merchant_id = EXCLUDED.merchant_id, title = EXCLUDED.title, description = EXCLUDED.description,
				image = EXCLUDED.image, price = EXCLUDED.price, currency = EXCLUDED.currency,
				quantity = EXCLUDED.quantity, email = EXCLUDED.email, payment_link = EXCLUDED.payment_link,
				is_active = EXCLUDED.is_active, updated_at = now()`,
			p.ID, p.MerchantID, p.Title, nullable(p.Description), p.Image, p.Price, p.Currency,
			p.Quantity.Ptr(), nullable(p.Email), nullable(p.PaymentLink), p.IsActive,
		); err != nil {
			return fmt.Errorf("upsert product: %w", err)
		}
		return nil
	})
}

type productRow struct {
	ID, MerchantID, Title, Image, Currency string
	Description, Email, PaymentLink        *string
	Price                                  decimal.Decimal
	Quantity                               *int
	IsActive                               bool
	CreatedAt, UpdatedAt                   time.Time
}

func (r *productRow) dest() []any {
	return []any{&r.ID, &r.MerchantID, &r.Title, &r.Description, &r.Image, &r.Price, &r.Currency,
		&r.Quantity, &r.Email, &r.PaymentLink, &r.IsActive, &r.CreatedAt, &r.UpdatedAt}
}

func (r *productRow) product() *product.Product {
	return &product.Product{
		ID:          r.ID,
		MerchantID:  r.MerchantID,
		Title:       r.Title,
		Description: deref(r.Description),
		Image:       r.Image,
		Price:       r.Price,
		Currency:    r.Currency,
		Quantity:    product.FromPtr(r.Quantity),
		Email:       deref(r.Email),
		PaymentLink: deref(r.PaymentLink),
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// merchantRow scans the nullable side of a LEFT JOIN.
type merchantRow struct {
	ID, Email, FirstName, LastName, PhoneNumber, BusinessName, SupportEmail, Role *string
	CreatedAt, UpdatedAt                                                          *time.Time
}

func (r *merchantRow) dest() []any {
	return []any{&r.ID, &r.Email, &r.FirstName, &r.LastName, &r.PhoneNumber,
		&r.BusinessName, &r.SupportEmail, &r.Role, &r.CreatedAt, &r.UpdatedAt}
}

func (r *merchantRow) merchant() *merchant.Merchant {
	if r.ID == nil {
		return nil
	}
	m := &merchant.Merchant{
		ID:           *r.ID,
		Email:        deref(r.Email),
		FirstName:    deref(r.FirstName),
		LastName:     deref(r.LastName),
		PhoneNumber:  deref(r.PhoneNumber),
		BusinessName: deref(r.BusinessName),
		SupportEmail: deref(r.SupportEmail),
		Role:         deref(r.Role),
	}
	if r.CreatedAt != nil {
		m.CreatedAt = *r.CreatedAt
	}
	if r.UpdatedAt != nil {
		m.UpdatedAt = *r.UpdatedAt
	}
	return m
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func roleOrDefault(role string) string {
	if role == "" {
		return "merchant"
	}
	return role
}
