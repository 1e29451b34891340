package memory

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Zhima-Mochi/paylink/internal/domain/merchant"
	"github.com/Zhima-Mochi/paylink/internal/domain/product"
)

// Fixtures is the YAML layout of a seed file.
type Fixtures struct {
	Merchants []MerchantFixture `yaml:"merchants"`
	Products  []ProductFixture  `yaml:"products"`
}

type MerchantFixture struct {
	ID           string `yaml:"id"`
	Email        string `yaml:"email"`
	FirstName    string `yaml:"firstName"`
	LastName     string `yaml:"lastName"`
	PhoneNumber  string `yaml:"phoneNumber"`
	BusinessName string `yaml:"businessName"`
	SupportEmail string `yaml:"supportEmail"`
}

type ProductFixture struct {
	ID          string `yaml:"id"`
	MerchantID  string `yaml:"merchantId"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Image       string `yaml:"image"`
	Price       string `yaml:"price"`
	Currency    string `yaml:"currency"`
	// Quantity is omitted for unlimited stock.
	Quantity    *int   `yaml:"quantity"`
	Email       string `yaml:"email"`
	PaymentLink string `yaml:"paymentLink"`
	Active      *bool  `yaml:"active"`
}

// LoadSeedFile reads fixtures from path into repo.
func LoadSeedFile(path string, repo *ProductRepository) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return LoadSeed(f, repo)
}

// LoadSeed decodes YAML fixtures and stores them in repo.
func LoadSeed(r io.Reader, repo *ProductRepository) error {
	var fx Fixtures
	if err := yaml.NewDecoder(r).Decode(&fx); err != nil && err != io.EOF {
		return fmt.Errorf("decode seed: %w", err)
	}

	now := time.Now().UTC()
	for _, m := range fx.Merchants {
		if m.ID == "" {
			return fmt.Errorf("seed: merchant without id")
		}
		repo.PutMerchant(&merchant.Merchant{
			ID:           m.ID,
			Email:        m.Email,
			FirstName:    m.FirstName,
			LastName:     m.LastName,
			PhoneNumber:  m.PhoneNumber,
			BusinessName: m.BusinessName,
			SupportEmail: m.SupportEmail,
			Role:         "merchant",
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	for _, p := range fx.Products {
		if p.ID == "" {
			return fmt.Errorf("seed: product without id")
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return fmt.Errorf("seed: product %s price %q: %w", p.ID, p.Price, err)
		}
		active := true
		if p.Active != nil {
			active = *p.Active
		}
		link := p.PaymentLink
		if link == "" {
			link = p.ID
		}
		repo.Put(&product.Product{
			ID:          p.ID,
			MerchantID:  p.MerchantID,
			Title:       p.Title,
			Description: p.Description,
			Image:       p.Image,
			Price:       price,
			Currency:    p.Currency,
			Quantity:    product.FromPtr(p.Quantity),
			Email:       p.Email,
			PaymentLink: link,
			IsActive:    active,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return nil
}
