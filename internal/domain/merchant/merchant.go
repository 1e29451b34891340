package merchant

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("merchant: not found")

type Merchant struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PhoneNumber  string
	BusinessName string
	SupportEmail string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ContactEmail prefers the support address over the login address.
func (m *Merchant) ContactEmail() string {
	if m == nil {
		return ""
	}
	if m.SupportEmail != "" {
		return m.SupportEmail
	}
	return m.Email
}

func (m *Merchant) Clone() *Merchant {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}
