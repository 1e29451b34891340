// Package gateway talks to the mobile-money payment API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apppayment "github.com/Zhima-Mochi/paylink/internal/application/payment"
)

const (
	pathAuthenticate = "/api/v1/xyz/authenticate"
	pathInitiate     = "/api/v1/xyz/initiate"
	pathCheckStatus  = "/api/v1/xyz/check-status"

	defaultTimeout = 30 * time.Second
)

type Config struct {
	BaseURL      string
	ClientKey    string
	ClientSecret string
	Timeout      time.Duration
}

// APIError is a non-2xx answer from the payment API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment api: %d %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return apppayment.ErrGatewayUnauthorized
	}
	return apppayment.ErrGatewayFailure
}

// Client is stateless apart from its credentials; tokens are passed per call.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ apppayment.Gateway = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// WithHTTPClient replaces the transport; the configured timeout still bounds each call.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.http = hc
	}
	return c
}

type envelope[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type authenticateData struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

type initiateBody struct {
	PaymentMode       string      `json:"paymentMode"`
	PhoneNumber       string      `json:"phoneNumber"`
	TransactionType   string      `json:"transactionType"`
	Amount            json.Number `json:"amount"`
	FullName          string      `json:"fullName"`
	EmailAddress      string      `json:"emailAddress"`
	CurrencyCode      string      `json:"currencyCode"`
	CountryCode       string      `json:"countryCode"`
	ExternalReference string      `json:"externalReference"`
}

type initiateData struct {
	ProviderStatus    string `json:"providerStatus"`
	InternalPaymentID string `json:"internalPaymentId"`
	ProviderChannel   string `json:"providerChannel"`
	PaymentProvider   string `json:"paymentProvider"`
	ProviderMessage   string `json:"providerMessage"`
}

type statusData struct {
	Status            string      `json:"status"`
	ExternalReference string      `json:"externalReference"`
	InternalPaymentID string      `json:"internalPaymentId"`
	Amount            looseAmount `json:"amount"`
	Fees              looseAmount `json:"fees"`
}

// looseAmount accepts a JSON number, string or null. The status call reports
// amounts for display only, so a malformed value must not fail the decode.
type looseAmount string

func (a *looseAmount) UnmarshalJSON(b []byte) error {
	raw := bytes.TrimSpace(b)
	switch {
	case len(raw) == 0, bytes.Equal(raw, []byte("null")):
		*a = ""
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*a = looseAmount(strings.TrimSpace(s))
	default:
		*a = looseAmount(raw)
	}
	return nil
}

func (c *Client) Authenticate(ctx context.Context) (apppayment.Session, error) {
	var out envelope[authenticateData]
	if err := c.do(ctx, http.MethodPost, pathAuthenticate, "", nil, &out); err != nil {
		return apppayment.Session{}, err
	}
	return apppayment.Session{AccessToken: out.Data.AccessToken, ExpiresIn: out.Data.ExpiresIn}, nil
}

func (c *Client) Initiate(ctx context.Context, token string, req apppayment.InitiateRequest) (apppayment.InitiateResponse, error) {
	body := initiateBody{
		PaymentMode:       req.PaymentMode,
		PhoneNumber:       req.PhoneNumber,
		TransactionType:   req.TransactionType,
		Amount:            json.Number(req.Amount.String()),
		FullName:          req.FullName,
		EmailAddress:      req.EmailAddress,
		CurrencyCode:      req.CurrencyCode,
		CountryCode:       req.CountryCode,
		ExternalReference: req.ExternalReference,
	}

	var out envelope[initiateData]
	if err := c.do(ctx, http.MethodPost, pathInitiate, token, body, &out); err != nil {
		return apppayment.InitiateResponse{}, err
	}
	return apppayment.InitiateResponse{
		ProviderStatus:    out.Data.ProviderStatus,
		InternalPaymentID: out.Data.InternalPaymentID,
		ProviderChannel:   out.Data.ProviderChannel,
		PaymentProvider:   out.Data.PaymentProvider,
		ProviderMessage:   out.Data.ProviderMessage,
	}, nil
}

func (c *Client) CheckStatus(ctx context.Context, token, reference string) (apppayment.StatusResponse, error) {
	path := pathCheckStatus + "?reference=" + url.QueryEscape(reference)

	var out envelope[statusData]
	if err := c.do(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return apppayment.StatusResponse{}, err
	}
	return apppayment.StatusResponse{
		Status:            out.Data.Status,
		ExternalReference: out.Data.ExternalReference,
		InternalPaymentID: out.Data.InternalPaymentID,
		Amount:            string(out.Data.Amount),
		Fees:              string(out.Data.Fees),
	}, nil
}

func (c *Client) validate() error {
	var missing []string
	if c.cfg.BaseURL == "" {
		missing = append(missing, "base url")
	}
	if c.cfg.ClientKey == "" {
		missing = append(missing, "client key")
	}
	if c.cfg.ClientSecret == "" {
		missing = append(missing, "client secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", apppayment.ErrGatewayMisconfigured, strings.Join(missing, ", "))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	if err := c.validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", apppayment.ErrGatewayFailure, err)
	}
	req.Header.Set("client-key", c.cfg.ClientKey)
	req.Header.Set("client-secret", c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: send request: %v", apppayment.ErrGatewayFailure, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", apppayment.ErrGatewayFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: unmarshal response: %v", apppayment.ErrGatewayFailure, err)
	}
	return nil
}

func newAPIError(resp *http.Response, raw []byte) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: raw}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		apiErr.Message = payload.Message
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// IsAPIError reports whether err carries an HTTP answer from the payment API.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}
