package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	apppayment "github.com/Zhima-Mochi/paylink/internal/application/payment"
	dompayment "github.com/Zhima-Mochi/paylink/internal/domain/payment"
	"github.com/Zhima-Mochi/paylink/internal/observability"
	"github.com/Zhima-Mochi/paylink/internal/observability/logctx"
)

// PaymentService is the application surface exposed over HTTP.
type PaymentService interface {
	Authenticate(ctx context.Context, productID string) (*apppayment.AuthenticateResult, error)
	Initiate(ctx context.Context, in apppayment.InitiateInput) (*apppayment.InitiateResult, error)
	CheckStatus(ctx context.Context, paymentID string) (*apppayment.CheckStatusResult, error)
	ProductWithMerchant(ctx context.Context, productID string) (*apppayment.ProductView, error)
}

// Options mount the optional endpoints.
type Options struct {
	// Metrics is served at /metrics when set.
	Metrics http.Handler
	// Receipts serves stored receipt files at /receipts/ when set.
	Receipts http.Handler
}

type Handler struct {
	payments PaymentService
	opts     Options
	log      observability.Logger
	tel      observability.Observability
}

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	maxBodyBytes         = 1 << 20
)

func NewHandler(payments PaymentService, tel observability.Observability, opts Options) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		payments: payments,
		opts:     opts,
		log:      tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:      tel,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Trace → request logger + metrics → access log → handler
	h.muxHandle(mux, "POST /payments/authenticate/{productId}", h.handleAuthenticate)
	h.muxHandle(mux, "POST /payments/initiate", h.handleInitiate)
	h.muxHandle(mux, "GET /payments/status/{paymentId}", h.handleCheckStatus)
	h.muxHandle(mux, "GET /payments/product/{productId}", h.handleProduct)
	h.muxHandle(mux, "GET /health", h.handleHealth)

	if h.opts.Metrics != nil {
		mux.Handle("GET /metrics", h.opts.Metrics)
	}
	if h.opts.Receipts != nil {
		h.muxHandle(mux, "GET /receipts/{name}", h.opts.Receipts.ServeHTTP)
	}
	return mux
}

func (h *Handler) muxHandle(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	wrapped := h.withTrace(
		ObservabilityMiddleware(
			h.log,
			func(r *http.Request) string { return r.Header.Get(headerRequestID) },
			h.tel,
		)(
			h.withAccessLog(handler),
		),
	)
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Store the pattern for low-cardinality labels.
		wrapped.ServeHTTP(w, r.WithContext(contextWithRoute(r.Context(), pattern)))
	}))
}

type authenticateResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (h *Handler) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	result, err := h.payments.Authenticate(r.Context(), r.PathValue("productId"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authenticateResponse{ID: result.PaymentID, Message: result.Message})
}

// initiateRequest also tolerates the productId, amount and transactionType fields older
// clients send; the server derives them from the payment.
type initiateRequest struct {
	PaymentID    string          `json:"paymentId"`
	PaymentMode  dompayment.Mode `json:"paymentMode"`
	PhoneNumber  string          `json:"phoneNumber"`
	Quantity     *int            `json:"quantity"`
	FullName     string          `json:"fullName"`
	EmailAddress string          `json:"emailAddress"`
	CurrencyCode string          `json:"currencyCode"`
	CountryCode  string          `json:"countryCode"`
}

func (req initiateRequest) validate() error {
	var problems []string
	if strings.TrimSpace(req.PaymentID) == "" {
		problems = append(problems, "paymentId is required")
	}
	if !req.PaymentMode.Valid() {
		problems = append(problems, "paymentMode must be one of MOMO, OM")
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		problems = append(problems, "phoneNumber is required")
	}
	if strings.TrimSpace(req.FullName) == "" {
		problems = append(problems, "fullName is required")
	}
	if _, err := mail.ParseAddress(req.EmailAddress); err != nil {
		problems = append(problems, "emailAddress must be an email")
	}
	if strings.TrimSpace(req.CurrencyCode) == "" {
		problems = append(problems, "currencyCode is required")
	}
	if strings.TrimSpace(req.CountryCode) == "" {
		problems = append(problems, "countryCode is required")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

type initiateResponse struct {
	ID                string `json:"id"`
	Message           string `json:"message"`
	ProviderStatus    string `json:"providerStatus"`
	InternalPaymentID string `json:"internalPaymentId"`
}

func (h *Handler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	result, err := h.payments.Initiate(r.Context(), apppayment.InitiateInput{
		PaymentID:    req.PaymentID,
		PaymentMode:  req.PaymentMode,
		PhoneNumber:  req.PhoneNumber,
		Quantity:     quantity,
		FullName:     req.FullName,
		EmailAddress: req.EmailAddress,
		CurrencyCode: req.CurrencyCode,
		CountryCode:  req.CountryCode,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, initiateResponse{
		ID:                result.PaymentID,
		Message:           result.Message,
		ProviderStatus:    result.ProviderStatus,
		InternalPaymentID: result.InternalPaymentID,
	})
}

type checkStatusResponse struct {
	PaymentID         string  `json:"paymentId"`
	Status            string  `json:"status"`
	ExternalReference string  `json:"externalReference"`
	ReceiptURL        *string `json:"receiptUrl"`
}

func (h *Handler) handleCheckStatus(w http.ResponseWriter, r *http.Request) {
	result, err := h.payments.CheckStatus(r.Context(), r.PathValue("paymentId"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	resp := checkStatusResponse{
		PaymentID:         result.PaymentID,
		Status:            string(result.Status),
		ExternalReference: result.ExternalReference,
	}
	if result.ReceiptURL != "" {
		resp.ReceiptURL = &result.ReceiptURL
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleProduct(w http.ResponseWriter, r *http.Request) {
	view, err := h.payments.ProductWithMerchant(r.Context(), r.PathValue("productId"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		spanName := route
		if spanName == "unknown" {
			spanName = r.Method + " " + r.URL.Path
		}
		template := route
		if _, path, ok := strings.Cut(template, " "); ok {
			template = path
		}

		ctx, span := h.tel.Tracer().Start(parentCtx, spanName,
			attribute.String("http.method", r.Method),
			attribute.String("http.route", template),
			attribute.String("http.target", r.URL.Path),
			attribute.String("http.user_agent", r.UserAgent()),
		)
		defer span.End()

		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lrw, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", lrw.status))
		if lrw.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(lrw.status))
		}
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Error      string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{
		StatusCode: status,
		Message:    message,
		Error:      http.StatusText(status),
	})
}

// writeServiceError maps the payment error kinds to HTTP statuses. Only the
// caller-safe message is written; the cause goes to the request log.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logctx.FromOr(r.Context(), h.log).Warn("http_request_failed",
			observability.F("status", status),
			observability.F("error", err.Error()),
		)
	}
	writeError(w, status, apppayment.Message(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apppayment.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apppayment.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apppayment.ErrBadGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
