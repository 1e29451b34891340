package payment

import (
	"errors"

	dompayment "github.com/Zhima-Mochi/paylink/internal/domain/payment"
	"github.com/Zhima-Mochi/paylink/internal/domain/product"
)

// Error kinds returned by every payment operation. Match them with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadGateway   = errors.New("bad gateway")
	ErrInternal     = errors.New("internal error")
)

// Error carries a caller-safe message, its kind and the underlying cause.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Cause }

func notFound(msg string, cause error) error {
	return &Error{Kind: ErrNotFound, Message: msg, Cause: cause}
}

func unauthorized(msg string, cause error) error {
	return &Error{Kind: ErrUnauthorized, Message: msg, Cause: cause}
}

func badGateway(msg string, cause error) error {
	return &Error{Kind: ErrBadGateway, Message: msg, Cause: cause}
}

func internal(msg string, cause error) error {
	return &Error{Kind: ErrInternal, Message: msg, Cause: cause}
}

// Message returns the caller-safe text of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

func wrapRepositoryError(what string, err error) error {
	switch {
	case errors.Is(err, dompayment.ErrNotFound):
		return notFound("Payment not found", err)
	case errors.Is(err, product.ErrNotFound):
		return notFound("Product not found", err)
	default:
		return internal("Failed to "+what, err)
	}
}

// gatewayError maps a gateway failure onto the caller-facing kinds.
// unauthorizedMsg is used for HTTP 401 responses.
func gatewayError(op, unauthorizedMsg string, err error) error {
	switch {
	case errors.Is(err, ErrGatewayMisconfigured):
		return internal("Payment API configuration is missing", err)
	case errors.Is(err, ErrGatewayUnauthorized):
		return unauthorized(unauthorizedMsg, err)
	default:
		return badGateway("Payment "+op+" failed", err)
	}
}
