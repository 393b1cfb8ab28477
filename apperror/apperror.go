package apperror

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation              Kind = "VALIDATION"
	KindAuthentication          Kind = "AUTHENTICATION"
	KindInsufficientStock       Kind = "INSUFFICIENT_STOCK"
	KindStalePricing            Kind = "STALE_PRICING"
	KindPaymentMethodNotAllowed Kind = "PAYMENT_METHOD_NOT_ALLOWED"
	KindGatewayUnavailable      Kind = "GATEWAY_UNAVAILABLE"
	KindGatewayVerifyFailed     Kind = "GATEWAY_VERIFY_FAILED"
	KindConflict                Kind = "CONFLICT"
	KindTimeout                 Kind = "TIMEOUT"
	KindInternal                Kind = "INTERNAL"
	KindNotFound                Kind = "NOT_FOUND"
	KindForbidden               Kind = "FORBIDDEN"
)

// Error is the domain error surfaced by the order core.
type Error struct {
	Kind    Kind
	Message string

	// set for INSUFFICIENT_STOCK
	ProductID uint
	Available int64

	// extra payload returned to the caller, e.g. server pricing on STALE_PRICING
	Details any

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func Authentication(message string) *Error {
	return New(KindAuthentication, message)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, message)
}

func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

func InsufficientStock(productID uint, available int64) *Error {
	return &Error{
		Kind:      KindInsufficientStock,
		Message:   fmt.Sprintf("insufficient stock for product %d (available %d)", productID, available),
		ProductID: productID,
		Available: available,
	}
}

func StalePricing(details any) *Error {
	return &Error{Kind: KindStalePricing, Message: "client total disagrees with server pricing", Details: details}
}

func PaymentMethodNotAllowed(method, channel string) *Error {
	return New(KindPaymentMethodNotAllowed, fmt.Sprintf("payment method %q is not allowed on channel %q", method, channel))
}

func GatewayUnavailable(err error) *Error {
	return Wrap(KindGatewayUnavailable, "payment gateway unavailable", err)
}

func GatewayVerifyFailed(reason string, details any) *Error {
	return &Error{Kind: KindGatewayVerifyFailed, Message: reason, Details: details}
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, fmt.Sprintf(format, args...))
}

func Timeout(err error) *Error {
	return Wrap(KindTimeout, "downstream exceeded deadline", err)
}

func Internal(err error) *Error {
	return Wrap(KindInternal, "internal error", err)
}

// KindOf classifies any error. Deadline errors count as TIMEOUT, unknown errors as INTERNAL.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// As returns the *Error in err's chain, classifying it when none is present.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	kind := KindOf(err)
	if kind == KindTimeout {
		return Timeout(err)
	}
	return Internal(err)
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
