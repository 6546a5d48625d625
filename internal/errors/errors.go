// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindNotFound
	KindForbidden
	KindValidation
	KindDeliveryAttempt
	KindAdapterUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindDeliveryAttempt:
		return "delivery_attempt_failure"
	case KindAdapterUnavailable:
		return "adapter_unavailable"
	default:
		return "internal"
	}
}

// AppError carries a Kind so callers can map it to a status without string matching.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func Unauthorized(err error) error {
	return &AppError{Kind: KindUnauthorized, Message: "Unauthorized", Err: err}
}

func NotFound(resource, id string) error {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", resource, id)}
}

func Forbidden(resource, id string) error {
	return &AppError{Kind: KindForbidden, Message: fmt.Sprintf("%s %s is not owned by the caller", resource, id)}
}

func Validation(message string, err error) error {
	return &AppError{Kind: KindValidation, Message: message, Err: err}
}

func DeliveryAttempt(customerID string, err error) error {
	return &AppError{Kind: KindDeliveryAttempt, Message: fmt.Sprintf("delivery to customer %s failed", customerID), Err: err}
}

func AdapterUnavailable(adapter string, err error) error {
	return &AppError{Kind: KindAdapterUnavailable, Message: adapter + " unavailable", Err: err}
}

func Internal(err error) error {
	return &AppError{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf returns KindInternal for errors that are not AppErrors.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindAdapterUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
