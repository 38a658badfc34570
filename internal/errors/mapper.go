// Package errors holds the error taxonomy shared by the HTTP and gRPC
// transports and the mapper that folds infra errors into it.
package errors

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

type Kind string

const (
	KindAuthenticationRequired Kind = "AUTHENTICATION_REQUIRED"
	KindAuthorizationDenied    Kind = "AUTHORIZATION_DENIED"
	KindValidationFailed       Kind = "VALIDATION_FAILED"
	KindNotFound               Kind = "NOT_FOUND"
	KindConflict               Kind = "CONFLICT"
	KindPaymentFailed          Kind = "PAYMENT_FAILED"
	KindStorageFailure         Kind = "STORAGE_FAILURE"
)

// Error is a classified failure. Message is safe to show to callers; the
// wrapped cause is only for logs.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus maps the kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindAuthenticationRequired:
		return http.StatusUnauthorized
	case KindAuthorizationDenied:
		return http.StatusForbidden
	case KindValidationFailed:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindPaymentFailed:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// GRPCStatus lets status.FromError understand *Error.
func (e *Error) GRPCStatus() *status.Status {
	code := codes.Internal
	switch e.Kind {
	case KindAuthenticationRequired:
		code = codes.Unauthenticated
	case KindAuthorizationDenied:
		code = codes.PermissionDenied
	case KindValidationFailed:
		code = codes.InvalidArgument
	case KindNotFound:
		code = codes.NotFound
	case KindConflict:
		code = codes.AlreadyExists
	case KindPaymentFailed:
		code = codes.FailedPrecondition
	}
	return status.New(code, e.Message)
}

func newErr(k Kind, msg string) *Error { return &Error{Kind: k, Message: msg} }

func Unauthenticated(msg string) error { return newErr(KindAuthenticationRequired, msg) }
func Forbidden(msg string) error       { return newErr(KindAuthorizationDenied, msg) }
func InvalidArgument(msg string) error { return newErr(KindValidationFailed, msg) }
func NotFound(msg string) error        { return newErr(KindNotFound, msg) }
func AlreadyExists(msg string) error   { return newErr(KindConflict, msg) }
func PaymentFailed(msg string) error   { return newErr(KindPaymentFailed, msg) }

// Map converts repo/infra errors into *Error.
// Already-classified errors pass through untouched.
func Map(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &Error{Kind: KindNotFound, Message: "record not found", cause: err}

	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &Error{Kind: KindConflict, Message: "record already exists", cause: err}

	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindStorageFailure, Message: "request timed out", cause: err}

	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindStorageFailure, Message: "request was canceled", cause: err}

	default:
		// never leak storage details to callers
		return &Error{Kind: KindStorageFailure, Message: "internal error", cause: err}
	}
}

// Is reports whether err classifies as kind k.
func Is(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
