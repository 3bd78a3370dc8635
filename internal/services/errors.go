package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sharashena/07.E-Commerce-server/internal/payments"
	"github.com/sharashena/07.E-Commerce-server/internal/repositories"
)

// Error kinds. Every error returned by a service unwraps to exactly one of these.
var (
	ErrNotFound     = errors.New("not found")
	ErrBadRequest   = errors.New("bad request")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrGateway      = errors.New("payment gateway error")
	ErrUnavailable  = errors.New("service unavailable")
)

// FieldError names the request field an error message refers to.
type FieldError struct {
	Field   string
	Message string
}

// Error is the structured service failure surfaced to handlers. Message is safe to show to clients.
type Error struct {
	Kind    error
	Message string
	Fields  []FieldError
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap exposes both the kind sentinel and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Kind, e.cause}
	}
	return []error{e.Kind}
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func badRequest(format string, args ...any) error { return newError(ErrBadRequest, format, args...) }
func notFound(format string, args ...any) error   { return newError(ErrNotFound, format, args...) }
func conflict(format string, args ...any) error   { return newError(ErrConflict, format, args...) }
func forbidden(format string, args ...any) error  { return newError(ErrForbidden, format, args...) }

func unauthorized(format string, args ...any) error {
	return newError(ErrUnauthorized, format, args...)
}

func fieldErrors(kind error, fields ...FieldError) error {
	msg := "invalid request"
	if len(fields) > 0 {
		msg = fields[0].Message
	}
	return &Error{Kind: kind, Message: msg, Fields: fields}
}

// gatewayError wraps a payment provider failure. The client sees a generic message.
func gatewayError(err error) error {
	return &Error{Kind: ErrGateway, Message: "payment provider request failed", cause: err}
}

// translateRepoError maps repository failures onto service kinds. notFoundMsg is used when the
// document is missing. Unclassified errors are returned wrapped but without a kind.
func translateRepoError(err error, notFoundMsg string) error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	if errors.Is(err, payments.ErrGateway) {
		return gatewayError(err)
	}

	var dup *repositories.DuplicateError
	if errors.As(err, &dup) {
		fields := make([]FieldError, 0, len(dup.Fields))
		for _, f := range dup.Fields {
			fields = append(fields, FieldError{Field: f, Message: f + " already exists"})
		}
		if len(fields) == 0 {
			return &Error{Kind: ErrConflict, Message: "duplicate value", cause: err}
		}
		return &Error{Kind: ErrConflict, Message: fields[0].Message, Fields: fields, cause: err}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return &Error{Kind: ErrNotFound, Message: notFoundMsg, cause: err}
		case repoErr.IsConflict():
			return &Error{Kind: ErrConflict, Message: "resource was modified concurrently, please retry", cause: err}
		case repoErr.IsUnavailable():
			return &Error{Kind: ErrUnavailable, Message: "storage temporarily unavailable", cause: err}
		}
	}
	return err
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func trimmed(value string) string {
	return strings.TrimSpace(value)
}
