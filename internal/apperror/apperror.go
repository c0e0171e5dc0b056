package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure so callers can decide how to react.
type Kind string

const (
	KindValidation Kind = "validation"
	KindTransport  Kind = "transport"
	KindDecode     Kind = "decode"
	KindCanceled   Kind = "canceled"
	KindUnknown    Kind = "unknown"
)

// FallbackMessage is shown when the server gave no usable message.
const FallbackMessage = "Something went wrong. Please try again."

type Error struct {
	Op      string
	Kind    Kind
	Status  int
	Message string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (http %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable is true for network failures and 5xx responses only.
func (e *Error) Retryable() bool {
	if e.Kind != KindTransport {
		return false
	}
	return e.Status == 0 || e.Status >= http.StatusInternalServerError
}

func Validation(op string, fields ...string) *Error {
	return &Error{
		Op:      op,
		Kind:    KindValidation,
		Message: "missing or invalid: " + strings.Join(fields, ", "),
		Fields:  fields,
	}
}

func Transport(op string, status int, message string, err error) *Error {
	return &Error{Op: op, Kind: KindTransport, Status: status, Message: message, Err: err}
}

func Decode(op string, err error) *Error {
	return &Error{Op: op, Kind: KindDecode, Err: err}
}

func Canceled(op string, err error) *Error {
	return &Error{Op: op, Kind: KindCanceled, Err: err}
}

// KindOf returns the kind of err, treating bare context errors as canceled.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return KindUnknown
}

// UserMessage returns the text to show in an alert.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		if appErr.Kind == KindValidation {
			return "Please fill in: " + strings.Join(appErr.Fields, ", ")
		}
		return appErr.Message
	}
	return FallbackMessage
}

func IsRetryable(err error) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Retryable()
}
