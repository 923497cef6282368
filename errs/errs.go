// Package errs provides structured error types and helpers for tickwire services.
package errs

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Code identifies an error category.
type Code string

const (
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeNotFound indicates a missing resource.
	CodeNotFound Code = "not_found"
	// CodeUnavailable indicates the component is closed or temporarily unavailable.
	CodeUnavailable Code = "unavailable"
	// CodeDuplicateCorrelation indicates an id is already bound to a different descriptor.
	CodeDuplicateCorrelation Code = "duplicate_correlation"
	// CodeUnresolvedCorrelation indicates a callback or request referenced an unknown id.
	CodeUnresolvedCorrelation Code = "unresolved_correlation"
	// CodeOutOfOrderTimestamp indicates a time-series write earlier than the last point.
	CodeOutOfOrderTimestamp Code = "out_of_order_timestamp"
	// CodeConnectionFailure indicates the gateway could not be reached.
	CodeConnectionFailure Code = "connection_failure"
	// CodeMalformedCallback indicates a gateway frame that could not be decoded.
	CodeMalformedCallback Code = "malformed_callback"
)

// Templates usable as errors.Is targets; matching is by Code only.
var (
	ErrDuplicateCorrelation  = &E{Code: CodeDuplicateCorrelation}
	ErrUnresolvedCorrelation = &E{Code: CodeUnresolvedCorrelation}
	ErrOutOfOrderTimestamp   = &E{Code: CodeOutOfOrderTimestamp}
	ErrConnectionFailure     = &E{Code: CodeConnectionFailure}
	ErrMalformedCallback     = &E{Code: CodeMalformedCallback}
)

// E captures structured error information produced across the tickwire stack.
type E struct {
	Op       string
	Code     Code
	Message  string
	Metadata map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the operation and error code.
func New(op string, code Code, opts ...Option) *E {
	e := &E{
		Op:       strings.TrimSpace(op),
		Code:     code,
		Message:  "",
		Metadata: nil,
		cause:    nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithField appends a single metadata key/value pair.
func WithField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]string, 1)
		}
		e.Metadata[trimmedKey] = strings.TrimSpace(value)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	if op := strings.TrimSpace(e.Op); op != "" {
		parts = append(parts, "op="+op)
	}

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if len(e.Metadata) > 0 {
		keys := make([]string, 0, len(e.Metadata))
		for k := range e.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.Metadata[k]))
		}
		parts = append(parts, "meta="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Is reports whether target is an *E carrying the same code.
func (e *E) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*E)
	if !ok || t == nil {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// IsCode reports whether any error in err's chain is an *E with the given code.
func IsCode(err error, code Code) bool {
	var e *E
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.cause
	}
	return false
}
