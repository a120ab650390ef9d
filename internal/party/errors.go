package party

import (
	"fmt"
	"sort"
	"strings"
)

// ErrorCode classifies reconciliation failures.
type ErrorCode string

const (
	// ErrMissingField means a required optional value was absent, such
	// as a destination address or price data.
	ErrMissingField ErrorCode = "missing_field"

	// ErrUnsupportedEvent means an operation received the wrong event
	// variant.
	ErrUnsupportedEvent ErrorCode = "unsupported_event"

	// ErrArithmetic means a big-integer parse or conversion failed.
	ErrArithmetic ErrorCode = "arithmetic"
)

// Error is the structured error for reconciliation failures. Details
// carries the identifiers and amounts involved so skipped events can be
// diagnosed from logs.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]string
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, e.Details[k])
	}
	return b.String()
}

func newError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg, Details: map[string]string{}}
}

// WithDetail attaches a key/value pair and returns the error for
// chaining.
func (e *Error) WithDetail(key, value string) *Error {
	e.Details[key] = value
	return e
}
