package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fundsavy/fundsavy/pkg/resource"
)

// Kind classifies a retrieval failure.
type Kind int

const (
	KindNetwork  Kind = iota // Transport-level failure
	KindResponse             // Non-success status
	KindParse                // Malformed body
	KindTimeout              // Deadline exceeded
)

// String returns the metric-friendly name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindResponse:
		return "response"
	case KindParse:
		return "parse"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a retrieval failure. Error() returns only the human-readable
// message; the cause is available through errors.Unwrap.
type Error struct {
	Kind       Kind
	Locator    string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets timeouts match resource.ErrTimeout.
func (e *Error) Is(target error) bool {
	return e.Kind == KindTimeout && target == resource.ErrTimeout
}

// Detail returns the message with the locator and cause, for logs.
func (e *Error) Detail() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Locator != "" {
		b.WriteString(" for ")
		b.WriteString(e.Locator)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// NetworkError reports a transport failure.
func NetworkError(locator string, err error) *Error {
	return &Error{Kind: KindNetwork, Locator: locator, Message: "unable to reach server", Err: err}
}

// ResponseError reports a non-success status. The message is the lower-case
// status text, e.g. "not found" for 404.
func ResponseError(locator string, status int) *Error {
	msg := strings.ToLower(http.StatusText(status))
	if msg == "" {
		msg = fmt.Sprintf("unexpected status %d", status)
	}
	return &Error{Kind: KindResponse, Locator: locator, StatusCode: status, Message: msg}
}

// ParseError reports a body that could not be decoded.
func ParseError(locator string, err error) *Error {
	return &Error{Kind: KindParse, Locator: locator, Message: "invalid response body", Err: err}
}

// TimeoutError reports an expired deadline.
func TimeoutError(locator string, err error) *Error {
	return &Error{Kind: KindTimeout, Locator: locator, Message: resource.ErrTimeout.Error(), Err: err}
}

// KindOf returns the kind of err and whether err is a retrieval Error.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == KindResponse && fe.StatusCode == http.StatusNotFound
}
