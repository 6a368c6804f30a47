package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies failures crossing component boundaries.
type Kind string

const (
	KindValidation Kind = "VALIDATION"
	KindRemote     Kind = "REMOTE_FAILURE"
	KindExhausted  Kind = "RETRY_EXHAUSTED"
	KindCallback   Kind = "SUBSCRIPTION_CALLBACK_FAILURE"
	KindCanceled   Kind = "CANCELED"
)

// CodeInvalidParams is the code carried by validation errors.
const CodeInvalidParams = "INVALID_PARAMS"

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string                 `json:"field"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Error is the typed error used across the resilience layer.
type Error struct {
	Kind     Kind
	Code     string
	Op       string
	Attempts int
	Failures []FieldError
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if len(e.Failures) > 0 {
		msgs := make([]string, len(e.Failures))
		for i, f := range e.Failures {
			msgs[i] = f.Message
		}
		b.WriteString(": ")
		b.WriteString(strings.Join(msgs, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Validation builds an INVALID_PARAMS error from field failures.
func Validation(op string, failures []FieldError) *Error {
	return &Error{Kind: KindValidation, Code: CodeInvalidParams, Op: op, Failures: failures}
}

// Remote wraps a failed backend call.
func Remote(op string, err error) *Error {
	return &Error{Kind: KindRemote, Op: op, Err: err}
}

// Exhausted is returned once retries are used up; it wraps the last failure.
func Exhausted(op string, attempts int, last error) *Error {
	return &Error{Kind: KindExhausted, Op: op, Attempts: attempts, Err: last}
}

// Callback wraps a listener failure on a subscription topic.
func Callback(topic string, err error) *Error {
	return &Error{Kind: KindCallback, Op: topic, Err: err}
}

// Canceled reports that the caller abandoned the operation.
func Canceled(op string, err error) *Error {
	return &Error{Kind: KindCanceled, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether the outermost *Error in the chain has kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// FailuresOf returns the field failures of a validation error.
func FailuresOf(err error) []FieldError {
	var e *Error
	if errors.As(err, &e) {
		return e.Failures
	}
	return nil
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err must not be retried. Validation errors
// are always permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p) || IsKind(err, KindValidation)
}
