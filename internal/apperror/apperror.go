package apperror

import "errors"

// Kind describes a stable error category that can be mapped to HTTP status codes.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindNotEligible Kind = "not_eligible"
	KindUsageLimit  Kind = "usage_limit"
	KindConcurrency Kind = "concurrency"
)

// Error is a typed error with a stable Kind and a human-readable message.
// Msg should be safe to return to clients for all kinds except Concurrency,
// which may wrap an internal transactional failure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func NotFound(msg string, err error) error    { return New(KindNotFound, msg, err) }
func Validation(msg string, err error) error  { return New(KindValidation, msg, err) }
func Conflict(msg string, err error) error    { return New(KindConflict, msg, err) }
func NotEligible(msg string, err error) error { return New(KindNotEligible, msg, err) }
func UsageLimit(msg string, err error) error  { return New(KindUsageLimit, msg, err) }
func Concurrency(msg string, err error) error { return New(KindConcurrency, msg, err) }

func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
