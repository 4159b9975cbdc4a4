package transport

import "errors"

// ErrorKind classifies a delivery failure. Callers branch on the kind, not
// on error strings.
type ErrorKind int

const (
	// KindPermanent covers malformed requests and anything not worth a
	// fallback-specific treatment.
	KindPermanent ErrorKind = iota

	// KindTransient covers timeouts, rate limits and server-side errors.
	KindTransient

	// KindUnreachable means the recipient cannot be messaged at all
	// (blocked the bot, never started it, deactivated, unknown id).
	KindUnreachable
)

// Error wraps a platform error with its classification.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func Unreachable(err error) error { return &Error{Kind: KindUnreachable, Err: err} }
func Transient(err error) error   { return &Error{Kind: KindTransient, Err: err} }
func Permanent(err error) error   { return &Error{Kind: KindPermanent, Err: err} }

// KindOf extracts the classification from err, defaulting to permanent.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindPermanent
}
