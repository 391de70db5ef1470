package models

import "errors"

// ErrKind classifies an error independent of transport, per spec §7. Only
// ErrKindAuth and ErrKindInvariant abort a session outright; the rest are
// handled locally by the component that produced them.
type ErrKind string

const (
	ErrKindTransient ErrKind = "transient"  // retry inside adapter; surface as warning
	ErrKindAuth      ErrKind = "auth"       // terminal for the session -> ERROR
	ErrKindRejected  ErrKind = "rejected"   // insufficient margin / invalid size
	ErrKindNotFound  ErrKind = "not_found"  // closing an already-closed position
	ErrKindInvariant ErrKind = "invariant"  // internal bug: session -> ERROR, do not propagate
	ErrKindConfig    ErrKind = "config"     // registration-time only, never produces an engine
)

// KindedError wraps an underlying error with its taxonomy kind.
type KindedError struct {
	Kind ErrKind
	Err  error
}

func (e *KindedError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *KindedError) Unwrap() error {
	return e.Err
}

// NewKindedError wraps err with the given kind. A nil err yields a nil
// *KindedError-typed-as-error is avoided by returning nil directly.
func NewKindedError(kind ErrKind, err error) error {
	if err == nil {
		return nil
	}
	return &KindedError{Kind: kind, Err: err}
}

// KindOf extracts the ErrKind from err, defaulting to ErrKindTransient if
// err is not a *KindedError (the conservative choice: retry rather than
// abort on an unclassified error).
func KindOf(err error) ErrKind {
	var ke *KindedError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ErrKindTransient
}
