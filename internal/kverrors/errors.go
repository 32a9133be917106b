// Package kverrors defines the sentinel error taxonomy shared by every
// layer of the store, from the on-disk log up through the HTTP transport.
package kverrors

import "errors"

// Standard store errors. Callers should compare with errors.Is rather
// than on the formatted message, since every layer wraps these with
// fmt.Errorf("...: %w", ...) to add context.
var (
	// ErrIO is returned when an underlying disk operation (seek, read,
	// write) fails.
	ErrIO = errors.New("io error")

	// ErrDecode is returned when a descriptor record cannot be decoded.
	ErrDecode = errors.New("decode error")

	// ErrCorruptLog is returned when a data record's framing magic does
	// not match the expected value.
	ErrCorruptLog = errors.New("corrupt log")

	// ErrValidation is returned for a malformed key, unknown kind, or a
	// kind-specific payload that fails its canonicalization rules.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when a requested key is absent from the
	// index.
	ErrNotFound = errors.New("not found")

	// ErrPoisonedLock is returned when index mutation recovers from an
	// unexpected panic; the index is left in a best-effort consistent
	// state but the caller should treat this as fatal-ish.
	ErrPoisonedLock = errors.New("poisoned lock")

	// ErrScript is returned when the script runtime reports an uncaught
	// JavaScript exception or evaluation failure.
	ErrScript = errors.New("script error")

	// ErrTimeout names a script reply timeout. script.Host.ExecNow does
	// not return it: a wait that runs past its limit yields an empty
	// result and a nil error.
	ErrTimeout = errors.New("timeout")

	// ErrUnauthorized names a bearer-token mismatch; the HTTP transport
	// maps it to 401. The token middleware itself writes its 401
	// response directly and does not return this error.
	ErrUnauthorized = errors.New("unauthorized")
)
