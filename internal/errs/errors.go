// Package errs defines the error taxonomy shared by every engine in the
// coordination core. Handlers never return ad-hoc error strings; they return
// a Kind plus an optional wrapped cause so the runner can decide whether a
// failure is a transient no-op or a protocol-fatal state transition.
package errs

import "fmt"

// Kind enumerates the error taxonomy. Kinds are coarse-grained on purpose:
// the runner branches on Kind, not on the underlying cause.
type Kind int

const (
	// Config covers bad threshold/total, unknown curve, invalid address,
	// duplicate wallet name.
	Config Kind = iota
	// NotFound covers unknown session, signing, wallet, or identifier.
	NotFound
	// RosterMismatch covers a participant list diverging from expectation.
	RosterMismatch
	// PeerDisconnected covers a channel closed or failed mid-protocol.
	PeerDisconnected
	// CryptoDecode covers a package that fails to deserialize.
	CryptoDecode
	// DkgIntegrity covers part3 or aggregation reporting inconsistent shares.
	DkgIntegrity
	// Timeout covers transport establishment exceeding its bound.
	Timeout
	// Storage covers disk I/O or decryption failure (wrong password included).
	Storage
	// Transport covers a send failure unrelated to peer state.
	Transport
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "config"
	case NotFound:
		return "not_found"
	case RosterMismatch:
		return "roster_mismatch"
	case PeerDisconnected:
		return "peer_disconnected"
	case CryptoDecode:
		return "crypto_decode"
	case DkgIntegrity:
		return "dkg_integrity"
	case Timeout:
		return "timeout"
	case Storage:
		return "storage"
	case Transport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error wraps a Kind, the operation that produced it, and an optional cause.
// It implements Unwrap so callers can use errors.Is/errors.As against the
// wrapped cause while still branching on Kind via errors.As(err, &frostErr).
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error with no wrapped cause.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap constructs an *Error wrapping cause.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	fe, ok := err.(*Error)
	if !ok {
		return false
	}
	return fe.Kind == kind
}

// Fatal reports whether a Kind is protocol-fatal — one that should transition
// the owning engine's state machine to Failed rather than being logged and
// dropped as a transient no-op.
func Fatal(kind Kind) bool {
	switch kind {
	case RosterMismatch, PeerDisconnected, CryptoDecode, DkgIntegrity, Timeout:
		return true
	default:
		return false
	}
}
