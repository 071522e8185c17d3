// Package perr defines the closed error taxonomy used at every boundary in
// pkarrdns. Each Kind is raised by exactly one layer and carries its own
// fixed DNS rcode / HTTP status mapping, so boundary code never has to
// guess how to report a failure it didn't originate.
package perr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pkarrdns/pkarrdns/internal/dnswire"
)

// Kind enumerates every error variant this server raises, matching the
// taxonomy table: where each is raised and how it is reported.
type Kind uint8

const (
	_ Kind = iota
	ConfigError
	BindError
	DecodeError
	SignatureError
	StaleTimestamp
	StorageError
	NotFound
	RateLimited
	LookupNxDomain
	LookupRefused
	NotImplemented
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "ConfigError"
	case BindError:
		return "BindError"
	case DecodeError:
		return "DecodeError"
	case SignatureError:
		return "SignatureError"
	case StaleTimestamp:
		return "StaleTimestamp"
	case StorageError:
		return "StorageError"
	case NotFound:
		return "NotFound"
	case RateLimited:
		return "RateLimited"
	case LookupNxDomain:
		return "LookupNxDomain"
	case LookupRefused:
		return "LookupRefused"
	case NotImplemented:
		return "NotImplemented"
	case Cancelled:
		return "Cancelled"
	default:
		return "UnknownError"
	}
}

// Fatal reports whether this kind should unwind to main and exit 1.
func (k Kind) Fatal() bool {
	return k == ConfigError || k == BindError
}

// Error is the concrete error type carrying a Kind plus context.
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

// New builds an Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// As extracts the Kind from err, defaulting to StorageError for anything
// that wasn't raised through this package (an unexpected failure is treated
// as an internal error rather than silently swallowed).
func As(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return StorageError
}

// HTTPStatus maps a Kind to the HTTP status table in the external
// interfaces section.
func (k Kind) HTTPStatus() int {
	switch k {
	case DecodeError, SignatureError:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case RateLimited:
		return http.StatusTooManyRequests
	case NotImplemented:
		return http.StatusServiceUnavailable
	case StaleTimestamp:
		return http.StatusNoContent
	default:
		return http.StatusInternalServerError
	}
}

// Rcode maps a Kind to the DNS response code table.
func (k Kind) Rcode() dnswire.Rcode {
	switch k {
	case LookupNxDomain:
		return dnswire.RcodeNXDomain
	case LookupRefused:
		return dnswire.RcodeRefused
	case NotImplemented:
		return dnswire.RcodeNotImp
	case DecodeError:
		return dnswire.RcodeFormErr
	default:
		return dnswire.RcodeServFail
	}
}
