// Package enginerrs defines the error taxonomy shared across the
// storage core (spec §7), so a caller several layers removed from the
// originating package can still classify a failure with errors.Is/As
// without importing that package's sentinel variables directly.
package enginerrs

import "errors"

// Kind classifies a failure the way §7 of the design groups them.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyExists
	KindCorrupted
	KindOutOfSpace
	KindRowTooLarge
	KindBufferExhausted
	KindIoError
	KindConstraint
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindCorrupted:
		return "corrupted"
	case KindOutOfSpace:
		return "out_of_space"
	case KindRowTooLarge:
		return "row_too_large"
	case KindBufferExhausted:
		return "buffer_exhausted"
	case KindIoError:
		return "io_error"
	case KindConstraint:
		return "constraint"
	default:
		return "unknown"
	}
}

// Classified is implemented by any package-local error wrapper that
// knows its own Kind (e.g. bufferpool.Error, page.Error).
type Classified interface {
	error
	Kind() Kind
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var c Classified
	if errors.As(err, &c) {
		return c.Kind() == kind
	}
	return false
}

// KindOf extracts the Kind from err, or KindUnknown if err does not
// carry one.
func KindOf(err error) Kind {
	var c Classified
	if errors.As(err, &c) {
		return c.Kind()
	}
	return KindUnknown
}
