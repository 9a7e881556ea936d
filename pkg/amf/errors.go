// Package amf provides the surface shared by the AMF0 and AMF3 codecs:
// the error taxonomy, the ordered key/value pair representation, and the
// process-wide trait registry that maps class aliases to field layouts.
package amf

import (
	"errors"
	"fmt"
)

// Sentinel errors for the codec packages. Wrapped errors carry context
// (marker byte, reference index, class alias) and match these with errors.Is.
var (
	// ErrTruncated is returned when the input ends in the middle of a field.
	ErrTruncated = errors.New("amf: truncated input")

	// ErrMalformedVarint is returned when the input ends before a U29
	// variable-length integer terminates.
	ErrMalformedVarint = errors.New("amf: malformed u29 varint")

	// ErrUnknownMarker is returned when a type marker byte is not part of
	// the format. The format has no resynchronization mechanism, so the
	// whole message must be discarded.
	ErrUnknownMarker = errors.New("amf: unknown type marker")

	// ErrDanglingReference is returned when a back-reference index exceeds
	// the size of the relevant reference table.
	ErrDanglingReference = errors.New("amf: reference index out of range")

	// ErrUnexpectedObjectEnd is returned when an AMF0 object-end marker
	// appears outside a key/value pair sequence.
	ErrUnexpectedObjectEnd = errors.New("amf: unexpected object-end marker")

	// ErrTraitNotFound reports a class alias with no registered trait
	// descriptor. The codecs themselves never require registration; the
	// sentinel is for callers that resolve aliases strictly before
	// encoding.
	ErrTraitNotFound = errors.New("amf: trait alias not registered")

	// ErrExternalizable is returned when decoding reaches an externalizable
	// object. Its payload carries no length, so a generic decoder cannot
	// skip or interpret it.
	ErrExternalizable = errors.New("amf: externalizable object is not generically decodable")

	// ErrIntegerRange is returned by a strict AMF3 encoder for integers
	// outside the 29-bit range instead of silently promoting to a double.
	ErrIntegerRange = errors.New("amf: integer outside 29-bit range")

	// ErrU29Range is returned when a length or index does not fit in 29 bits.
	ErrU29Range = errors.New("amf: value outside u29 range")

	// ErrDepthLimit is returned when decoding exceeds the configured
	// nesting depth.
	ErrDepthLimit = errors.New("amf: nesting depth limit exceeded")

	// ErrUnencodableValue is returned when a value has no wire
	// representation, such as the AMF0 unsupported placeholder.
	ErrUnencodableValue = errors.New("amf: value cannot be encoded")
)

// DefaultMaxDepth is the nesting depth ceiling decoders enforce when none is
// configured. The wire format itself imposes no limit, but recursion depth is
// proportional to nesting depth, so adversarial input must be bounded.
const DefaultMaxDepth = 128

// MarkerError reports an unknown type marker byte.
type MarkerError struct {
	Marker byte
}

func (e *MarkerError) Error() string {
	return fmt.Sprintf("amf: unknown type marker 0x%02X", e.Marker)
}

func (e *MarkerError) Unwrap() error { return ErrUnknownMarker }

// ReferenceError reports a back-reference index past the end of a
// reference table.
type ReferenceError struct {
	Table string // "string", "object" or "trait"
	Index int
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("amf: dangling %s reference %d", e.Table, e.Index)
}

func (e *ReferenceError) Unwrap() error { return ErrDanglingReference }

// ExternalizableError reports an externalizable object encountered during
// generic decoding, identified by its class alias.
type ExternalizableError struct {
	Alias string
}

func (e *ExternalizableError) Error() string {
	return fmt.Sprintf("amf: externalizable class %q is not generically decodable", e.Alias)
}

func (e *ExternalizableError) Unwrap() error { return ErrExternalizable }
