// Package amf3 implements encoding and decoding of Action Message Format 3
// (AMF3), the compact binary serialization format introduced with
// ActionScript 3. AMF3 extends AMF0 with variable-length integers and
// per-message reference tables for strings, complex values and traits.
package amf3

import (
	"time"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

// AMF3 type markers as defined in the AMF3 specification.
const (
	MarkerUndefined    = 0x00
	MarkerNull         = 0x01
	MarkerFalse        = 0x02
	MarkerTrue         = 0x03
	MarkerInteger      = 0x04
	MarkerDouble       = 0x05
	MarkerString       = 0x06
	MarkerXMLDocument  = 0x07
	MarkerDate         = 0x08
	MarkerArray        = 0x09
	MarkerObject       = 0x0A
	MarkerXML          = 0x0B
	MarkerByteArray    = 0x0C
	MarkerVectorInt    = 0x0D
	MarkerVectorUint   = 0x0E
	MarkerVectorDouble = 0x0F
	MarkerVectorObject = 0x10
	MarkerDictionary   = 0x11
)

// Bounds of the AMF3 integer type. Integral values outside this range are
// not representable as Integer and must travel as Double.
const (
	MaxInt29 = 1<<28 - 1
	MinInt29 = -(1 << 28)
)

// Value represents any AMF3 value. Complex values (Date, Array, Object,
// ByteArray, the vectors and Dictionary) are pointer types: the reference
// tables track instance identity, so encoding the same pointer twice within
// one message emits a back-reference, and decoding a back-reference yields
// the same instance.
type Value interface {
	Type() byte
}

// Pair is an ordered string-keyed member of an AMF3 array or object.
type Pair = amf.Pair[Value]

// Undefined represents the AMF3 undefined value.
type Undefined struct{}

func (Undefined) Type() byte { return MarkerUndefined }

// Null represents the AMF3 null value.
type Null struct{}

func (Null) Type() byte { return MarkerNull }

// Boolean represents an AMF3 boolean. True and false have distinct markers
// and no payload.
type Boolean bool

func (b Boolean) Type() byte {
	if b {
		return MarkerTrue
	}
	return MarkerFalse
}

// Integer represents an AMF3 integer. Legal values lie in
// [MinInt29, MaxInt29]; the encoder promotes anything outside that range to
// Double.
type Integer int32

func (Integer) Type() byte { return MarkerInteger }

// Double represents an AMF3 IEEE-754 double.
type Double float64

func (Double) Type() byte { return MarkerDouble }

// String represents an AMF3 UTF-8 string. Non-empty strings are interned in
// the per-message string reference table by content.
type String string

func (String) Type() byte { return MarkerString }

// XMLDocument represents the legacy XML document type (marker 0x07). The
// payload is the serialized XML text.
type XMLDocument string

func (XMLDocument) Type() byte { return MarkerXMLDocument }

// XML represents the E4X XML type (marker 0x0B). Its wire shape is identical
// to XMLDocument; the distinct marker is preserved on round-trip.
type XML string

func (XML) Type() byte { return MarkerXML }

// Date represents an AMF3 date as milliseconds since the Unix epoch, always
// UTC. Dates are referenced by instance identity.
type Date struct {
	Millis float64
}

func (*Date) Type() byte { return MarkerDate }

// NewDate creates a Date from a time.Time.
func NewDate(t time.Time) *Date {
	return &Date{Millis: float64(t.UnixMilli())}
}

// Time returns the date as a time.Time in UTC.
func (d *Date) Time() time.Time {
	return time.UnixMilli(int64(d.Millis)).UTC()
}

// Array represents an AMF3 array. The wire format always carries both parts:
// an associative part of string-keyed pairs and a dense part of positional
// values, either possibly empty.
type Array struct {
	Assoc []Pair
	Dense []Value
}

func (*Array) Type() byte { return MarkerArray }

// Object represents an AMF3 object. Name is the class alias (empty for
// anonymous objects). Sealed holds the trait-declared members in declaration
// order; Dynamic marks objects that additionally carry open-ended
// DynamicMembers. A non-nil External blob marks an externalizable object
// whose payload is opaque custom bytes.
type Object struct {
	Name           string
	Sealed         []Pair
	Dynamic        bool
	DynamicMembers []Pair
	External       []byte
}

func (*Object) Type() byte { return MarkerObject }

// Member returns the sealed or dynamic member named key.
func (o *Object) Member(key string) (Value, bool) {
	for _, p := range o.Sealed {
		if p.Key == key {
			return p.Value, true
		}
	}
	for _, p := range o.DynamicMembers {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// ByteArray represents an AMF3 byte array: raw, uninterpreted octets.
type ByteArray struct {
	Data []byte
}

func (*ByteArray) Type() byte { return MarkerByteArray }

// IntVector represents a typed vector of signed 32-bit integers.
type IntVector struct {
	Fixed   bool
	Entries []int32
}

func (*IntVector) Type() byte { return MarkerVectorInt }

// UintVector represents a typed vector of unsigned 32-bit integers.
type UintVector struct {
	Fixed   bool
	Entries []uint32
}

func (*UintVector) Type() byte { return MarkerVectorUint }

// DoubleVector represents a typed vector of IEEE-754 doubles.
type DoubleVector struct {
	Fixed   bool
	Entries []float64
}

func (*DoubleVector) Type() byte { return MarkerVectorDouble }

// ObjectVector represents a typed vector of values. Name is the element
// class alias; an empty Name is the untyped vector, written as the "*"
// sentinel on the wire.
type ObjectVector struct {
	Name    string
	Fixed   bool
	Entries []Value
}

func (*ObjectVector) Type() byte { return MarkerVectorObject }

// Entry is one key/value pair of a Dictionary. Keys are full values, not
// restricted to strings.
type Entry struct {
	Key   Value
	Value Value
}

// Dictionary represents an AMF3 dictionary. Weak marks weakly-keyed
// dictionaries; the flag is carried on the wire but has no meaning outside
// the ActionScript VM.
type Dictionary struct {
	Weak    bool
	Entries []Entry
}

func (*Dictionary) Type() byte { return MarkerDictionary }
