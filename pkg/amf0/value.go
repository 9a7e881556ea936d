// Package amf0 implements encoding and decoding of Action Message Format 0
// (AMF0), the legacy binary serialization format used by Adobe Flash and
// RTMP. The AVM+ escape marker embeds AMF3 payloads, for which this package
// delegates to package amf3.
package amf0

import (
	"time"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
	"github.com/DMA-Software/dma-goamf/pkg/amf3"
)

// AMF0 type markers as defined in the AMF0 specification.
const (
	MarkerNumber      = 0x00
	MarkerBoolean     = 0x01
	MarkerString      = 0x02
	MarkerObject      = 0x03
	MarkerMovieClip   = 0x04 // reserved, decode-only
	MarkerNull        = 0x05
	MarkerUndefined   = 0x06
	MarkerReference   = 0x07
	MarkerEcmaArray   = 0x08
	MarkerObjectEnd   = 0x09
	MarkerStrictArray = 0x0A
	MarkerDate        = 0x0B
	MarkerLongString  = 0x0C
	MarkerUnsupported = 0x0D
	MarkerRecordSet   = 0x0E // reserved, decode-only
	MarkerXMLDocument = 0x0F
	MarkerTypedObject = 0x10
	MarkerAvmPlus     = 0x11 // escape into AMF3
)

// longStringThreshold is the byte length at which the encoder switches from
// String to LongString.
const longStringThreshold = 1 << 16

// Value represents any AMF0 value. Object, EcmaArray and StrictArray are
// pointer types because the AMF0 reference table tracks instance identity:
// encoding the same pointer twice within one message emits a back-reference,
// and decoding one yields the same instance.
type Value interface {
	Type() byte
}

// Pair is an ordered string-keyed member of an AMF0 object or ECMA array.
type Pair = amf.Pair[Value]

// Number represents an AMF0 number, an IEEE-754 double.
type Number float64

func (Number) Type() byte { return MarkerNumber }

// Boolean represents an AMF0 boolean.
type Boolean bool

func (Boolean) Type() byte { return MarkerBoolean }

// String represents an AMF0 UTF-8 string. The encoder picks the short or
// long wire form by byte length; both forms decode to this type.
type String string

func (s String) Type() byte {
	if len(s) >= longStringThreshold {
		return MarkerLongString
	}
	return MarkerString
}

// Object represents an AMF0 object. A non-empty Name makes it a typed
// object (marker 0x10); an empty Name is the anonymous object (marker 0x03).
// AMF0 has no sealed/dynamic split: members are plain name/value pairs
// terminated by the object-end marker.
type Object struct {
	Name  string
	Pairs []Pair
}

func (o *Object) Type() byte {
	if o.Name != "" {
		return MarkerTypedObject
	}
	return MarkerObject
}

// Member returns the member named key.
func (o *Object) Member(key string) (Value, bool) {
	for _, p := range o.Pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// Null represents the AMF0 null value.
type Null struct{}

func (Null) Type() byte { return MarkerNull }

// Undefined represents the AMF0 undefined value. MovieClip markers also
// decode to Undefined.
type Undefined struct{}

func (Undefined) Type() byte { return MarkerUndefined }

// Unsupported is the decode-only placeholder for the Unsupported and
// RecordSet markers. It has no encode path.
type Unsupported struct{}

func (Unsupported) Type() byte { return MarkerUnsupported }

// EcmaArray represents an AMF0 ECMA (associative) array.
type EcmaArray struct {
	Pairs []Pair
}

func (*EcmaArray) Type() byte { return MarkerEcmaArray }

// StrictArray represents an AMF0 strict (positional) array.
type StrictArray struct {
	Values []Value
}

func (*StrictArray) Type() byte { return MarkerStrictArray }

// Date represents an AMF0 date as milliseconds since the Unix epoch, always
// UTC. The wire carries a timezone offset field that is written as zero and
// discarded on decode.
type Date struct {
	Millis float64
}

func (Date) Type() byte { return MarkerDate }

// NewDate creates a Date from a time.Time.
func NewDate(t time.Time) Date {
	return Date{Millis: float64(t.UnixMilli())}
}

// Time returns the date as a time.Time in UTC.
func (d Date) Time() time.Time {
	return time.UnixMilli(int64(d.Millis)).UTC()
}

// XMLDocument represents the AMF0 XML document type: a 4-byte
// length-prefixed string of serialized XML.
type XMLDocument string

func (XMLDocument) Type() byte { return MarkerXMLDocument }

// AvmPlus wraps an embedded AMF3 value (marker 0x11). The AMF3 payload is
// decoded with a fresh reference-table scope.
type AvmPlus struct {
	Value amf3.Value
}

func (AvmPlus) Type() byte { return MarkerAvmPlus }
