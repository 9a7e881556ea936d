package amf0

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
	"github.com/DMA-Software/dma-goamf/pkg/amf3"
)

func encodeValue(t *testing.T, v Value) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(v))
	return buf.Bytes()
}

func decodeValue(t *testing.T, b []byte) Value {
	t.Helper()
	v, err := NewDecoder(bytes.NewReader(b)).Decode()
	require.NoError(t, err)
	return v
}

func roundTrip(t *testing.T, v Value) Value {
	t.Helper()
	return decodeValue(t, encodeValue(t, v))
}

func doubleBytes(f float64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(f))
	return b
}

func TestNumber(t *testing.T) {
	got := encodeValue(t, Number(1234.5))
	assert.Equal(t, append([]byte{0x00}, doubleBytes(1234.5)...), got)
	assert.Equal(t, Number(1234.5), decodeValue(t, got))
}

func TestNumberSpecials(t *testing.T) {
	nan := roundTrip(t, Number(math.NaN()))
	assert.True(t, math.IsNaN(float64(nan.(Number))))

	pos := roundTrip(t, Number(math.Inf(1)))
	assert.True(t, math.IsInf(float64(pos.(Number)), 1))

	neg := roundTrip(t, Number(math.Inf(-1)))
	assert.True(t, math.IsInf(float64(neg.(Number)), -1))
}

func TestBoolean(t *testing.T) {
	assert.Equal(t, []byte{0x01, 0x01}, encodeValue(t, Boolean(true)))
	assert.Equal(t, []byte{0x01, 0x00}, encodeValue(t, Boolean(false)))
	assert.Equal(t, Boolean(true), decodeValue(t, []byte{0x01, 0x01}))
	// Any nonzero byte reads as true.
	assert.Equal(t, Boolean(true), decodeValue(t, []byte{0x01, 0x7F}))
}

func TestString(t *testing.T) {
	got := encodeValue(t, String("Hello, world!"))
	want := append([]byte{0x02, 0x00, 0x0D}, "Hello, world!"...)
	assert.Equal(t, want, got)
	assert.Equal(t, String("Hello, world!"), decodeValue(t, got))
}

func TestLongString(t *testing.T) {
	s := String(strings.Repeat("a", 1<<16))
	got := encodeValue(t, s)
	assert.Equal(t, byte(MarkerLongString), got[0])
	assert.Equal(t, uint32(1<<16), binary.BigEndian.Uint32(got[1:5]))
	assert.Equal(t, s, decodeValue(t, got))
}

func TestObject(t *testing.T) {
	o := &Object{Pairs: []Pair{
		{Key: "msg", Value: String("Hello, world! こんにちは、世界！")},
		{Key: "index", Value: Number(0)},
	}}
	got := encodeValue(t, o)
	assert.Equal(t, byte(MarkerObject), got[0])
	assert.Equal(t, []byte{0x00, 0x00, 0x09}, got[len(got)-3:])
	assert.Equal(t, o, decodeValue(t, got))
}

func TestTypedObject(t *testing.T) {
	o := &Object{Name: "com.example.Foo", Pairs: []Pair{
		{Key: "index", Value: Number(0)},
		{Key: "msg", Value: String("fugaaaaaaa")},
	}}
	got := encodeValue(t, o)
	assert.Equal(t, byte(MarkerTypedObject), got[0])
	assert.Equal(t, o, decodeValue(t, got))
}

func TestTypedObjectRegistryOrder(t *testing.T) {
	reg := amf.NewTraitRegistry()
	require.NoError(t, reg.Register(amf.Trait{
		Alias:  "com.example.Point",
		Fields: []string{"x", "y"},
	}))

	var buf bytes.Buffer
	e := NewEncoder(&buf)
	e.Registry = reg
	// Members out of trait order, one missing.
	require.NoError(t, e.Encode(&Object{Name: "com.example.Point", Pairs: []Pair{
		{Key: "y", Value: Number(2)},
	}}))

	dec, ok := decodeValue(t, buf.Bytes()).(*Object)
	require.True(t, ok)
	require.Len(t, dec.Pairs, 2)
	assert.Equal(t, Pair{Key: "x", Value: Undefined{}}, dec.Pairs[0])
	assert.Equal(t, Pair{Key: "y", Value: Number(2)}, dec.Pairs[1])
}

func TestNullUndefined(t *testing.T) {
	assert.Equal(t, []byte{0x05}, encodeValue(t, Null{}))
	assert.Equal(t, []byte{0x06}, encodeValue(t, Undefined{}))
	assert.Equal(t, Null{}, decodeValue(t, []byte{0x05}))
	assert.Equal(t, Undefined{}, decodeValue(t, []byte{0x06}))
}

func TestEcmaArray(t *testing.T) {
	a := &EcmaArray{Pairs: []Pair{
		{Key: "en", Value: String("Hello, world!")},
		{Key: "ja", Value: String("こんにちは、世界！")},
		{Key: "zh", Value: String("你好世界")},
	}}
	got := encodeValue(t, a)
	assert.Equal(t, byte(MarkerEcmaArray), got[0])
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(got[1:5]))
	assert.Equal(t, a, decodeValue(t, got))
}

func TestEcmaArrayIgnoresAdvisoryCount(t *testing.T) {
	// A lying count field does not matter; the sentinel terminates.
	payload := []byte{0x08, 0x00, 0x00, 0x00, 0x63}
	payload = append(payload, 0x00, 0x01, 'k', 0x05) // k: null
	payload = append(payload, 0x00, 0x00, 0x09)

	dec, ok := decodeValue(t, payload).(*EcmaArray)
	require.True(t, ok)
	require.Len(t, dec.Pairs, 1)
	assert.Equal(t, Pair{Key: "k", Value: Null{}}, dec.Pairs[0])
}

func TestStrictArray(t *testing.T) {
	a := &StrictArray{Values: []Value{Number(1.1), Number(2), Number(3.3)}}
	got := encodeValue(t, a)
	assert.Equal(t, byte(MarkerStrictArray), got[0])
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(got[1:5]))
	assert.Equal(t, a, decodeValue(t, got))
}

func TestDate(t *testing.T) {
	d := Date{Millis: 1111111111000}
	got := encodeValue(t, d)

	want := append([]byte{0x0B}, doubleBytes(1111111111000)...)
	want = append(want, 0x00, 0x00) // timezone, always zero
	assert.Equal(t, want, got)

	dec, ok := decodeValue(t, got).(Date)
	require.True(t, ok)
	assert.Equal(t, time.UnixMilli(1111111111000).UTC(), dec.Time())
}

func TestDateIgnoresTimezone(t *testing.T) {
	payload := append([]byte{0x0B}, doubleBytes(0)...)
	payload = append(payload, 0x01, 0x2C) // nonzero offset on the wire
	assert.Equal(t, Date{Millis: 0}, decodeValue(t, payload))
}

func TestXMLDocument(t *testing.T) {
	x := XMLDocument("<parent><child prop=\"test\" /></parent>")
	got := encodeValue(t, x)
	assert.Equal(t, byte(MarkerXMLDocument), got[0])
	assert.Equal(t, x, decodeValue(t, got))
}

func TestReferenceSharedInstance(t *testing.T) {
	shared := &Object{Pairs: []Pair{
		{Key: "index", Value: Number(0)},
		{Key: "msg", Value: String("hi")},
	}}

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).EncodeSequence(shared, shared))
	got := buf.Bytes()

	// Second value is a two-byte reference to table slot 0.
	assert.Equal(t, []byte{0x07, 0x00, 0x00}, got[len(got)-3:])

	values, err := NewDecoder(bytes.NewReader(got)).DecodeAll()
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Same(t, values[0], values[1])
}

func TestReferenceInsideArray(t *testing.T) {
	shared := &Object{Pairs: []Pair{{Key: "n", Value: Number(1)}}}
	a := &StrictArray{Values: []Value{shared, shared}}
	got := encodeValue(t, a)

	// The array occupies slot 0, the object slot 1.
	assert.Equal(t, []byte{0x07, 0x00, 0x01}, got[len(got)-3:])

	dec, ok := decodeValue(t, got).(*StrictArray)
	require.True(t, ok)
	assert.Same(t, dec.Values[0], dec.Values[1])
}

func TestReferenceTableFull(t *testing.T) {
	// The array takes slot 0, so the 65536th object overflows the 2-byte
	// index space.
	values := make([]Value, 1<<16)
	for i := range values {
		values[i] = &Object{}
	}

	var buf bytes.Buffer
	err := NewEncoder(&buf).Encode(&StrictArray{Values: values})
	require.Error(t, err)
	assert.ErrorIs(t, err, amf.ErrUnencodableValue)
}

func TestDanglingReference(t *testing.T) {
	_, err := NewDecoder(bytes.NewReader([]byte{0x07, 0x00, 0x05})).Decode()
	require.Error(t, err)
	assert.ErrorIs(t, err, amf.ErrDanglingReference)
}

func TestReservedMarkers(t *testing.T) {
	assert.Equal(t, Undefined{}, decodeValue(t, []byte{MarkerMovieClip}))
	assert.Equal(t, Unsupported{}, decodeValue(t, []byte{MarkerUnsupported}))
	assert.Equal(t, Unsupported{}, decodeValue(t, []byte{MarkerRecordSet}))
}

func TestUnsupportedDoesNotEncode(t *testing.T) {
	var buf bytes.Buffer
	err := NewEncoder(&buf).Encode(Unsupported{})
	require.Error(t, err)
	assert.ErrorIs(t, err, amf.ErrUnencodableValue)
}

func TestBareObjectEnd(t *testing.T) {
	_, err := NewDecoder(bytes.NewReader([]byte{MarkerObjectEnd})).Decode()
	require.Error(t, err)
	assert.ErrorIs(t, err, amf.ErrUnexpectedObjectEnd)
}

func TestUnknownMarker(t *testing.T) {
	_, err := NewDecoder(bytes.NewReader([]byte{0x42})).Decode()
	require.Error(t, err)

	var markerErr *amf.MarkerError
	require.ErrorAs(t, err, &markerErr)
	assert.Equal(t, byte(0x42), markerErr.Marker)
}

func TestAvmPlus(t *testing.T) {
	v := AvmPlus{Value: amf3.Integer(5)}
	got := encodeValue(t, v)
	assert.Equal(t, []byte{0x11, 0x04, 0x05}, got)
	assert.Equal(t, v, decodeValue(t, got))
}

func TestAvmPlusFreshScope(t *testing.T) {
	// The AMF3 payload starts its own reference tables, so a complex
	// value delegated through the escape round-trips intact.
	inner := &amf3.Array{Dense: []amf3.Value{
		amf3.String("foo"), amf3.String("foo"),
	}}
	assert.Equal(t, AvmPlus{Value: inner}, roundTrip(t, AvmPlus{Value: inner}))
}

func TestDecodeAllStopsAtCleanBoundary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).EncodeSequence(Number(1), String("two"), Null{}))

	values, err := NewDecoder(bytes.NewReader(buf.Bytes())).DecodeAll()
	require.NoError(t, err)
	assert.Equal(t, []Value{Number(1), String("two"), Null{}}, values)
}

func TestDecodeAllTruncatedMidValue(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(Number(1)))

	_, err := NewDecoder(bytes.NewReader(buf.Bytes()[:5])).DecodeAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, amf.ErrTruncated)
}

func TestDepthLimit(t *testing.T) {
	payload := []byte{0x05}
	for i := 0; i < 6; i++ {
		nested := []byte{0x0A, 0x00, 0x00, 0x00, 0x01}
		payload = append(nested, payload...)
	}

	d := NewDecoder(bytes.NewReader(payload))
	d.MaxDepth = 4
	_, err := d.Decode()
	require.Error(t, err)
	assert.ErrorIs(t, err, amf.ErrDepthLimit)
}

func TestFromNative(t *testing.T) {
	v, err := FromNative(nil)
	require.NoError(t, err)
	assert.Equal(t, Null{}, v)

	v, err = FromNative(42)
	require.NoError(t, err)
	assert.Equal(t, Number(42), v)

	v, err = FromNative("hello")
	require.NoError(t, err)
	assert.Equal(t, String("hello"), v)

	ts := time.UnixMilli(1111111111000).UTC()
	v, err = FromNative(ts)
	require.NoError(t, err)
	assert.Equal(t, ts, v.(Date).Time())

	v, err = FromNative([]any{true, 1.5})
	require.NoError(t, err)
	assert.Equal(t, &StrictArray{Values: []Value{Boolean(true), Number(1.5)}}, v)

	v, err = FromNative(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, &Object{Pairs: []Pair{
		{Key: "a", Value: Number(1)},
		{Key: "b", Value: Number(2)},
	}}, v)

	_, err = FromNative(struct{}{})
	assert.ErrorIs(t, err, amf.ErrUnencodableValue)
}
