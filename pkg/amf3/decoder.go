package amf3

import (
	"fmt"
	"io"

	"github.com/DMA-Software/dma-goamf/internal/wire"
	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

// Decoder reads AMF3 values from an underlying reader. Reference tables are
// reset at the start of every Decode call. Decode errors are fatal for the
// whole message: the format has no resynchronization points, so a partially
// consumed stream cannot be recovered.
type Decoder struct {
	// MaxDepth bounds value nesting; zero means amf.DefaultMaxDepth.
	MaxDepth int

	r       *wire.Reader
	strings []string
	objects []Value
	traits  []amf.Trait
	depth   int
}

// NewDecoder creates an AMF3 decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: wire.NewReader(r)}
}

// Decode reads one complete AMF3 value from the stream.
func (d *Decoder) Decode() (Value, error) {
	d.strings = d.strings[:0]
	d.objects = d.objects[:0]
	d.traits = d.traits[:0]
	d.depth = 0
	return d.decodeValue()
}

func (d *Decoder) maxDepth() int {
	if d.MaxDepth > 0 {
		return d.MaxDepth
	}
	return amf.DefaultMaxDepth
}

func (d *Decoder) decodeValue() (Value, error) {
	if d.depth >= d.maxDepth() {
		return nil, fmt.Errorf("%w (%d)", amf.ErrDepthLimit, d.maxDepth())
	}
	d.depth++
	defer func() { d.depth-- }()

	marker, err := d.r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch marker {
	case MarkerUndefined:
		return Undefined{}, nil
	case MarkerNull:
		return Null{}, nil
	case MarkerFalse:
		return Boolean(false), nil
	case MarkerTrue:
		return Boolean(true), nil
	case MarkerInteger:
		return d.decodeInteger()
	case MarkerDouble:
		return d.decodeDouble()
	case MarkerString:
		return d.decodeString()
	case MarkerXMLDocument:
		return d.decodeXMLText(MarkerXMLDocument)
	case MarkerDate:
		return d.decodeDate()
	case MarkerArray:
		return d.decodeArray()
	case MarkerObject:
		return d.decodeObject()
	case MarkerXML:
		return d.decodeXMLText(MarkerXML)
	case MarkerByteArray:
		return d.decodeByteArray()
	case MarkerVectorInt:
		return d.decodeIntVector()
	case MarkerVectorUint:
		return d.decodeUintVector()
	case MarkerVectorDouble:
		return d.decodeDoubleVector()
	case MarkerVectorObject:
		return d.decodeObjectVector()
	case MarkerDictionary:
		return d.decodeDictionary()
	default:
		return nil, &amf.MarkerError{Marker: marker}
	}
}

// objectAt resolves a back reference into the object table.
func (d *Decoder) objectAt(idx uint32) (Value, error) {
	if int(idx) >= len(d.objects) {
		return nil, &amf.ReferenceError{Table: "object", Index: int(idx)}
	}
	return d.objects[idx], nil
}

// remember appends a newly materialized complex value to the object table.
// Values enter the table before their contents decode, so back references
// inside a value resolve to the value itself.
func (d *Decoder) remember(v Value) {
	d.objects = append(d.objects, v)
}

// readUTF8 reads a string through the string reference table. Non-empty
// literals are interned; empty strings never are.
func (d *Decoder) readUTF8() (string, error) {
	h, err := d.r.ReadU29()
	if err != nil {
		return "", err
	}
	if h&1 == 0 {
		idx := h >> 1
		if int(idx) >= len(d.strings) {
			return "", &amf.ReferenceError{Table: "string", Index: int(idx)}
		}
		return d.strings[idx], nil
	}
	n := h >> 1
	if n == 0 {
		return "", nil
	}
	buf, err := d.r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	s := string(buf)
	d.strings = append(d.strings, s)
	return s, nil
}

// decodePairs reads string-keyed pairs until the empty-key terminator.
func (d *Decoder) decodePairs() ([]Pair, error) {
	var pairs []Pair
	for {
		key, err := d.readUTF8()
		if err != nil {
			return nil, err
		}
		if key == "" {
			return pairs, nil
		}
		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, Pair{Key: key, Value: v})
	}
}

func (d *Decoder) decodeInteger() (Value, error) {
	raw, err := d.r.ReadU29()
	if err != nil {
		return nil, err
	}
	// Sign extension: bit 28 set means the value is negative under the
	// two's-complement-in-29-bits convention.
	n := int32(raw)
	if raw >= 1<<28 {
		n = int32(raw) - 1<<29
	}
	return Integer(n), nil
}

func (d *Decoder) decodeDouble() (Value, error) {
	f, err := d.r.ReadFloat64()
	if err != nil {
		return nil, err
	}
	return Double(f), nil
}

func (d *Decoder) decodeString() (Value, error) {
	s, err := d.readUTF8()
	if err != nil {
		return nil, err
	}
	return String(s), nil
}

// decodeXMLText decodes both XML type markers. They share the object
// reference space and differ only in the marker preserved on round-trip.
func (d *Decoder) decodeXMLText(marker byte) (Value, error) {
	h, err := d.r.ReadU29()
	if err != nil {
		return nil, err
	}
	if h&1 == 0 {
		return d.objectAt(h >> 1)
	}
	buf, err := d.r.ReadBytes(int(h >> 1))
	if err != nil {
		return nil, err
	}
	var v Value
	if marker == MarkerXML {
		v = XML(buf)
	} else {
		v = XMLDocument(buf)
	}
	d.remember(v)
	return v, nil
}

func (d *Decoder) decodeDate() (Value, error) {
	h, err := d.r.ReadU29()
	if err != nil {
		return nil, err
	}
	if h&1 == 0 {
		return d.objectAt(h >> 1)
	}
	dt := &Date{}
	d.remember(dt)
	if dt.Millis, err = d.r.ReadFloat64(); err != nil {
		return nil, err
	}
	return dt, nil
}

func (d *Decoder) decodeArray() (Value, error) {
	h, err := d.r.ReadU29()
	if err != nil {
		return nil, err
	}
	if h&1 == 0 {
		return d.objectAt(h >> 1)
	}
	arr := &Array{}
	d.remember(arr)
	if arr.Assoc, err = d.decodePairs(); err != nil {
		return nil, err
	}
	for i := uint32(0); i < h>>1; i++ {
		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		arr.Dense = append(arr.Dense, v)
	}
	return arr, nil
}

func (d *Decoder) decodeObject() (Value, error) {
	h, err := d.r.ReadU29()
	if err != nil {
		return nil, err
	}
	if h&1 == 0 {
		return d.objectAt(h >> 1)
	}
	obj := &Object{}
	d.remember(obj)

	u := h >> 1
	var tr amf.Trait
	switch {
	case u&1 == 0:
		idx := int(u >> 1)
		if idx >= len(d.traits) {
			return nil, &amf.ReferenceError{Table: "trait", Index: idx}
		}
		tr = d.traits[idx]
	case u&0x02 != 0:
		// Externalizable: the payload carries no length, so generic
		// decoding cannot continue past this point.
		alias, err := d.readUTF8()
		if err != nil {
			return nil, err
		}
		return nil, &amf.ExternalizableError{Alias: alias}
	default:
		dynamic := u&0x04 != 0
		count := int(u >> 3)
		alias, err := d.readUTF8()
		if err != nil {
			return nil, err
		}
		var fields []string
		for i := 0; i < count; i++ {
			f, err := d.readUTF8()
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
		}
		tr = amf.Trait{Alias: alias, Fields: fields, Dynamic: dynamic}
		d.traits = append(d.traits, tr)
	}

	obj.Name = tr.Alias
	obj.Dynamic = tr.Dynamic
	for _, f := range tr.Fields {
		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		obj.Sealed = append(obj.Sealed, Pair{Key: f, Value: v})
	}
	if tr.Dynamic {
		if obj.DynamicMembers, err = d.decodePairs(); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

func (d *Decoder) decodeByteArray() (Value, error) {
	h, err := d.r.ReadU29()
	if err != nil {
		return nil, err
	}
	if h&1 == 0 {
		return d.objectAt(h >> 1)
	}
	ba := &ByteArray{}
	d.remember(ba)
	if ba.Data, err = d.r.ReadBytes(int(h >> 1)); err != nil {
		return nil, err
	}
	return ba, nil
}

// readVectorHeader reads the shared ref-or-length / fixed-flag prefix of the
// vector types, returning the resolved back reference when there is one.
func (d *Decoder) readVectorHeader() (ref Value, n uint32, fixed bool, err error) {
	h, err := d.r.ReadU29()
	if err != nil {
		return nil, 0, false, err
	}
	if h&1 == 0 {
		v, err := d.objectAt(h >> 1)
		return v, 0, false, err
	}
	b, err := d.r.ReadByte()
	if err != nil {
		return nil, 0, false, err
	}
	return nil, h >> 1, b != 0, nil
}

func (d *Decoder) decodeIntVector() (Value, error) {
	ref, n, fixed, err := d.readVectorHeader()
	if ref != nil || err != nil {
		return ref, err
	}
	vec := &IntVector{Fixed: fixed}
	d.remember(vec)
	for i := uint32(0); i < n; i++ {
		v, err := d.r.ReadInt32()
		if err != nil {
			return nil, err
		}
		vec.Entries = append(vec.Entries, v)
	}
	return vec, nil
}

func (d *Decoder) decodeUintVector() (Value, error) {
	ref, n, fixed, err := d.readVectorHeader()
	if ref != nil || err != nil {
		return ref, err
	}
	vec := &UintVector{Fixed: fixed}
	d.remember(vec)
	for i := uint32(0); i < n; i++ {
		v, err := d.r.ReadUint32()
		if err != nil {
			return nil, err
		}
		vec.Entries = append(vec.Entries, v)
	}
	return vec, nil
}

func (d *Decoder) decodeDoubleVector() (Value, error) {
	ref, n, fixed, err := d.readVectorHeader()
	if ref != nil || err != nil {
		return ref, err
	}
	vec := &DoubleVector{Fixed: fixed}
	d.remember(vec)
	for i := uint32(0); i < n; i++ {
		v, err := d.r.ReadFloat64()
		if err != nil {
			return nil, err
		}
		vec.Entries = append(vec.Entries, v)
	}
	return vec, nil
}

func (d *Decoder) decodeObjectVector() (Value, error) {
	ref, n, fixed, err := d.readVectorHeader()
	if ref != nil || err != nil {
		return ref, err
	}
	vec := &ObjectVector{Fixed: fixed}
	d.remember(vec)
	name, err := d.readUTF8()
	if err != nil {
		return nil, err
	}
	if name != "*" {
		vec.Name = name
	}
	for i := uint32(0); i < n; i++ {
		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		vec.Entries = append(vec.Entries, v)
	}
	return vec, nil
}

func (d *Decoder) decodeDictionary() (Value, error) {
	h, err := d.r.ReadU29()
	if err != nil {
		return nil, err
	}
	if h&1 == 0 {
		return d.objectAt(h >> 1)
	}
	weak, err := d.r.ReadByte()
	if err != nil {
		return nil, err
	}
	dict := &Dictionary{Weak: weak == 1}
	d.remember(dict)
	for i := uint32(0); i < h>>1; i++ {
		k, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		dict.Entries = append(dict.Entries, Entry{Key: k, Value: v})
	}
	return dict, nil
}
