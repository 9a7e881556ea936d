package amf3

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/DMA-Software/dma-goamf/internal/wire"
	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

// Encoder writes AMF3 values to an underlying writer. Reference tables are
// reset at the start of every Encode call, so each call produces one
// self-contained message. An Encoder must not be used concurrently.
type Encoder struct {
	// Registry resolves class aliases to trait descriptors for typed
	// objects. When nil, amf.DefaultRegistry is used.
	Registry *amf.TraitRegistry

	// StrictIntegers makes Encode fail with amf.ErrIntegerRange for
	// integers outside [MinInt29, MaxInt29] instead of silently promoting
	// them to Double.
	StrictIntegers bool

	w        *wire.Writer
	strings  map[string]int
	objects  map[any]int
	objCount int
	traits   map[string]int
}

// NewEncoder creates an AMF3 encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: wire.NewWriter(w)}
}

// Encode writes one value as a complete AMF3 message. The string, object and
// trait reference tables start empty; repeated instances within the value
// tree are written as back-references.
func (e *Encoder) Encode(v Value) error {
	e.strings = make(map[string]int)
	e.objects = make(map[any]int)
	e.objCount = 0
	e.traits = make(map[string]int)
	return e.encodeValue(v)
}

func (e *Encoder) registry() *amf.TraitRegistry {
	if e.Registry != nil {
		return e.Registry
	}
	return amf.DefaultRegistry
}

// lookupObject returns the reference index of a previously encoded instance.
func (e *Encoder) lookupObject(key any) (int, bool) {
	idx, ok := e.objects[key]
	return idx, ok
}

// registerObject assigns the next object table index to key. Passing nil
// claims the slot without making it addressable; XMLDocument and XML are
// value types with no instance identity, but they still occupy table slots
// so that later indices line up with what a decoder builds.
func (e *Encoder) registerObject(key any) {
	if key != nil {
		e.objects[key] = e.objCount
	}
	e.objCount++
}

func (e *Encoder) encodeValue(v Value) error {
	switch v := v.(type) {
	case nil:
		return e.w.WriteByte(MarkerNull)
	case Undefined:
		return e.w.WriteByte(MarkerUndefined)
	case Null:
		return e.w.WriteByte(MarkerNull)
	case Boolean:
		return e.w.WriteByte(v.Type())
	case Integer:
		return e.encodeInteger(int32(v))
	case Double:
		return e.encodeDouble(float64(v))
	case String:
		return e.encodeString(string(v))
	case XMLDocument:
		return e.encodeXMLText(MarkerXMLDocument, string(v))
	case XML:
		return e.encodeXMLText(MarkerXML, string(v))
	case *Date:
		return e.encodeDate(v)
	case *Array:
		return e.encodeArray(v)
	case *Object:
		return e.encodeObject(v)
	case *ByteArray:
		return e.encodeByteArray(v)
	case *IntVector:
		return e.encodeIntVector(v)
	case *UintVector:
		return e.encodeUintVector(v)
	case *DoubleVector:
		return e.encodeDoubleVector(v)
	case *ObjectVector:
		return e.encodeObjectVector(v)
	case *Dictionary:
		return e.encodeDictionary(v)
	default:
		return fmt.Errorf("%w: unsupported AMF3 value %T", amf.ErrUnencodableValue, v)
	}
}

// encodeInteger writes an integer, promoting values outside the 29-bit range
// to Double. That promotion is a wire legality rule, not a lossy choice: the
// values are exactly representable as doubles.
func (e *Encoder) encodeInteger(v int32) error {
	if v < MinInt29 || v > MaxInt29 {
		if e.StrictIntegers {
			return fmt.Errorf("%w: %d", amf.ErrIntegerRange, v)
		}
		return e.encodeDouble(float64(v))
	}
	if err := e.w.WriteByte(MarkerInteger); err != nil {
		return err
	}
	// Two's complement folded into 29 bits.
	return e.w.WriteU29(uint32(v) & wire.MaxU29)
}

func (e *Encoder) encodeDouble(v float64) error {
	if err := e.w.WriteByte(MarkerDouble); err != nil {
		return err
	}
	return e.w.WriteFloat64(v)
}

func (e *Encoder) encodeString(s string) error {
	if err := e.w.WriteByte(MarkerString); err != nil {
		return err
	}
	return e.writeUTF8(s)
}

// writeUTF8 writes a string through the string reference table: a back
// reference when the content was written before, a length-prefixed literal
// otherwise. Empty strings are always literal and never interned.
func (e *Encoder) writeUTF8(s string) error {
	if s == "" {
		return e.w.WriteU29(0x01)
	}
	if idx, ok := e.strings[s]; ok {
		return e.w.WriteU29(uint32(idx) << 1)
	}
	if len(s) > wire.MaxU29>>1 {
		return fmt.Errorf("%w: string of %d bytes", amf.ErrU29Range, len(s))
	}
	e.strings[s] = len(e.strings)
	if err := e.w.WriteU29(uint32(len(s))<<1 | 1); err != nil {
		return err
	}
	return e.w.WriteString(s)
}

// encodeXMLText writes an XMLDocument or XML value. XML values live in the
// object reference space, but as Go value types they carry no instance
// identity, so they are always written literally while still claiming a
// table slot.
func (e *Encoder) encodeXMLText(marker byte, s string) error {
	e.registerObject(nil)
	if err := e.w.WriteByte(marker); err != nil {
		return err
	}
	if len(s) > wire.MaxU29>>1 {
		return fmt.Errorf("%w: xml of %d bytes", amf.ErrU29Range, len(s))
	}
	if err := e.w.WriteU29(uint32(len(s))<<1 | 1); err != nil {
		return err
	}
	return e.w.WriteString(s)
}

func (e *Encoder) encodeDate(d *Date) error {
	if err := e.w.WriteByte(MarkerDate); err != nil {
		return err
	}
	if idx, ok := e.lookupObject(d); ok {
		return e.w.WriteU29(uint32(idx) << 1)
	}
	e.registerObject(d)
	if err := e.w.WriteU29(0x01); err != nil {
		return err
	}
	return e.w.WriteFloat64(d.Millis)
}

func (e *Encoder) encodeArray(a *Array) error {
	if err := e.w.WriteByte(MarkerArray); err != nil {
		return err
	}
	if idx, ok := e.lookupObject(a); ok {
		return e.w.WriteU29(uint32(idx) << 1)
	}
	// Registered before the entries are written so the array can contain
	// references to itself.
	e.registerObject(a)
	if err := e.w.WriteU29(uint32(len(a.Dense))<<1 | 1); err != nil {
		return err
	}
	for _, p := range a.Assoc {
		if err := e.writeUTF8(p.Key); err != nil {
			return err
		}
		if err := e.encodeValue(p.Value); err != nil {
			return err
		}
	}
	if err := e.writeUTF8(""); err != nil {
		return err
	}
	for _, v := range a.Dense {
		if err := e.encodeValue(v); err != nil {
			return err
		}
	}
	return nil
}

// traitSignature is the structural identity of a trait for the encode-side
// trait reference table.
func traitSignature(alias string, dynamic, external bool, fields []string) string {
	var b strings.Builder
	b.WriteString(alias)
	b.WriteByte(0)
	if dynamic {
		b.WriteByte('d')
	}
	if external {
		b.WriteByte('x')
	}
	for _, f := range fields {
		b.WriteByte(0)
		b.WriteString(f)
	}
	return b.String()
}

func (e *Encoder) encodeObject(o *Object) error {
	if err := e.w.WriteByte(MarkerObject); err != nil {
		return err
	}
	if idx, ok := e.lookupObject(o); ok {
		return e.w.WriteU29(uint32(idx) << 1)
	}
	e.registerObject(o)

	// Resolve the effective trait: a registered alias overrides the value's
	// own layout so the declared field order is authoritative.
	dynamic := o.Dynamic
	external := o.External != nil
	fields := make([]string, 0, len(o.Sealed))
	for _, p := range o.Sealed {
		fields = append(fields, p.Key)
	}
	if o.Name != "" && !external {
		if t, ok := e.registry().Lookup(o.Name); ok && !t.Externalizable {
			fields = t.Fields
			dynamic = t.Dynamic
		}
	}

	sig := traitSignature(o.Name, dynamic, external, fields)
	if idx, ok := e.traits[sig]; ok {
		// Trait reference: bit0 set (literal object), bit1 clear.
		if err := e.w.WriteU29(uint32(idx)<<2 | 0x01); err != nil {
			return err
		}
	} else {
		e.traits[sig] = len(e.traits)
		h := uint32(len(fields))<<4 | 0x03
		if external {
			h |= 1 << 2
		}
		if dynamic {
			h |= 1 << 3
		}
		if err := e.w.WriteU29(h); err != nil {
			return err
		}
		if err := e.writeUTF8(o.Name); err != nil {
			return err
		}
		for _, f := range fields {
			if err := e.writeUTF8(f); err != nil {
				return err
			}
		}
	}

	if external {
		return e.w.WriteBytes(o.External)
	}
	for _, f := range fields {
		v, ok := o.Member(f)
		if !ok {
			v = Undefined{}
		}
		if err := e.encodeValue(v); err != nil {
			return err
		}
	}
	if dynamic {
		for _, p := range o.DynamicMembers {
			if err := e.writeUTF8(p.Key); err != nil {
				return err
			}
			if err := e.encodeValue(p.Value); err != nil {
				return err
			}
		}
		return e.writeUTF8("")
	}
	return nil
}

func (e *Encoder) encodeByteArray(b *ByteArray) error {
	if err := e.w.WriteByte(MarkerByteArray); err != nil {
		return err
	}
	if idx, ok := e.lookupObject(b); ok {
		return e.w.WriteU29(uint32(idx) << 1)
	}
	e.registerObject(b)
	if len(b.Data) > wire.MaxU29>>1 {
		return fmt.Errorf("%w: byte array of %d bytes", amf.ErrU29Range, len(b.Data))
	}
	if err := e.w.WriteU29(uint32(len(b.Data))<<1 | 1); err != nil {
		return err
	}
	return e.w.WriteBytes(b.Data)
}

// writeVectorHeader writes the shared marker / ref-or-length / fixed-flag
// prefix of the four vector types. It reports done=true when a back
// reference was written and no element payload should follow.
func (e *Encoder) writeVectorHeader(marker byte, key any, n int, fixed bool) (done bool, err error) {
	if err := e.w.WriteByte(marker); err != nil {
		return false, err
	}
	if idx, ok := e.lookupObject(key); ok {
		return true, e.w.WriteU29(uint32(idx) << 1)
	}
	e.registerObject(key)
	if err := e.w.WriteU29(uint32(n)<<1 | 1); err != nil {
		return false, err
	}
	if fixed {
		err = e.w.WriteByte(0x01)
	} else {
		err = e.w.WriteByte(0x00)
	}
	return false, err
}

func (e *Encoder) encodeIntVector(v *IntVector) error {
	done, err := e.writeVectorHeader(MarkerVectorInt, v, len(v.Entries), v.Fixed)
	if done || err != nil {
		return err
	}
	for _, n := range v.Entries {
		if err := e.w.WriteInt32(n); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeUintVector(v *UintVector) error {
	done, err := e.writeVectorHeader(MarkerVectorUint, v, len(v.Entries), v.Fixed)
	if done || err != nil {
		return err
	}
	for _, n := range v.Entries {
		if err := e.w.WriteUint32(n); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeDoubleVector(v *DoubleVector) error {
	done, err := e.writeVectorHeader(MarkerVectorDouble, v, len(v.Entries), v.Fixed)
	if done || err != nil {
		return err
	}
	for _, n := range v.Entries {
		if err := e.w.WriteFloat64(n); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeObjectVector(v *ObjectVector) error {
	done, err := e.writeVectorHeader(MarkerVectorObject, v, len(v.Entries), v.Fixed)
	if done || err != nil {
		return err
	}
	name := v.Name
	if name == "" {
		name = "*"
	}
	if err := e.writeUTF8(name); err != nil {
		return err
	}
	for _, el := range v.Entries {
		if err := e.encodeValue(el); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeDictionary(d *Dictionary) error {
	if err := e.w.WriteByte(MarkerDictionary); err != nil {
		return err
	}
	if idx, ok := e.lookupObject(d); ok {
		return e.w.WriteU29(uint32(idx) << 1)
	}
	e.registerObject(d)
	if err := e.w.WriteU29(uint32(len(d.Entries))<<1 | 1); err != nil {
		return err
	}
	var weak byte
	if d.Weak {
		weak = 1
	}
	if err := e.w.WriteByte(weak); err != nil {
		return err
	}
	for _, en := range d.Entries {
		if err := e.encodeValue(en.Key); err != nil {
			return err
		}
		if err := e.encodeValue(en.Value); err != nil {
			return err
		}
	}
	return nil
}

// FromNative converts a plain Go value into an AMF3 value. Integral inputs
// become Integer when they fit the 29-bit range and Double otherwise.
func FromNative(v any) (Value, error) {
	switch v := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return v, nil
	case bool:
		return Boolean(v), nil
	case int:
		return intOrDouble(int64(v)), nil
	case int8:
		return Integer(v), nil
	case int16:
		return Integer(v), nil
	case int32:
		return intOrDouble(int64(v)), nil
	case int64:
		return intOrDouble(v), nil
	case uint:
		return intOrDouble(int64(v)), nil
	case uint8:
		return Integer(v), nil
	case uint16:
		return Integer(v), nil
	case uint32:
		return intOrDouble(int64(v)), nil
	case uint64:
		return Double(v), nil
	case float32:
		return Double(v), nil
	case float64:
		return Double(v), nil
	case string:
		return String(v), nil
	case []byte:
		return &ByteArray{Data: v}, nil
	case time.Time:
		return NewDate(v), nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := &Object{Dynamic: true}
		for _, k := range keys {
			mv, err := FromNative(v[k])
			if err != nil {
				return nil, err
			}
			obj.DynamicMembers = append(obj.DynamicMembers, Pair{Key: k, Value: mv})
		}
		return obj, nil
	case []any:
		arr := &Array{}
		for _, el := range v {
			av, err := FromNative(el)
			if err != nil {
				return nil, err
			}
			arr.Dense = append(arr.Dense, av)
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("%w: no AMF3 representation for %T", amf.ErrUnencodableValue, v)
	}
}

func intOrDouble(v int64) Value {
	if v >= MinInt29 && v <= MaxInt29 {
		return Integer(v)
	}
	return Double(v)
}
