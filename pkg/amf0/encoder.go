package amf0

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/DMA-Software/dma-goamf/internal/wire"
	"github.com/DMA-Software/dma-goamf/pkg/amf"
	"github.com/DMA-Software/dma-goamf/pkg/amf3"
)

// maxReferenceIndex is the largest index the 2-byte AMF0 reference form can
// express. A message needing more instances than that does not encode.
const maxReferenceIndex = 1<<16 - 1

// Encoder writes AMF0 values to an underlying writer. The object reference
// table spans one message: Encode resets it, EncodeSequence shares it across
// all values of the sequence. An Encoder must not be used concurrently.
type Encoder struct {
	// Registry resolves class aliases to trait descriptors for typed
	// objects. When nil, amf.DefaultRegistry is used.
	Registry *amf.TraitRegistry

	w       *wire.Writer
	out     io.Writer
	objects map[any]int
}

// NewEncoder creates an AMF0 encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: wire.NewWriter(w), out: w}
}

// Encode writes one value as a complete AMF0 message.
func (e *Encoder) Encode(v Value) error {
	e.objects = make(map[any]int)
	return e.encodeValue(v)
}

// EncodeSequence writes several values sharing one reference-table scope,
// the layout of RTMP command and data messages.
func (e *Encoder) EncodeSequence(values ...Value) error {
	e.objects = make(map[any]int)
	for _, v := range values {
		if err := e.encodeValue(v); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) registry() *amf.TraitRegistry {
	if e.Registry != nil {
		return e.Registry
	}
	return amf.DefaultRegistry
}

// reference writes a back-reference to a previously encoded instance, or
// registers the instance and reports written=false. Registration happens
// before the members are written, so shared and self-referential structure
// encodes as references.
func (e *Encoder) reference(key any) (written bool, err error) {
	if idx, ok := e.objects[key]; ok {
		if err := e.w.WriteByte(MarkerReference); err != nil {
			return false, err
		}
		return true, e.w.WriteUint16(uint16(idx))
	}
	// The 2-byte index form caps the table. Encoding past the cap would
	// leave later instances unregistered, and an unregistered
	// self-referential value recurses without termination.
	if len(e.objects) > maxReferenceIndex {
		return false, fmt.Errorf("%w: reference table full at %d entries", amf.ErrUnencodableValue, len(e.objects))
	}
	e.objects[key] = len(e.objects)
	return false, nil
}

func (e *Encoder) encodeValue(v Value) error {
	switch v := v.(type) {
	case nil:
		return e.w.WriteByte(MarkerNull)
	case Number:
		if err := e.w.WriteByte(MarkerNumber); err != nil {
			return err
		}
		return e.w.WriteFloat64(float64(v))
	case Boolean:
		if err := e.w.WriteByte(MarkerBoolean); err != nil {
			return err
		}
		if v {
			return e.w.WriteByte(0x01)
		}
		return e.w.WriteByte(0x00)
	case String:
		return e.encodeString(string(v))
	case *Object:
		return e.encodeObject(v)
	case Null:
		return e.w.WriteByte(MarkerNull)
	case Undefined:
		return e.w.WriteByte(MarkerUndefined)
	case *EcmaArray:
		return e.encodeEcmaArray(v)
	case *StrictArray:
		return e.encodeStrictArray(v)
	case Date:
		return e.encodeDate(v)
	case XMLDocument:
		return e.encodeXMLDocument(string(v))
	case AvmPlus:
		return e.encodeAvmPlus(v)
	case Unsupported:
		return fmt.Errorf("%w: the unsupported placeholder has no encode path", amf.ErrUnencodableValue)
	default:
		return fmt.Errorf("%w: unsupported AMF0 value %T", amf.ErrUnencodableValue, v)
	}
}

// writeShortString writes a 2-byte length-prefixed UTF-8 string, the form
// used for member keys and class names.
func (e *Encoder) writeShortString(s string) error {
	if len(s) >= longStringThreshold {
		return fmt.Errorf("%w: string key of %d bytes exceeds the 2-byte length form", amf.ErrUnencodableValue, len(s))
	}
	if err := e.w.WriteUint16(uint16(len(s))); err != nil {
		return err
	}
	return e.w.WriteString(s)
}

func (e *Encoder) encodeString(s string) error {
	if len(s) < longStringThreshold {
		if err := e.w.WriteByte(MarkerString); err != nil {
			return err
		}
		return e.writeShortString(s)
	}
	if err := e.w.WriteByte(MarkerLongString); err != nil {
		return err
	}
	if err := e.w.WriteUint32(uint32(len(s))); err != nil {
		return err
	}
	return e.w.WriteString(s)
}

// encodePairs writes name/value pairs followed by the empty-key/object-end
// terminator.
func (e *Encoder) encodePairs(pairs []Pair) error {
	for _, p := range pairs {
		if err := e.writeShortString(p.Key); err != nil {
			return err
		}
		if err := e.encodeValue(p.Value); err != nil {
			return err
		}
	}
	if err := e.w.WriteUint16(0); err != nil {
		return err
	}
	return e.w.WriteByte(MarkerObjectEnd)
}

func (e *Encoder) encodeObject(o *Object) error {
	written, err := e.reference(o)
	if written || err != nil {
		return err
	}
	pairs := o.Pairs
	if o.Name != "" {
		if err := e.w.WriteByte(MarkerTypedObject); err != nil {
			return err
		}
		if err := e.writeShortString(o.Name); err != nil {
			return err
		}
		// A registered trait fixes the member order; members the value
		// lacks encode as Undefined.
		if t, ok := e.registry().Lookup(o.Name); ok {
			pairs = make([]Pair, 0, len(t.Fields))
			for _, f := range t.Fields {
				v, ok := o.Member(f)
				if !ok {
					v = Undefined{}
				}
				pairs = append(pairs, Pair{Key: f, Value: v})
			}
		}
	} else {
		if err := e.w.WriteByte(MarkerObject); err != nil {
			return err
		}
	}
	return e.encodePairs(pairs)
}

func (e *Encoder) encodeEcmaArray(a *EcmaArray) error {
	written, err := e.reference(a)
	if written || err != nil {
		return err
	}
	if err := e.w.WriteByte(MarkerEcmaArray); err != nil {
		return err
	}
	// The count is advisory; decoders terminate on the object-end sentinel.
	if err := e.w.WriteUint32(uint32(len(a.Pairs))); err != nil {
		return err
	}
	return e.encodePairs(a.Pairs)
}

func (e *Encoder) encodeStrictArray(a *StrictArray) error {
	written, err := e.reference(a)
	if written || err != nil {
		return err
	}
	if err := e.w.WriteByte(MarkerStrictArray); err != nil {
		return err
	}
	if err := e.w.WriteUint32(uint32(len(a.Values))); err != nil {
		return err
	}
	for _, v := range a.Values {
		if err := e.encodeValue(v); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeDate(d Date) error {
	if err := e.w.WriteByte(MarkerDate); err != nil {
		return err
	}
	if err := e.w.WriteFloat64(d.Millis); err != nil {
		return err
	}
	// Timezone offset, always zero.
	return e.w.WriteUint16(0)
}

func (e *Encoder) encodeXMLDocument(s string) error {
	if err := e.w.WriteByte(MarkerXMLDocument); err != nil {
		return err
	}
	if err := e.w.WriteUint32(uint32(len(s))); err != nil {
		return err
	}
	return e.w.WriteString(s)
}

// encodeAvmPlus writes the AVM+ escape marker and delegates the payload to
// a fresh-scope AMF3 encoder over the same byte sink.
func (e *Encoder) encodeAvmPlus(v AvmPlus) error {
	if err := e.w.WriteByte(MarkerAvmPlus); err != nil {
		return err
	}
	a3 := amf3.NewEncoder(e.out)
	a3.Registry = e.Registry
	return a3.Encode(v.Value)
}

// FromNative converts a plain Go value into an AMF0 value. All numeric
// inputs become Number; AMF0 has no integer type.
func FromNative(v any) (Value, error) {
	switch v := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return v, nil
	case bool:
		return Boolean(v), nil
	case int:
		return Number(v), nil
	case int8:
		return Number(v), nil
	case int16:
		return Number(v), nil
	case int32:
		return Number(v), nil
	case int64:
		return Number(v), nil
	case uint:
		return Number(v), nil
	case uint8:
		return Number(v), nil
	case uint16:
		return Number(v), nil
	case uint32:
		return Number(v), nil
	case uint64:
		return Number(v), nil
	case float32:
		return Number(v), nil
	case float64:
		return Number(v), nil
	case string:
		return String(v), nil
	case time.Time:
		return NewDate(v), nil
	case map[string]any:
		obj := &Object{}
		for _, k := range sortedKeys(v) {
			mv, err := FromNative(v[k])
			if err != nil {
				return nil, err
			}
			obj.Pairs = append(obj.Pairs, Pair{Key: k, Value: mv})
		}
		return obj, nil
	case []any:
		arr := &StrictArray{}
		for _, el := range v {
			av, err := FromNative(el)
			if err != nil {
				return nil, err
			}
			arr.Values = append(arr.Values, av)
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("%w: no AMF0 representation for %T", amf.ErrUnencodableValue, v)
	}
}

// sortedKeys gives maps a deterministic member order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
