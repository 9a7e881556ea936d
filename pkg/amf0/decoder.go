package amf0

import (
	"errors"
	"fmt"
	"io"

	"github.com/DMA-Software/dma-goamf/internal/wire"
	"github.com/DMA-Software/dma-goamf/pkg/amf"
	"github.com/DMA-Software/dma-goamf/pkg/amf3"
)

// Decoder reads AMF0 values from an underlying reader. The object reference
// table spans one message: Decode resets it, DecodeAll shares it across the
// whole sequence. Decode errors are fatal for the message; the format has no
// resynchronization points.
type Decoder struct {
	// MaxDepth bounds value nesting; zero means amf.DefaultMaxDepth.
	MaxDepth int

	r       *wire.Reader
	in      io.Reader
	objects []Value
	depth   int
}

// NewDecoder creates an AMF0 decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: wire.NewReader(r), in: r}
}

// Decode reads one complete AMF0 value from the stream.
func (d *Decoder) Decode() (Value, error) {
	d.objects = d.objects[:0]
	d.depth = 0
	return d.decodeValue()
}

// DecodeAll reads values sharing one reference-table scope until the stream
// is exhausted, the layout of RTMP command and data messages.
func (d *Decoder) DecodeAll() ([]Value, error) {
	d.objects = d.objects[:0]
	d.depth = 0
	var values []Value
	for {
		marker, err := d.r.ReadByte()
		if errors.Is(err, amf.ErrTruncated) {
			return values, nil
		}
		if err != nil {
			return nil, err
		}
		v, err := d.decodeMarked(marker)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
}

func (d *Decoder) maxDepth() int {
	if d.MaxDepth > 0 {
		return d.MaxDepth
	}
	return amf.DefaultMaxDepth
}

func (d *Decoder) decodeValue() (Value, error) {
	marker, err := d.r.ReadByte()
	if err != nil {
		return nil, err
	}
	return d.decodeMarked(marker)
}

func (d *Decoder) decodeMarked(marker byte) (Value, error) {
	if d.depth >= d.maxDepth() {
		return nil, fmt.Errorf("%w (%d)", amf.ErrDepthLimit, d.maxDepth())
	}
	d.depth++
	defer func() { d.depth-- }()

	switch marker {
	case MarkerNumber:
		f, err := d.r.ReadFloat64()
		if err != nil {
			return nil, err
		}
		return Number(f), nil
	case MarkerBoolean:
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, err
		}
		return Boolean(b != 0), nil
	case MarkerString:
		s, err := d.readShortString()
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case MarkerObject:
		return d.decodeObject("")
	case MarkerMovieClip:
		// Reserved marker with no payload; legacy decode-only passthrough.
		return Undefined{}, nil
	case MarkerNull:
		return Null{}, nil
	case MarkerUndefined:
		return Undefined{}, nil
	case MarkerReference:
		return d.decodeReference()
	case MarkerEcmaArray:
		return d.decodeEcmaArray()
	case MarkerObjectEnd:
		return nil, fmt.Errorf("%w at offset %d", amf.ErrUnexpectedObjectEnd, d.r.Offset())
	case MarkerStrictArray:
		return d.decodeStrictArray()
	case MarkerDate:
		return d.decodeDate()
	case MarkerLongString:
		s, err := d.readLongString()
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case MarkerUnsupported, MarkerRecordSet:
		// Marker-only legacy types with no documented payload schema.
		return Unsupported{}, nil
	case MarkerXMLDocument:
		s, err := d.readLongString()
		if err != nil {
			return nil, err
		}
		return XMLDocument(s), nil
	case MarkerTypedObject:
		name, err := d.readShortString()
		if err != nil {
			return nil, err
		}
		return d.decodeObject(name)
	case MarkerAvmPlus:
		return d.decodeAvmPlus()
	default:
		return nil, &amf.MarkerError{Marker: marker}
	}
}

func (d *Decoder) readShortString() (string, error) {
	n, err := d.r.ReadUint16()
	if err != nil {
		return "", err
	}
	buf, err := d.r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func (d *Decoder) readLongString() (string, error) {
	n, err := d.r.ReadUint32()
	if err != nil {
		return "", err
	}
	buf, err := d.r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// remember appends a newly materialized complex value to the reference
// table. Values enter the table before their members decode, so references
// inside a value resolve to the value itself.
func (d *Decoder) remember(v Value) {
	d.objects = append(d.objects, v)
}

// decodePairs reads name/value pairs until the empty-key/object-end
// terminator.
func (d *Decoder) decodePairs() ([]Pair, error) {
	var pairs []Pair
	for {
		key, err := d.readShortString()
		if err != nil {
			return nil, err
		}
		if key == "" {
			marker, err := d.r.ReadByte()
			if err != nil {
				return nil, err
			}
			if marker != MarkerObjectEnd {
				return nil, fmt.Errorf("expected object-end after empty key: %w", &amf.MarkerError{Marker: marker})
			}
			return pairs, nil
		}
		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, Pair{Key: key, Value: v})
	}
}

func (d *Decoder) decodeObject(name string) (Value, error) {
	obj := &Object{Name: name}
	d.remember(obj)
	pairs, err := d.decodePairs()
	if err != nil {
		return nil, err
	}
	obj.Pairs = pairs
	return obj, nil
}

func (d *Decoder) decodeEcmaArray() (Value, error) {
	// The declared count is advisory; the real terminator is the same
	// empty-key/object-end sentinel as Object.
	if _, err := d.r.ReadUint32(); err != nil {
		return nil, err
	}
	arr := &EcmaArray{}
	d.remember(arr)
	pairs, err := d.decodePairs()
	if err != nil {
		return nil, err
	}
	arr.Pairs = pairs
	return arr, nil
}

func (d *Decoder) decodeStrictArray() (Value, error) {
	n, err := d.r.ReadUint32()
	if err != nil {
		return nil, err
	}
	arr := &StrictArray{}
	d.remember(arr)
	for i := uint32(0); i < n; i++ {
		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		arr.Values = append(arr.Values, v)
	}
	return arr, nil
}

func (d *Decoder) decodeDate() (Value, error) {
	millis, err := d.r.ReadFloat64()
	if err != nil {
		return nil, err
	}
	// Timezone offset, historically ignored.
	if _, err := d.r.ReadUint16(); err != nil {
		return nil, err
	}
	return Date{Millis: millis}, nil
}

func (d *Decoder) decodeReference() (Value, error) {
	idx, err := d.r.ReadUint16()
	if err != nil {
		return nil, err
	}
	if int(idx) >= len(d.objects) {
		return nil, &amf.ReferenceError{Table: "object", Index: int(idx)}
	}
	return d.objects[idx], nil
}

// decodeAvmPlus hands the remaining stream to a fresh-scope AMF3 decoder.
func (d *Decoder) decodeAvmPlus() (Value, error) {
	remaining := d.maxDepth() - d.depth
	if remaining <= 0 {
		return nil, fmt.Errorf("%w (%d)", amf.ErrDepthLimit, d.maxDepth())
	}
	a3 := amf3.NewDecoder(d.in)
	a3.MaxDepth = remaining
	v, err := a3.Decode()
	if err != nil {
		return nil, err
	}
	return AvmPlus{Value: v}, nil
}
