package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

// MaxU29 is the largest value representable by the U29 encoding.
const MaxU29 = 1<<29 - 1

// canonicalNaN is the bit pattern written for every NaN input. Arbitrary NaN
// payloads are never passed through to the wire.
const canonicalNaN = 0x7FF8000000000000

// Writer is an append-only byte sink for the encoders.
type Writer struct {
	w       io.Writer
	off     int64
	scratch [8]byte
}

// NewWriter creates a writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Offset returns the number of bytes written so far.
func (w *Writer) Offset() int64 { return w.off }

func (w *Writer) write(buf []byte) error {
	n, err := w.w.Write(buf)
	w.off += int64(n)
	return err
}

// WriteByte writes a single byte.
func (w *Writer) WriteByte(b byte) error {
	w.scratch[0] = b
	return w.write(w.scratch[:1])
}

// WriteBytes writes p verbatim.
func (w *Writer) WriteBytes(p []byte) error {
	return w.write(p)
}

// WriteString writes the UTF-8 bytes of s verbatim.
func (w *Writer) WriteString(s string) error {
	n, err := io.WriteString(w.w, s)
	w.off += int64(n)
	return err
}

// WriteUint16 writes a 2-byte big-endian unsigned integer.
func (w *Writer) WriteUint16(v uint16) error {
	binary.BigEndian.PutUint16(w.scratch[:2], v)
	return w.write(w.scratch[:2])
}

// WriteUint32 writes a 4-byte big-endian unsigned integer.
func (w *Writer) WriteUint32(v uint32) error {
	binary.BigEndian.PutUint32(w.scratch[:4], v)
	return w.write(w.scratch[:4])
}

// WriteInt32 writes a 4-byte big-endian signed integer.
func (w *Writer) WriteInt32(v int32) error {
	return w.WriteUint32(uint32(v))
}

// WriteFloat64 writes an 8-byte big-endian IEEE-754 double. NaN inputs are
// canonicalized to 0x7FF8000000000000; positive and negative Infinity keep
// their standard bit patterns.
func (w *Writer) WriteFloat64(v float64) error {
	bits := math.Float64bits(v)
	if math.IsNaN(v) {
		bits = canonicalNaN
	}
	binary.BigEndian.PutUint64(w.scratch[:8], bits)
	return w.write(w.scratch[:8])
}

// WriteU29 writes a variable-length 29-bit unsigned integer in 1-4 bytes.
func (w *Writer) WriteU29(v uint32) error {
	switch {
	case v < 0x80:
		// 1 byte: 0xxxxxxx
		return w.WriteByte(byte(v))
	case v < 0x4000:
		// 2 bytes: 1xxxxxxx 0xxxxxxx
		return w.write([]byte{byte(v>>7 | 0x80), byte(v & 0x7F)})
	case v < 0x200000:
		// 3 bytes: 1xxxxxxx 1xxxxxxx 0xxxxxxx
		return w.write([]byte{byte(v>>14 | 0x80), byte(v>>7&0x7F | 0x80), byte(v & 0x7F)})
	case v <= MaxU29:
		// 4 bytes: 1xxxxxxx 1xxxxxxx 1xxxxxxx xxxxxxxx, the last byte
		// carrying a full 8 bits
		return w.write([]byte{byte(v>>22 | 0x80), byte(v>>15&0x7F | 0x80), byte(v>>8&0x7F | 0x80), byte(v)})
	default:
		return fmt.Errorf("%w: %d", amf.ErrU29Range, v)
	}
}
