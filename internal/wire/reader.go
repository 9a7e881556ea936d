// Package wire implements the byte-level primitives shared by the AMF0 and
// AMF3 codecs: a position-tracked reader and an append-only writer over
// big-endian fixed-width fields, the U29 variable-length integer encoding,
// and IEEE-754 doubles with canonical NaN and Infinity bit patterns.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

// Reader is a position-tracked byte source. Every read consumes exactly the
// bytes of one field, so the underlying io.Reader can be shared with a
// delegate decoder (the AMF0 AVM+ escape hands the rest of the stream to the
// AMF3 decoder).
type Reader struct {
	r       io.Reader
	off     int64
	scratch [8]byte
}

// NewReader creates a reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 { return r.off }

func (r *Reader) fill(n int) ([]byte, error) {
	buf := r.scratch[:n]
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, r.truncated(err)
	}
	r.off += int64(n)
	return buf, nil
}

func (r *Reader) truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w at offset %d", amf.ErrTruncated, r.off)
	}
	return err
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	buf, err := r.fill(1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadBytes reads exactly n bytes into a fresh slice.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, r.truncated(err)
	}
	r.off += int64(n)
	return buf, nil
}

// ReadUint16 reads a 2-byte big-endian unsigned integer.
func (r *Reader) ReadUint16() (uint16, error) {
	buf, err := r.fill(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

// ReadUint32 reads a 4-byte big-endian unsigned integer.
func (r *Reader) ReadUint32() (uint32, error) {
	buf, err := r.fill(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

// ReadInt32 reads a 4-byte big-endian signed integer.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadFloat64 reads an 8-byte big-endian IEEE-754 double. NaN and signed
// Infinity bit patterns decode to the corresponding float64 values.
func (r *Reader) ReadFloat64() (float64, error) {
	buf, err := r.fill(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(buf)), nil
}

// ReadU29 reads a variable-length 29-bit unsigned integer. The first three
// bytes carry 7 value bits behind a continuation flag; a fourth byte, when
// present, carries a full 8 low bits. Exhaustion before termination is
// reported as a malformed varint.
func (r *Reader) ReadU29() (uint32, error) {
	var n uint32
	for i := 0; i < 3; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, r.malformed(err)
		}
		n = (n << 7) | uint32(b&0x7F)
		if b&0x80 == 0 {
			return n, nil
		}
	}
	b, err := r.ReadByte()
	if err != nil {
		return 0, r.malformed(err)
	}
	return (n << 8) | uint32(b), nil
}

func (r *Reader) malformed(err error) error {
	if errors.Is(err, amf.ErrTruncated) {
		return fmt.Errorf("%w at offset %d", amf.ErrMalformedVarint, r.off)
	}
	return err
}
