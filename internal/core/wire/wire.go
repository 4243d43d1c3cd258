// Package wire implements the binary codec and frame format shared with the
// game client. All multi-byte values are big endian. Variable-length values
// (frame prefixes, byte arrays, strings, positive ints) use a 1-or-4 byte
// encoding: a single byte for values 0-127, otherwise four bytes with the
// high bit of the first byte set.
package wire

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrShortPayload is latched by a Reader that runs past the end of its
// payload. Handlers treat it as fatal for the connection.
var ErrShortPayload = errors.New("wire: unexpected end of payload")

// Reader is a cursor over a single message payload. Reads never panic; the
// first failure latches an error, subsequent reads return zero values, and
// the caller checks Err once after parsing.
type Reader struct {
	buf []byte
	pos int
	err error
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Err returns the first error encountered while reading, if any.
func (r *Reader) Err() error { return r.err }

// Remaining returns the number of unconsumed bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.buf) {
		r.err = ErrShortPayload
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) Byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Int16() int16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return int16(binary.BigEndian.Uint16(b))
}

func (r *Reader) Int32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *Reader) Float32() float32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b))
}

// PositiveInt reads a value in the 1-or-4 byte variable encoding.
func (r *Reader) PositiveInt() int32 {
	b0 := r.Byte()
	if r.err != nil {
		return 0
	}
	if b0&0x80 == 0 {
		return int32(b0)
	}
	rest := r.take(3)
	if rest == nil {
		return 0
	}
	return int32(uint32(b0&0x7F)<<24 | uint32(rest[0])<<16 | uint32(rest[1])<<8 | uint32(rest[2]))
}

// Bytes reads a length-prefixed byte array. The returned slice aliases the
// payload buffer.
func (r *Reader) Bytes() []byte {
	n := r.PositiveInt()
	if r.err != nil {
		return nil
	}
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	return b
}

// String reads a length-prefixed UTF-8 string.
func (r *Reader) String() string {
	return string(r.Bytes())
}

// Writer accumulates a message payload.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

func (w *Writer) Byte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *Writer) Int16(v int16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v))
}

func (w *Writer) Int32(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

func (w *Writer) Float32(v float32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, math.Float32bits(v))
}

// PositiveInt writes v in the 1-or-4 byte variable encoding. Negative values
// are clamped to zero; they cannot be represented.
func (w *Writer) PositiveInt(v int32) {
	if v < 0 {
		v = 0
	}
	w.buf = appendVarPrefix(w.buf, int(v))
}

// Bytes writes a length-prefixed byte array.
func (w *Writer) Bytes(b []byte) {
	w.buf = appendVarPrefix(w.buf, len(b))
	w.buf = append(w.buf, b...)
}

// String writes a length-prefixed UTF-8 string.
func (w *Writer) String(s string) {
	w.Bytes([]byte(s))
}

// Payload returns the accumulated message bytes, unframed.
func (w *Writer) Payload() []byte { return w.buf }

// Len returns the current payload length.
func (w *Writer) Len() int { return len(w.buf) }

func appendVarPrefix(dst []byte, n int) []byte {
	if n < 0x80 {
		return append(dst, byte(n))
	}
	return append(dst, byte(n>>24)|0x80, byte(n>>16), byte(n>>8), byte(n))
}
