package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// MaxFrameSize is the largest payload length the prefix encoding can carry.
const MaxFrameSize = math.MaxInt32

// ReadFrame blocks until one length-prefixed frame has been read from r and
// returns its payload. A clean peer close while waiting for the prefix is
// reported as io.EOF; a short read of the declared payload is a distinct
// error and is fatal for the connection.
func ReadFrame(r io.Reader) ([]byte, error) {
	var b0 [1]byte
	if _, err := io.ReadFull(r, b0[:]); err != nil {
		return nil, err
	}

	size := int(b0[0])
	if b0[0]&0x80 != 0 {
		var rest [3]byte
		if _, err := io.ReadFull(r, rest[:]); err != nil {
			return nil, fmt.Errorf("wire: short frame prefix: %w", err)
		}
		size = int(binary.BigEndian.Uint32([]byte{b0[0] &^ 0x80, rest[0], rest[1], rest[2]}))
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("wire: short frame: declared %d bytes: %w", size, err)
	}
	return payload, nil
}

// WriteFrame emits the prefix for the exact payload length followed by the
// payload in a single write. Serializing concurrent callers on the same
// stream is the caller's responsibility.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("wire: frame of %d bytes exceeds maximum", len(payload))
	}

	buf := make([]byte, 0, len(payload)+4)
	buf = appendVarPrefix(buf, len(payload))
	buf = append(buf, payload...)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("wire: writing frame: %w", err)
	}
	return nil
}
