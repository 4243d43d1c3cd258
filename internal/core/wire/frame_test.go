package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x01},
		bytes.Repeat([]byte{0xab}, 127),
		bytes.Repeat([]byte{0xcd}, 128),
		bytes.Repeat([]byte{0xef}, 1000),
	}

	var stream bytes.Buffer
	for _, p := range payloads {
		if err := WriteFrame(&stream, p); err != nil {
			t.Fatalf("WriteFrame(%d bytes): %s", len(p), err)
		}
	}

	for _, want := range payloads {
		got, err := ReadFrame(&stream)
		if err != nil {
			t.Fatalf("ReadFrame: %s", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("frame payload mismatch:\n%s", diff)
		}
	}

	if _, err := ReadFrame(&stream); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame on drained stream = %v, want io.EOF", err)
	}
}

func TestFramePrefixBoundary(t *testing.T) {
	var small bytes.Buffer
	if err := WriteFrame(&small, bytes.Repeat([]byte{0x01}, 127)); err != nil {
		t.Fatal(err)
	}
	if small.Len() != 1+127 {
		t.Errorf("127-byte frame took %d bytes on the wire, want 128", small.Len())
	}

	var large bytes.Buffer
	if err := WriteFrame(&large, bytes.Repeat([]byte{0x01}, 128)); err != nil {
		t.Fatal(err)
	}
	if large.Len() != 4+128 {
		t.Errorf("128-byte frame took %d bytes on the wire, want 132", large.Len())
	}
	if large.Bytes()[0]&0x80 == 0 {
		t.Error("4-byte prefix missing its high bit")
	}
}

func TestReadFrameCleanCloseIsEOF(t *testing.T) {
	if _, err := ReadFrame(bytes.NewReader(nil)); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame on empty stream = %v, want io.EOF", err)
	}
}

func TestReadFrameShortPrefix(t *testing.T) {
	// High bit promises three more prefix bytes; only one arrives.
	_, err := ReadFrame(bytes.NewReader([]byte{0x80, 0x00}))
	if err == nil || errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame with truncated prefix = %v, want wrapped non-EOF error", err)
	}
}

func TestReadFrameShortPayload(t *testing.T) {
	// Declares five payload bytes, carries two.
	_, err := ReadFrame(bytes.NewReader([]byte{0x05, 0x01, 0x02}))
	if err == nil || errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame with truncated payload = %v, want wrapped non-EOF error", err)
	}
}
