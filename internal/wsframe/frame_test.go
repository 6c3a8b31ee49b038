package wsframe_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	mrand "math/rand"
	"testing"

	"github.com/daid/switchboard/internal/wsframe"
)

// TestAcceptKey_RFC6455Example verifies the handshake example from RFC 6455
// §1.3: base64(sha1("dGhlIHNhbXBsZSBub25jZQ==" + GUID)).
func TestAcceptKey_RFC6455Example(t *testing.T) {
	got := wsframe.AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Errorf("AcceptKey = %q, want %q", got, want)
	}
}

// TestRoundTrip_VariousLengths exercises the three length-encoding branches
// covering inline, 16-bit extended, and a (smaller) 64-bit-path payload.
func TestRoundTrip_VariousLengths(t *testing.T) {
	lengths := []int{0, 1, 125, 126, 127, 1000, 65535, 65536, 70000}
	for _, n := range lengths {
		payload := make([]byte, n)
		if _, err := rand.Read(payload); err != nil {
			t.Fatalf("rand.Read: %v", err)
		}

		var buf bytes.Buffer
		if err := wsframe.WriteFrame(&buf, wsframe.OpText, payload); err != nil {
			t.Fatalf("WriteFrame(n=%d): %v", n, err)
		}

		frame, err := wsframe.ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame(n=%d): %v", n, err)
		}
		if !frame.Fin {
			t.Errorf("n=%d: FIN not set on encode", n)
		}
		if frame.Opcode != wsframe.OpText {
			t.Errorf("n=%d: opcode = %x, want OpText", n, frame.Opcode)
		}
		if !bytes.Equal(frame.Payload, payload) {
			t.Errorf("n=%d: payload mismatch", n)
		}
	}
}

// TestRoundTrip_RandomPayloadSizes is a lighter property-style check across
// many random lengths in 0..65535.
func TestRoundTrip_RandomPayloadSizes(t *testing.T) {
	rng := mrand.New(mrand.NewSource(1))
	for i := 0; i < 200; i++ {
		n := rng.Intn(65536)
		payload := make([]byte, n)
		rng.Read(payload)

		var buf bytes.Buffer
		if err := wsframe.WriteFrame(&buf, wsframe.OpText, payload); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
		frame, err := wsframe.ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if frame.Opcode != wsframe.OpText || !frame.Fin || !bytes.Equal(frame.Payload, payload) {
			t.Fatalf("round trip mismatch at n=%d", n)
		}
	}
}

// TestReadFrame_MaskedClientFrame verifies client-to-server masking is
// undone correctly.
func TestReadFrame_MaskedClientFrame(t *testing.T) {
	payload := []byte("hello")
	mask := [4]byte{0xDE, 0xAD, 0xBE, 0xEF}
	masked := make([]byte, len(payload))
	for i, b := range payload {
		masked[i] = b ^ mask[i%4]
	}

	buf := &bytes.Buffer{}
	buf.Write([]byte{0x81, 0x80 | byte(len(payload))})
	buf.Write(mask[:])
	buf.Write(masked)

	frame, err := wsframe.ReadFrame(buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Errorf("unmasked payload = %q, want %q", frame.Payload, payload)
	}
}

// TestReadFrame_ReservedBitRejected verifies RSV bits are a hard protocol
// violation (spec §4.1).
func TestReadFrame_ReservedBitRejected(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x90 | wsframe.OpText, 0x00}) // RSV3 set
	_, err := wsframe.ReadFrame(buf)
	if !errors.Is(err, wsframe.ErrReservedBitSet) {
		t.Errorf("err = %v, want ErrReservedBitSet", err)
	}
}

// TestReadFrame_TruncatedIsEOF verifies a partial frame surfaces as an I/O
// error rather than panicking (spec: "truncated frame -> transport closed
// silently").
func TestReadFrame_TruncatedIsEOF(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x81, 0x05, 'h', 'i'}) // says len=5, only 2 bytes follow
	_, err := wsframe.ReadFrame(buf)
	if err == nil {
		t.Fatal("expected an error for truncated frame")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want an EOF-flavored error", err)
	}
}

// TestWriteFrame_NeverMasks verifies server-to-client frames are never
// masked, per RFC 6455 §5.1.
func TestWriteFrame_NeverMasks(t *testing.T) {
	var buf bytes.Buffer
	if err := wsframe.WriteFrame(&buf, wsframe.OpBinary, []byte("x")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	b := buf.Bytes()
	if b[1]&0x80 != 0 {
		t.Error("server frame has MASK bit set")
	}
}
