package switchboard_test

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/daid/switchboard/internal/registry"
	"github.com/daid/switchboard/internal/switchboard"
	"github.com/daid/switchboard/internal/transport"
	"github.com/daid/switchboard/internal/wsframe"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readWSText(t *testing.T, conn net.Conn, timeout time.Duration) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	frame, err := wsframe.ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	return string(frame.Payload)
}

func writeMaskedWS(t *testing.T, conn net.Conn, opcode byte, payload []byte) {
	t.Helper()
	mask := [4]byte{5, 6, 7, 8}
	masked := make([]byte, len(payload))
	for i, b := range payload {
		masked[i] = b ^ mask[i%4]
	}
	var buf bytes.Buffer
	buf.WriteByte(0x80 | opcode)
	buf.WriteByte(0x80 | byte(len(payload)))
	buf.Write(mask[:])
	buf.Write(masked)
	if _, err := conn.Write(buf.Bytes()); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// TestConnectClient_NoMaster covers the "parked-but-no-master returns 503"
// scenario at the switchboard layer (the HTTP status itself is the caller's
// job; here we assert ErrNoMaster).
func TestConnectClient_NoMaster(t *testing.T) {
	sb := switchboard.New(discardLogger())
	key, _, err := sb.Registry.Register(registry.Descriptor{GameName: "g"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	sess := sb.Registry.Find(key)

	_, clientConn := net.Pipe()
	defer clientConn.Close()

	err = sb.ConnectClient(clientConn, transport.KindWebSocket, sess)
	if err != switchboard.ErrNoMaster {
		t.Errorf("err = %v, want ErrNoMaster", err)
	}
}

// TestSplice_WebSocket checks CLIENT_CONNECTED delivery,
// then byte-preserving forwarding in both directions.
func TestSplice_WebSocket(t *testing.T) {
	sb := switchboard.New(discardLogger())
	key, _, err := sb.Registry.Register(registry.Descriptor{GameName: "g"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	sess := sb.Registry.Find(key)

	masterServerSide, masterTestSide := net.Pipe()
	go sb.ParkMaster(masterServerSide, transport.KindWebSocket, sess)

	// CLIENT_CONNECTED must arrive on the master before any client traffic.
	// net.Pipe writes block until read, so the connect goroutine is started
	// first and the test then reads the attach signal from the master side.
	clientServerSide, clientTestSide := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- sb.ConnectClient(clientServerSide, transport.KindWebSocket, sess) }()

	got := readWSText(t, masterTestSide, 2*time.Second)
	if got != "CLIENT_CONNECTED" {
		t.Fatalf("first master message = %q, want CLIENT_CONNECTED", got)
	}

	// Client -> master.
	writeMaskedWS(t, clientTestSide, wsframe.OpText, []byte("hi"))
	got = readWSText(t, masterTestSide, 2*time.Second)
	if got != "hi" {
		t.Errorf("master received %q, want hi", got)
	}

	// Master -> client.
	writeMaskedWS(t, masterTestSide, wsframe.OpText, []byte("yo"))
	got = readWSText(t, clientTestSide, 2*time.Second)
	if got != "yo" {
		t.Errorf("client received %q, want yo", got)
	}

	clientTestSide.Close()
	masterTestSide.Close()
	if err := <-done; err != nil {
		t.Errorf("ConnectClient returned error: %v", err)
	}
}

// TestSplice_Raw checks the 4-byte-zero attach signal, then
// byte-preserving forwarding with no inbound framing.
func TestSplice_Raw(t *testing.T) {
	sb := switchboard.New(discardLogger())
	key, _, err := sb.Registry.Register(registry.Descriptor{GameName: "g"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	sess := sb.Registry.Find(key)

	masterServerSide, masterTestSide := net.Pipe()
	go sb.ParkMaster(masterServerSide, transport.KindRaw, sess)

	clientServerSide, clientTestSide := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- sb.ConnectClient(clientServerSide, transport.KindRaw, sess) }()

	attach := make([]byte, 4)
	masterTestSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(masterTestSide, attach); err != nil {
		t.Fatalf("read attach signal: %v", err)
	}
	if !bytes.Equal(attach, []byte{0, 0, 0, 0}) {
		t.Fatalf("attach signal = %v, want [0 0 0 0]", attach)
	}

	if _, err := clientTestSide.Write([]byte{0xDE, 0xAD, 0xBE, 0xEF}); err != nil {
		t.Fatalf("client write: %v", err)
	}
	buf := make([]byte, 4)
	masterTestSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(masterTestSide, buf); err != nil {
		t.Fatalf("master read: %v", err)
	}
	if !bytes.Equal(buf, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Errorf("master received %v, want DEADBEEF", buf)
	}

	clientTestSide.Close()
	masterTestSide.Close()
	<-done
}
