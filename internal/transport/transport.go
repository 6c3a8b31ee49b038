// Package transport drives the per-connection read/write loop for both
// WebSocket and raw upgraded connections. It owns frame dispatch,
// fragmentation reassembly, write serialization, and the peer binding used
// by the splicing engine; it has no notion of sessions or HTTP routing.
package transport

import (
	"bufio"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/daid/switchboard/internal/rawframe"
	"github.com/daid/switchboard/internal/wsframe"
)

// Kind distinguishes the wire protocol a Transport speaks.
type Kind int

const (
	KindWebSocket Kind = iota
	KindRaw
)

// Role tags whether a Transport is the server side of an eventual splice
// (waiting to be parked and grabbed) or the client side (which triggers the
// splice on arrival). It is recorded on the Transport only; no code branches
// on it, and both roles run the same handler.
type Role int

const (
	RoleMaster Role = iota
	RoleClient
)

// readTimeout is the per-transport read deadline. A connection idle longer
// than this is considered dead.
const readTimeout = time.Hour

// Handler receives lifecycle and message callbacks from a Transport's read
// loop. Calls are made from the transport's own goroutine: single-threaded
// and non-overlapping per transport.
type Handler interface {
	OnOpen(t *Transport)
	OnMessage(t *Transport, payload []byte)
	OnClose(t *Transport)
}

// Transport wraps one TCP connection already upgraded to either WebSocket or
// raw framing, and drives its read loop until the peer disconnects or an I/O
// error occurs.
type Transport struct {
	ID   string
	Kind Kind
	Role Role

	conn   net.Conn
	logger *slog.Logger
	h      Handler

	writeMu sync.Mutex
	closed  atomic.Bool

	// peer is set once by the splicing engine before both loops resume in
	// full duplex, then only read by the two loops thereafter; no lock is
	// required on it (see design notes on peer back-references).
	peer atomic.Pointer[Transport]
}

// New wraps conn as a Transport of the given kind/role, ready to have Serve
// called on it.
func New(conn net.Conn, kind Kind, role Role, h Handler, logger *slog.Logger) *Transport {
	return &Transport{
		ID:     uuid.NewString(),
		Kind:   kind,
		Role:   role,
		conn:   conn,
		h:      h,
		logger: logger,
	}
}

// Peer returns the transport's bound counterpart, or nil if unspliced.
func (t *Transport) Peer() *Transport {
	return t.peer.Load()
}

// SetPeer publishes the peer binding. Called once by the splicing engine,
// after the master has been grabbed and before the client-attach signal is
// sent.
func (t *Transport) SetPeer(peer *Transport) {
	t.peer.Store(peer)
}

// RemoteAddr returns the underlying connection's remote address.
func (t *Transport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

// Closed reports whether the read side of this transport has already
// terminated.
func (t *Transport) Closed() bool {
	return t.closed.Load()
}

// Close tears down the underlying connection. Safe to call more than once
// and from any goroutine; only the first call has effect.
func (t *Transport) Close() {
	if t.closed.CompareAndSwap(false, true) {
		t.conn.Close()
	}
}

// Send forwards payload to the peer-facing wire as an application message.
// WebSocket transports reframe it as a new text frame (each decoded message
// becomes a new message to the peer, per the WebSocket splicing rule); raw
// transports write it verbatim with no added framing, since after the
// initial attach signal raw bytes flow untransformed in both directions.
// Writes are serialized by the write mutex so that a concurrent send from
// this transport's own read loop and from its peer's read loop never
// interleave.
func (t *Transport) Send(payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	switch t.Kind {
	case KindWebSocket:
		return wsframe.WriteFrame(t.conn, wsframe.OpText, payload)
	default:
		if len(payload) == 0 {
			return nil
		}
		_, err := t.conn.Write(payload)
		return err
	}
}

// SendRawHandshake writes the raw protocol's length-prefixed client-attach
// signal: a 4-byte big-endian length followed by payload. It is the one
// outbound raw message the switchboard itself synthesizes rather than
// forwards, and is the only place rawframe's length-prefix encoding is used
// on the wire.
func (t *Transport) SendRawHandshake(payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return rawframe.WriteMessage(t.conn, payload)
}

// sendPing writes a WebSocket ping frame with no payload. It is unexported
// and used only by the process-wide Pinger in this package.
func (t *Transport) sendPing() error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return wsframe.WriteFrame(t.conn, wsframe.OpPing, nil)
}

// writeControl sends a control frame (pong or close echo) under the write
// mutex, sharing it with Send and sendPing so frames never interleave.
func (t *Transport) writeControl(opcode byte, payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return wsframe.WriteFrame(t.conn, opcode, payload)
}

// Serve runs the transport's read loop until the connection closes, an I/O
// error occurs, or a close frame is processed. It fires OnOpen on entry and
// OnClose exactly once on every exit path, then releases the peer binding by
// closing the peer's read side.
//
// Serve blocks; callers run it in its own goroutine (one per connection, per
// the parallel-threading model).
func (t *Transport) Serve() {
	t.conn.SetReadDeadline(time.Now().Add(readTimeout))

	t.logger.Debug("transport: opened",
		slog.String("transport_id", t.ID), slog.String("remote_addr", t.conn.RemoteAddr().String()))

	t.h.OnOpen(t)

	switch t.Kind {
	case KindWebSocket:
		t.serveWebSocket()
	default:
		t.serveRaw()
	}

	t.Close()
	t.h.OnClose(t)
	t.logger.Debug("transport: closed", slog.String("transport_id", t.ID))

	if peer := t.Peer(); peer != nil {
		peer.Close()
	}
}

// serveWebSocket dispatches decoded frames per RFC 6455 opcode rules,
// reassembling fragmented messages into pending before delivering them to
// the handler.
func (t *Transport) serveWebSocket() {
	r := bufio.NewReader(t.conn)
	var pending []byte
	var pendingOpen bool

	for {
		t.conn.SetReadDeadline(time.Now().Add(readTimeout))

		frame, err := wsframe.ReadFrame(r)
		if err != nil {
			return
		}

		switch frame.Opcode {
		case wsframe.OpPing:
			if err := t.writeControl(wsframe.OpPong, frame.Payload); err != nil {
				return
			}
			continue
		case wsframe.OpPong:
			continue
		case wsframe.OpClose:
			_ = t.writeControl(wsframe.OpClose, frame.Payload)
			return
		}

		// Data frame (text, binary, or continuation). Interleaved control
		// frames above are handled without disturbing pending.
		switch frame.Opcode {
		case wsframe.OpText, wsframe.OpBinary:
			if !frame.Fin {
				pending = append([]byte(nil), frame.Payload...)
				pendingOpen = true
				continue
			}
			t.h.OnMessage(t, frame.Payload)
		case wsframe.OpContinuation:
			if !pendingOpen {
				// Continuation with no opener: protocol violation, fatal to
				// this connection only.
				return
			}
			pending = append(pending, frame.Payload...)
			if frame.Fin {
				msg := pending
				pending = nil
				pendingOpen = false
				t.h.OnMessage(t, msg)
			}
		default:
			// Unknown opcode: treat as a protocol violation.
			return
		}
	}
}

// serveRaw loops reading opaque 4 KiB chunks, with no inbound length
// framing — an asymmetry deliberately preserved from the source (see
// rawframe package doc).
func (t *Transport) serveRaw() {
	for {
		t.conn.SetReadDeadline(time.Now().Add(readTimeout))

		chunk, err := rawframe.ReadChunk(t.conn)
		if len(chunk) > 0 {
			t.h.OnMessage(t, chunk)
		}
		if err != nil {
			return
		}
		if len(chunk) == 0 {
			return
		}
	}
}
