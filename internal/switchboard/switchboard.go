// Package switchboard implements the splicing engine: pairing an arriving
// client transport with a previously parked master transport and pumping
// bytes between them until either side closes. It is the component that
// turns a registry lookup into a live point-to-point stream.
package switchboard

import (
	"log/slog"
	"net"

	"github.com/daid/switchboard/internal/registry"
	"github.com/daid/switchboard/internal/transport"
)

// clientConnectedText is the application-level message a master transport
// receives, over WebSocket, the instant a client attaches to its session.
const clientConnectedText = "CLIENT_CONNECTED"

// clientAttachRaw is the 4-byte zero-length raw message a master transport
// receives when a client attaches over the raw protocol.
var clientAttachRaw = []byte{}

// ErrNoMaster is returned by ConnectClient when no master transport is parked on
// the session (scenario: "parked-but-no-master returns 503").
var ErrNoMaster = errNoMaster{}

type errNoMaster struct{}

func (errNoMaster) Error() string { return "switchboard: no master parked for session" }

// Switchboard is the explicit, non-singleton value handlers use to reach the
// registry, the process-wide pinger, and message forwarding. No hidden
// global state: every handler is constructed with one of these.
type Switchboard struct {
	Registry *registry.Registry
	Pinger   *transport.Pinger
	Logger   *slog.Logger
}

// New constructs a Switchboard wired to its own registry, pinger, and
// logger.
func New(logger *slog.Logger) *Switchboard {
	return &Switchboard{
		Registry: registry.New(),
		Pinger:   transport.NewPinger(logger),
		Logger:   logger,
	}
}

// forwardingHandler relays every decoded message to the transport's peer
// verbatim. It is the only Handler implementation the splicing engine needs,
// since once two transports are bound, application logic is pure forwarding.
type forwardingHandler struct {
	sb *Switchboard
}

func (h *forwardingHandler) OnOpen(t *transport.Transport) {}

func (h *forwardingHandler) OnMessage(t *transport.Transport, payload []byte) {
	peer := t.Peer()
	if peer == nil {
		// A master transport before being grabbed has no peer; nothing it
		// sends (it shouldn't send anything before a client attaches) has
		// anywhere to go.
		return
	}
	if err := peer.Send(payload); err != nil {
		h.sb.Logger.Debug("switchboard: forward failed, closing peer",
			slog.String("from", t.ID), slog.String("to", peer.ID), slog.Any("error", err))
		peer.Close()
	}
}

func (h *forwardingHandler) OnClose(t *transport.Transport) {
	if t.Kind == transport.KindWebSocket {
		h.sb.Pinger.Unregister(t)
	}
}

// ParkMaster registers conn as the master transport for sess's kind slot,
// per the server-arrival protocol: no CLIENT_CONNECTED / attach signal is
// sent, since the master's peer stays unset until grabbed. Blocks running
// the transport's read loop; returns when the connection closes.
func (sb *Switchboard) ParkMaster(conn net.Conn, kind transport.Kind, sess *registry.Session) {
	h := &forwardingHandler{sb: sb}
	t := transport.New(conn, kind, transport.RoleMaster, h, sb.Logger)

	sess.Park(t)
	if kind == transport.KindWebSocket {
		sb.Pinger.Register(t)
	}

	t.Serve()
}

// ConnectClient grabs the parked master transport for kind on sess, then
// splices it to a new client transport over conn. Returns ErrNoMaster if
// nothing was parked — callers that need to reply 503 BEFORE committing to
// the upgrade handshake should call sess.Grab(kind) themselves and use
// Splice directly instead; ConnectClient exists for callers (such as tests)
// that already hold a hijacked connection and don't need that ordering.
func (sb *Switchboard) ConnectClient(conn net.Conn, kind transport.Kind, sess *registry.Session) error {
	master := sess.Grab(kind)
	if master == nil {
		return ErrNoMaster
	}
	return sb.Splice(conn, kind, master)
}

// Splice binds an already-grabbed master transport to a new client
// transport over conn, sends the client-attach signal, and runs the
// client's read loop. The caller must have obtained master via
// sess.Grab(kind); this lets an HTTP handler check for 503 before hijacking
// the connection, since once Splice is called the upgrade is assumed to
// already have succeeded.
//
// The client-attach signal (CLIENT_CONNECTED text frame, or the raw 4-byte
// zero message) is sent to the master BEFORE the client's own loop starts,
// so no client traffic can race ahead of it.
func (sb *Switchboard) Splice(conn net.Conn, kind transport.Kind, master *transport.Transport) error {
	h := &forwardingHandler{sb: sb}
	client := transport.New(conn, kind, transport.RoleClient, h, sb.Logger)

	client.SetPeer(master)
	master.SetPeer(client)

	if kind == transport.KindWebSocket {
		sb.Pinger.Register(client)
		if err := master.Send([]byte(clientConnectedText)); err != nil {
			master.Close()
			client.Close()
			return err
		}
	} else {
		if err := master.SendRawHandshake(clientAttachRaw); err != nil {
			master.Close()
			client.Close()
			return err
		}
	}

	client.Serve()
	return nil
}
