package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/daid/switchboard/internal/transport"
	"github.com/daid/switchboard/internal/wsframe"
)

// classifyUpgrade inspects the request's Connection/Upgrade headers.
//
// isUpgrade reports whether this looks like an upgrade attempt at all (vs. a
// plain GET). ok reports whether the upgrade request is well-formed for the
// kind it claims to be (WebSocket requires Sec-Websocket-Version: 13 and a
// Sec-Websocket-Key; raw requires nothing further). kind is meaningless when
// isUpgrade is false.
func classifyUpgrade(r *http.Request) (kind transport.Kind, isUpgrade, ok bool) {
	conn := strings.ToLower(r.Header.Get("Connection"))
	upg := strings.ToLower(r.Header.Get("Upgrade"))
	if !strings.Contains(conn, "upgrade") {
		return 0, false, false
	}

	switch upg {
	case "websocket":
		version := r.Header.Get("Sec-Websocket-Version")
		key := r.Header.Get("Sec-Websocket-Key")
		return transport.KindWebSocket, true, version == "13" && key != ""
	case "raw":
		return transport.KindRaw, true, true
	default:
		return 0, false, false
	}
}

// acceptUpgrade hijacks the underlying connection, writes the 101 Switching
// Protocols response appropriate to kind, and returns the raw net.Conn ready
// for the transport loop. The HTTP keep-alive state is forced off in both
// cases, per the upgrade negotiator's contract.
func acceptUpgrade(w http.ResponseWriter, r *http.Request, kind transport.Kind) (net.Conn, error) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "server does not support hijacking", http.StatusInternalServerError)
		return nil, fmt.Errorf("httpapi: ResponseWriter does not implement http.Hijacker")
	}

	conn, bufrw, err := hj.Hijack()
	if err != nil {
		return nil, fmt.Errorf("httpapi: hijack failed: %w", err)
	}
	// Clear any read/write deadlines the http.Server left on the hijacked
	// connection; the transport loop manages its own read deadline.
	_ = conn.SetDeadline(time.Time{})

	var resp string
	switch kind {
	case transport.KindWebSocket:
		accept := wsframe.AcceptKey(r.Header.Get("Sec-Websocket-Key"))
		resp = "HTTP/1.1 101 Switching Protocols\r\n" +
			"Upgrade: websocket\r\n" +
			"Connection: Upgrade\r\n" +
			"Cache-Control: No-Cache\r\n" +
			"Sec-WebSocket-Accept: " + accept + "\r\n"
		if r.Header.Get("Sec-Websocket-Protocol") != "" {
			resp += "Sec-WebSocket-Protocol: chat\r\n"
		}
		resp += "\r\n"
	default:
		resp = "HTTP/1.1 101 Switching Protocols\r\n" +
			"Upgrade: raw\r\n" +
			"Connection: Upgrade\r\n" +
			"Cache-Control: No-Store\r\n" +
			"\r\n"
	}

	if _, err := bufrw.WriteString(resp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("httpapi: handshake write failed: %w", err)
	}
	if err := bufrw.Flush(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("httpapi: handshake flush failed: %w", err)
	}

	return conn, nil
}
