// Package rawframe implements the "raw" socket upgrade protocol: an
// asymmetric framing where the switchboard's own synthesized messages carry
// a 4-byte big-endian length prefix, but inbound reads are unframed opaque
// chunks. This asymmetry is intentional, not a bug: only the length-prefixed
// client-attach signal is switchboard-synthesized, everything else is
// spliced traffic that flows byte-for-byte between the two ends.
package rawframe

import (
	"encoding/binary"
	"io"
)

// ChunkSize is the size of each unframed inbound read.
const ChunkSize = 4096

// WriteMessage writes payload to w prefixed with its 4-byte big-endian
// length, per the raw protocol's outbound framing.
func WriteMessage(w io.Writer, payload []byte) error {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadChunk reads a single opaque chunk of up to ChunkSize bytes from r, with
// no length framing applied. It returns io.EOF when the connection has
// closed. If r returns 0 bytes with a nil error, ReadChunk returns a nil
// chunk and a nil error; the transport's raw loop treats that as end of
// stream.
func ReadChunk(r io.Reader) ([]byte, error) {
	buf := make([]byte, ChunkSize)
	n, err := r.Read(buf)
	if n > 0 {
		return buf[:n], err
	}
	return nil, err
}
