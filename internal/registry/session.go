// Package registry implements the session registry: key/secret issuance,
// lookup, listing, and idle expiry for registered game sessions. It also
// hosts the park/grab primitives each GameSession exposes to the splicing
// engine.
package registry

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/daid/switchboard/internal/transport"
)

// keyAlphabet is the character set keys and secrets are drawn from.
const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	keyLength    = 5
	secretLength = 32

	// idleDeadline is how long a session survives with no parked transport
	// and no park/grab activity.
	idleDeadline = 60 * time.Second
)

// Descriptor holds the registration fields supplied by a server, before a
// key/secret is issued.
type Descriptor struct {
	Name                string
	GameName            string
	GameVersion         int
	Public              bool
	AdvertisedAddresses []string
	Port                int
	ObservedPublicAddr  string
}

// Session is one registered game: an issued key/secret pair, its
// descriptive fields, and at most one parked transport per wire kind.
type Session struct {
	Key    string
	Secret string
	Descriptor

	mu        sync.Mutex
	parkedWS  *transport.Transport
	parkedRaw *transport.Transport
	deadline  time.Time
}

// randomToken returns a cryptographically random string of length n drawn
// from keyAlphabet.
func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}
	return string(out), nil
}

// newSession issues a fresh key/secret pair and starts the 60-second idle
// deadline.
func newSession(desc Descriptor) (*Session, error) {
	key, err := randomToken(keyLength)
	if err != nil {
		return nil, err
	}
	secret, err := randomToken(secretLength)
	if err != nil {
		return nil, err
	}
	return &Session{
		Key:        key,
		Secret:     secret,
		Descriptor: desc,
		deadline:   time.Now().Add(idleDeadline),
	}, nil
}

// Park deposits transport t into the slot matching its kind. Any existing
// occupant is closed (its read side torn down) before being replaced, and
// the session's idle deadline is refreshed. Idempotent in effect: parking
// twice in a row simply displaces the first.
func (s *Session) Park(t *transport.Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.slotFor(t.Kind)
	if prior := *slot; prior != nil {
		prior.Close()
	}
	*slot = t
	s.deadline = time.Now().Add(idleDeadline)
}

// Grab atomically clears the slot for kind and returns its previous
// occupant, or nil if nothing was parked. It refreshes the session's idle
// deadline.
func (s *Session) Grab(kind transport.Kind) *transport.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.slotFor(kind)
	t := *slot
	*slot = nil
	s.deadline = time.Now().Add(idleDeadline)
	return t
}

func (s *Session) slotFor(kind transport.Kind) **transport.Transport {
	if kind == transport.KindWebSocket {
		return &s.parkedWS
	}
	return &s.parkedRaw
}

// liveAndRefresh reports whether the session has a live parked transport of
// either kind, refreshing the deadline if so. Used by the registry's
// opportunistic sweep.
func (s *Session) liveAndRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := false
	if s.parkedWS != nil {
		if s.parkedWS.Closed() {
			s.parkedWS = nil
		} else {
			live = true
		}
	}
	if s.parkedRaw != nil {
		if s.parkedRaw.Closed() {
			s.parkedRaw = nil
		} else {
			live = true
		}
	}
	if live {
		s.deadline = time.Now().Add(idleDeadline)
	}
	return live
}

// expired reports whether the idle deadline has elapsed. Must be called
// after liveAndRefresh in the same sweep pass, since a live parked
// transport refreshes the deadline first.
func (s *Session) expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().After(s.deadline)
}

// AddressesFor resolves the address list a client at remoteIP should see:
// the advertised (likely LAN-local) addresses plus the observed public
// address when the client shares the server's observed public IP,
// otherwise the observed public address alone.
func (s *Session) AddressesFor(remoteIP string) []string {
	if remoteIP != "" && remoteIP == s.ObservedPublicAddr {
		out := make([]string, 0, len(s.AdvertisedAddresses)+1)
		out = append(out, s.AdvertisedAddresses...)
		out = append(out, s.ObservedPublicAddr)
		return out
	}
	return []string{s.ObservedPublicAddr}
}
