package registry

import (
	"errors"
	"sync"
)

// ErrKeyCollision is returned by Register on the astronomically unlikely
// event that a freshly generated key already names a live session. The
// caller may retry.
var ErrKeyCollision = errors.New("registry: key collision, retry")

// Registry maps keys to live sessions. All map mutation happens under a
// single registry-wide lock; each Session's own parked slots are guarded by
// that Session's own lock (see session.go).
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register creates a session for desc, sweeping expired sessions first, and
// returns its issued key and secret. Returns ErrKeyCollision in the
// vanishingly unlikely case the generated key is already live; the caller
// may retry the call.
func (r *Registry) Register(desc Descriptor) (key, secret string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweepLocked()

	sess, err := newSession(desc)
	if err != nil {
		return "", "", err
	}
	if _, exists := r.sessions[sess.Key]; exists {
		return "", "", ErrKeyCollision
	}
	r.sessions[sess.Key] = sess
	return sess.Key, sess.Secret, nil
}

// Find looks up a session by key, sweeping expired sessions first. Returns
// nil if the key is unknown or has expired.
func (r *Registry) Find(key string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweepLocked()
	return r.sessions[key]
}

// ListPublic returns every live session with Public set and GameName equal
// to gameName.
func (r *Registry) ListPublic(gameName string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweepLocked()

	var out []*Session
	for _, s := range r.sessions {
		if s.Public && s.GameName == gameName {
			out = append(out, s)
		}
	}
	return out
}

// sweepLocked removes every session whose idle deadline has elapsed and
// whose parked slots are both empty or dead. Observing a live parked
// transport refreshes that session's deadline instead of removing it.
// Callers must hold r.mu.
func (r *Registry) sweepLocked() {
	for key, s := range r.sessions {
		if s.liveAndRefresh() {
			continue
		}
		if s.expired() {
			delete(r.sessions, key)
		}
	}
}
