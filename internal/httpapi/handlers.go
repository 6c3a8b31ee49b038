package httpapi

import (
	"crypto/sha1" //nolint:gosec // registration hash check, not a security-critical digest
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/daid/switchboard/internal/registry"
	"github.com/daid/switchboard/internal/switchboard"
)

// Server holds the dependencies HTTP handlers need: the switchboard (which
// in turn carries the registry and pinger) and the registration password
// used to validate secret_hash.
type Server struct {
	sb                   *switchboard.Switchboard
	registrationPassword string
}

// writeError writes a JSON error response: {"error": "<message>"}.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// registerRequest is the JSON body for POST /game/register. All fields are
// required; a missing or ill-typed field is a 400.
type registerRequest struct {
	Name        *string  `json:"name"`
	GameName    *string  `json:"game_name"`
	GameVersion *int     `json:"game_version"`
	SecretHash  *string  `json:"secret_hash"`
	Public      *bool    `json:"public"`
	Address     []string `json:"address"`
	Port        *int     `json:"port"`
}

func (req *registerRequest) missingField() string {
	switch {
	case req.Name == nil:
		return "name"
	case req.GameName == nil:
		return "game_name"
	case req.GameVersion == nil:
		return "game_version"
	case req.SecretHash == nil:
		return "secret_hash"
	case req.Public == nil:
		return "public"
	case req.Address == nil:
		return "address"
	case req.Port == nil:
		return "port"
	default:
		return ""
	}
}

// validSecretHash reports whether hash matches hex(SHA1(registrationPassword)).
// An empty registrationPassword disables the check entirely (dev mode).
func (s *Server) validSecretHash(hash string) bool {
	if s.registrationPassword == "" {
		return true
	}
	//nolint:gosec // SHA-1 matches the registration hash scheme; not a security boundary on its own
	sum := sha1.Sum([]byte(s.registrationPassword))
	return hash == hex.EncodeToString(sum[:])
}

// handleRegister implements POST /game/register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	if field := req.missingField(); field != "" {
		writeError(w, http.StatusBadRequest, "missing or ill-typed field: "+field)
		return
	}

	if !s.validSecretHash(*req.SecretHash) {
		writeError(w, http.StatusBadRequest, "invalid secret_hash")
		return
	}

	observed, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		observed = r.RemoteAddr
	}

	desc := registry.Descriptor{
		Name:                *req.Name,
		GameName:            *req.GameName,
		GameVersion:         *req.GameVersion,
		Public:              *req.Public,
		AdvertisedAddresses: req.Address,
		Port:                *req.Port,
		ObservedPublicAddr:  observed,
	}

	key, secret, err := s.sb.Registry.Register(desc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "registration conflict, retry")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"key": key, "secret": secret})
}

// sessionJSON is the wire shape for a session descriptor.
type sessionJSON struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	GameName    string   `json:"game_name"`
	GameVersion int      `json:"game_version"`
	Public      bool     `json:"public"`
	Address     []string `json:"address"`
	Port        int      `json:"port"`
}

func toSessionJSON(sess *registry.Session, remoteIP string) sessionJSON {
	return sessionJSON{
		Key:         sess.Key,
		Name:        sess.Name,
		GameName:    sess.GameName,
		GameVersion: sess.GameVersion,
		Public:      sess.Public,
		Address:     sess.AddressesFor(remoteIP),
		Port:        sess.Port,
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// handleListPublic implements GET /game/list/{game}.
func (s *Server) handleListPublic(w http.ResponseWriter, r *http.Request) {
	game := chi.URLParam(r, "game")
	sessions := s.sb.Registry.ListPublic(game)
	ip := remoteIP(r)

	out := make([]sessionJSON, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionJSON(sess, ip))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

// handleConnect implements both halves of GET /game/connect/{key}: a plain
// GET returns the session descriptor; a GET carrying WebSocket or raw
// upgrade headers hands off to the upgrade negotiator and the splicing
// engine's client-arrival protocol.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	sess := s.sb.Registry.Find(key)
	if sess == nil {
		writeError(w, http.StatusNotFound, "unknown key")
		return
	}

	kind, isUpgrade, ok := classifyUpgrade(r)
	if !isUpgrade {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(toSessionJSON(sess, remoteIP(r)))
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "bad upgrade request")
		return
	}

	// Grab before hijacking: a 503 must reach the client as an ordinary HTTP
	// response, which is only possible before the connection is taken over
	// for the upgrade handshake.
	master := sess.Grab(kind)
	if master == nil {
		writeError(w, http.StatusServiceUnavailable, "no master parked for this session")
		return
	}

	conn, err := acceptUpgrade(w, r, kind)
	if err != nil {
		s.sb.Logger.Debug("httpapi: upgrade failed", "error", err)
		master.Close()
		return
	}

	if err := s.sb.Splice(conn, kind, master); err != nil {
		s.sb.Logger.Debug("httpapi: splice failed", "error", err)
	}
}

// handleMaster implements GET /game/master: the server-arrival protocol.
func (s *Server) handleMaster(w http.ResponseWriter, r *http.Request) {
	gameKey := r.Header.Get("Game-Key")
	gameSecret := r.Header.Get("Game-Secret")
	if gameKey == "" || gameSecret == "" {
		writeError(w, http.StatusBadRequest, "missing Game-Key or Game-Secret header")
		return
	}

	sess := s.sb.Registry.Find(gameKey)
	if sess == nil {
		writeError(w, http.StatusNotFound, "unknown key")
		return
	}
	if sess.Secret != gameSecret {
		writeError(w, http.StatusBadRequest, "secret mismatch")
		return
	}

	kind, isUpgrade, ok := classifyUpgrade(r)
	if !isUpgrade || !ok {
		writeError(w, http.StatusBadRequest, "bad upgrade request")
		return
	}

	conn, err := acceptUpgrade(w, r, kind)
	if err != nil {
		s.sb.Logger.Debug("httpapi: master upgrade failed", "error", err)
		return
	}

	s.sb.ParkMaster(conn, kind, sess)
}
