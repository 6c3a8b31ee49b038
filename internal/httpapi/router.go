// Package httpapi is the HTTP front: it routes /game/register,
// /game/list/*, /game/connect/*, and /game/master to the registry and
// splicing engine, and serves the static landing page. It is the collaborator
// surface around the registry and switchboard packages. Besides routing it
// hosts the upgrade negotiator (upgrade.go); frame, session and splicing
// logic live in the other packages.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/daid/switchboard/internal/switchboard"
)

// NewRouter returns a configured chi.Router for the switchboard's HTTP
// front.
//
// Route layout:
//
//	GET  /                          – static landing page (served from staticDir/index.html)
//	POST /game/register             – register a session, issue key+secret
//	GET  /game/list/{game}          – list public sessions for a game
//	GET  /game/connect/{key}        – session descriptor, or upgrade to a client transport
//	GET  /game/master               – upgrade to a master transport (Game-Key/Game-Secret headers)
//
// registrationPassword gates POST /game/register's secret_hash check; an
// empty string disables the check (dev mode).
func NewRouter(sb *switchboard.Switchboard, staticDir, registrationPassword string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	h := &Server{sb: sb, registrationPassword: registrationPassword}

	r.Get("/", serveStatic(staticDir))
	r.Post("/game/register", h.handleRegister)
	r.Get("/game/list/{game}", h.handleListPublic)
	r.Get("/game/connect/{key}", h.handleConnect)
	r.Get("/game/master", h.handleMaster)

	return r
}

// serveStatic returns a handler that reads staticDir/index.html fresh on
// every request. No files are cached in memory; nothing is persisted by the
// switchboard itself.
func serveStatic(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, staticDir+"/index.html")
	}
}
