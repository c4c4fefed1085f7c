// Package server is the public HTTP surface. It parses the identity
// headers and request bodies, calls the engine, and renders results:
// strings as plain text, everything else as JSON. All failures funnel
// through a single render point keyed on the status carried by the error.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/xoltia/karaokeq/engine"
	"github.com/xoltia/karaokeq/queue"
	"github.com/xoltia/karaokeq/rpcb"
)

// Identity headers sent by the web and display clients.
const (
	headerUserName   = "Q-User-Name"
	headerSession    = "Q-Session"
	headerAdminToken = "Q-Admin-Token"
)

type Server struct {
	eng *engine.Engine
	log *slog.Logger
	h   http.Handler
}

func New(eng *engine.Engine, log *slog.Logger) *Server {
	s := &Server{eng: eng, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{domain}/q-simple", s.wrap(s.handleSimpleQueue))
	mux.HandleFunc("POST /{domain}/q-simple", s.wrap(s.handleUpdatedSimpleQueue))
	mux.HandleFunc("GET /{domain}/q", s.wrap(s.handleQueue))
	mux.HandleFunc("PUT /{domain}/q", s.wrap(s.handleSetQueue))
	mux.HandleFunc("DELETE /{domain}/q", s.wrap(s.handleDeleteQueue))
	mux.HandleFunc("POST /{domain}/create", s.wrap(s.handleCreate))
	mux.HandleFunc("POST /{domain}/vote", s.wrap(s.handleVote))
	mux.HandleFunc("POST /{domain}/request", s.wrap(s.handleRequest))
	mux.HandleFunc("GET /{domain}/config", s.wrap(s.handleConfig))
	mux.HandleFunc("PATCH /{domain}/config", s.wrap(s.handleSetConfig))
	mux.HandleFunc("POST /{domain}/reset", s.wrap(s.handleReset))
	mux.HandleFunc("POST /{domain}/setvotes", s.wrap(s.handleSetVotes))
	mux.HandleFunc("POST /{domain}/remove", s.wrap(s.handleRemove))
	mux.HandleFunc("POST /{domain}/authorize", s.wrap(s.handleAuthorize))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unknown method/path :(", http.StatusNotFound)
	})

	s.h = withLogging(log, cors(mux))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.h.ServeHTTP(w, r)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (s *Server) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}
		status := rpcb.StatusOf(err)
		if status == http.StatusInternalServerError {
			s.log.Error("request failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("err", err.Error()))
		}
		http.Error(w, rpcb.MessageOf(err), status)
	}
}

// identity collects the caller context: the domain from the path and the
// opaque header values, absent headers included as empty strings.
func identity(r *http.Request) engine.Identity {
	return engine.Identity{
		Domain:       r.PathValue("domain"),
		UserName:     r.Header.Get(headerUserName),
		SessionToken: r.Header.Get(headerSession),
		AdminToken:   r.Header.Get(headerAdminToken),
	}
}

// decodeBody fills v from the request body. An empty body leaves v at its
// zero value; handlers report missing required fields themselves.
func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return rpcb.Errorf(http.StatusBadRequest, "Malformed request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, text string) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err := io.WriteString(w, text)
	return err
}

type songBody struct {
	SongID string `json:"songId"`
}

type setVotesBody struct {
	SongID string `json:"songId"`
	Votes  *int   `json:"votes"`
}

type simpleQueueBody struct {
	CurrentSongID string   `json:"currentSongId"`
	SongIDHistory []string `json:"songIdHistory"`
}

type setQueueBody struct {
	Q queue.Queue `json:"q"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) error {
	q, err := s.eng.Queue(r.Context(), identity(r))
	if err != nil {
		return err
	}
	return writeJSON(w, q)
}

func (s *Server) handleSimpleQueue(w http.ResponseWriter, r *http.Request) error {
	out, err := s.eng.SimpleQueue(r.Context(), identity(r))
	if err != nil {
		return err
	}
	return writeText(w, out)
}

func (s *Server) handleUpdatedSimpleQueue(w http.ResponseWriter, r *http.Request) error {
	var body simpleQueueBody
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	out, err := s.eng.UpdatedSimpleQueue(r.Context(), identity(r), body.CurrentSongID, body.SongIDHistory)
	if err != nil {
		return err
	}
	return writeText(w, out)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) error {
	q, err := s.eng.Create(r.Context(), identity(r), nil)
	if err != nil {
		return err
	}
	return writeJSON(w, q)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) error {
	var body songBody
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	q, err := s.eng.Vote(r.Context(), identity(r), body.SongID)
	if err != nil {
		return err
	}
	return writeJSON(w, q)
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) error {
	var body songBody
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	q, err := s.eng.Request(r.Context(), identity(r), body.SongID)
	if err != nil {
		return err
	}
	return writeJSON(w, q)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) error {
	cfg, err := s.eng.Config(r.Context(), identity(r))
	if err != nil {
		return err
	}
	return writeJSON(w, cfg)
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) error {
	var patch engine.ConfigPatch
	if err := decodeBody(r, &patch); err != nil {
		return err
	}
	return s.eng.AdminSetConfig(r.Context(), identity(r), patch)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) error {
	q, err := s.eng.AdminResetQueue(r.Context(), identity(r))
	if err != nil {
		return err
	}
	return writeJSON(w, q)
}

func (s *Server) handleSetVotes(w http.ResponseWriter, r *http.Request) error {
	var body setVotesBody
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	if body.Votes == nil {
		return rpcb.Errorf(http.StatusUnprocessableEntity, "votes must be a number")
	}
	q, err := s.eng.AdminSetVotes(r.Context(), identity(r), body.SongID, *body.Votes)
	if err != nil {
		return err
	}
	return writeJSON(w, q)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) error {
	var body songBody
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	q, err := s.eng.AdminRemoveSong(r.Context(), identity(r), body.SongID)
	if err != nil {
		return err
	}
	return writeJSON(w, q)
}

func (s *Server) handleSetQueue(w http.ResponseWriter, r *http.Request) error {
	var body setQueueBody
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	q, err := s.eng.AdminSetQueue(r.Context(), identity(r), body.Q)
	if err != nil {
		return err
	}
	return writeJSON(w, q)
}

func (s *Server) handleDeleteQueue(w http.ResponseWriter, r *http.Request) error {
	return s.eng.AdminDeleteQueue(r.Context(), identity(r))
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) error {
	return s.eng.AdminAuthorize(r.Context(), identity(r))
}
