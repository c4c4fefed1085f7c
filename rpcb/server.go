// Package rpcb is the remote-method framing between stateless handlers and
// the single serialized store instance. A call is POST {base}/{method} with
// fixed context in the query string and positional arguments as a JSON
// array in the body; the response is a JSON value, an empty body for
// no-content results, or a non-2xx status with a plain-text message.
//
// The method set is a closed registry populated at startup. Every verb at
// the transport boundary is POST; the operation identity is carried by the
// path segment alone.
package rpcb

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sync"
)

// Func is a registered method. Arguments arrive positionally, still
// encoded; decode them with DecodeArgs. Returning (nil, nil) produces an
// empty response body, which the client reports as an absent result.
type Func func(query url.Values, args []json.RawMessage) (any, error)

// Server dispatches named methods against a registry. All dispatched calls
// execute one at a time under a single mutex: each call is one serialized
// step, and nothing more — two calls are never atomic together.
type Server struct {
	mu      sync.Mutex
	methods map[string]Func
	log     *slog.Logger
}

func NewServer(log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		methods: make(map[string]Func),
		log:     log,
	}
}

// Handle registers a method by name. Call during startup only.
func (s *Server) Handle(name string, fn Func) {
	s.methods[name] = fn
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := path.Base(r.URL.Path)
	fn, ok := s.methods[method]
	if !ok {
		http.Error(w, "unknown method/path", http.StatusNotFound)
		return
	}

	args, err := decodeBody(r)
	if err != nil {
		s.writeError(w, method, err)
		return
	}

	s.mu.Lock()
	result, err := fn(r.URL.Query(), args)
	s.mu.Unlock()

	if err != nil {
		s.writeError(w, method, err)
		return
	}
	if result == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.log.Error("encoding dispatch result", slog.String("method", method), slog.String("err", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, method string, err error) {
	var se *Error
	if errors.As(err, &se) {
		s.log.Warn("dispatch call failed",
			slog.String("method", method),
			slog.Int("status", se.Status),
			slog.String("msg", se.Message))
		http.Error(w, se.Message, se.Status)
		return
	}
	s.log.Error("dispatch call failed",
		slog.String("method", method),
		slog.String("err", err.Error()))
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func decodeBody(r *http.Request) ([]json.RawMessage, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, Errorf(http.StatusBadRequest, "reading request body: %s", err)
	}
	if len(body) == 0 {
		return nil, nil
	}
	var args []json.RawMessage
	if err := json.Unmarshal(body, &args); err != nil {
		return nil, Errorf(http.StatusBadRequest, "arguments must be a JSON array: %s", err)
	}
	return args, nil
}

// DecodeArgs unmarshals positional arguments into the given targets.
// Missing or malformed arguments fail with a 400.
func DecodeArgs(args []json.RawMessage, dst ...any) error {
	if len(args) < len(dst) {
		return Errorf(http.StatusBadRequest, "expected %d arguments, got %d", len(dst), len(args))
	}
	for i, d := range dst {
		if err := json.Unmarshal(args[i], d); err != nil {
			return Errorf(http.StatusBadRequest, "argument %d: %s", i, err)
		}
	}
	return nil
}
