package gate

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-kit/kit/log"

	fluxerr "github.com/fluxcd/bluegreen/pkg/errors"
	transport "github.com/fluxcd/bluegreen/pkg/http"
)

var ErrAlreadyPending = errors.New("a confirmation is already pending")

// Server is a Confirmer which waits for a decision posted to the
// approval API. Its Handler must be served for anyone to decide.
type Server struct {
	token   string
	version string
	logger  log.Logger

	mu       sync.Mutex
	pending  *Request
	decision chan Decision
}

func NewServer(token, version string, logger log.Logger) *Server {
	return &Server{token: token, version: version, logger: logger}
}

func (s *Server) Confirm(ctx context.Context, req Request) (Decision, error) {
	if deadline, ok := ctx.Deadline(); ok {
		req.Deadline = deadline
	}
	decision := make(chan Decision, 1)

	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		return Decision{}, ErrAlreadyPending
	}
	s.pending, s.decision = &req, decision
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pending, s.decision = nil, nil
		s.mu.Unlock()
	}()

	s.logger.Log("waiting", req, "deadline", req.Deadline)
	select {
	case d := <-decision:
		return d, nil
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}

func (s *Server) Handler() http.Handler {
	r := transport.NewAPIRouter()
	for name, handler := range map[string]http.HandlerFunc{
		transport.Ping:    s.ping,
		transport.Version: s.getVersion,
		transport.Pending: s.getPending,
		transport.Approve: s.decide(true),
		transport.Reject:  s.decide(false),
	} {
		r.Get(name).Handler(s.authenticated(name, handler))
	}
	return r
}

func (s *Server) authenticated(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && route != transport.Ping {
			given := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(given), []byte(s.token)) != 1 {
				transport.ErrorResponse(w, r, transport.ErrorUnauthorized)
				return
			}
		}
		next(w, r)
	})
}

func (s *Server) ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getVersion(w http.ResponseWriter, r *http.Request) {
	transport.JSONResponse(w, r, s.version)
}

func (s *Server) getPending(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if pending == nil {
		transport.ErrorResponse(w, r, transport.ErrorNothingPending)
		return
	}
	transport.JSONResponse(w, r, pending)
}

func (s *Server) decide(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var d Decision
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
				transport.WriteError(w, r, http.StatusBadRequest, &fluxerr.Error{
					Type: fluxerr.User,
					Err:  err,
					Help: "The request body is not a decision: " + err.Error() + "\n",
				})
				return
			}
		}
		d.Approve = approve

		s.mu.Lock()
		pending, decision := s.pending, s.decision
		if pending != nil && (d.BuildID == 0 || d.BuildID == pending.BuildID) {
			// only the first decision counts
			s.pending = nil
		}
		s.mu.Unlock()

		switch {
		case pending == nil:
			transport.ErrorResponse(w, r, transport.ErrorNothingPending)
			return
		case d.BuildID != 0 && d.BuildID != pending.BuildID:
			transport.ErrorResponse(w, r, transport.MakeBuildMismatch(strconv.Itoa(pending.BuildID), strconv.Itoa(d.BuildID)))
			return
		}
		d.BuildID = pending.BuildID
		decision <- d
		s.logger.Log("decided", *pending, "approve", d.Approve, "reason", d.Reason, "remote", r.RemoteAddr)
		transport.JSONResponse(w, r, pending)
	}
}
