// Package httpapi exposes the lifecycle engine over HTTP. Every route except
// health and login requires a session token.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"cms-go/internal/cms"
)

type ServerConfig struct {
	SessionSecret []byte
	SessionTTL    time.Duration
	MaxBodyBytes  int64
	// SecureCookie marks the session cookie Secure; set it behind TLS.
	SecureCookie bool
}

// Server routes HTTP requests to the engine.
type Server struct {
	svc    *cms.Service
	cfg    ServerConfig
	logger cms.Logger
	clock  cms.Clock
	idgen  cms.IDGenerator
	router *httprouter.Router
}

// handler is an authenticated route. actor is the stored user behind the
// session token.
type handler func(w http.ResponseWriter, r *http.Request, p httprouter.Params, actor *cms.User)

func NewServer(svc *cms.Service, cfg ServerConfig, logger cms.Logger, clock cms.Clock, idgen cms.IDGenerator) *Server {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 5 << 20
	}
	s := &Server{
		svc:    svc,
		cfg:    cfg,
		logger: logger,
		clock:  clock,
		idgen:  idgen,
		router: httprouter.New(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.GET("/api/health", s.handleHealth)
	r.POST("/api/login", s.handleLogin)
	r.POST("/api/logout", s.handleLogout)

	r.GET("/api/me", s.authed(s.handleMe))

	r.GET("/api/working", s.authed(s.handleListWorking))
	r.POST("/api/working", s.authed(s.handleSaveWorking))
	r.GET("/api/working/:key", s.authed(s.handleGetWorking))
	r.DELETE("/api/working/:key", s.authed(s.handleRejectWorking))
	r.POST("/api/working/:key/submit", s.authed(s.handleSubmit))
	r.POST("/api/working/:key/approve", s.authed(s.handleApprove))

	r.POST("/api/publish", s.authed(s.handlePublish))
	r.POST("/api/trash", s.authed(s.fileAction(cms.ActionTrash)))
	r.POST("/api/restore", s.authed(s.fileAction(cms.ActionRestore)))
	r.POST("/api/purge", s.authed(s.fileAction(cms.ActionPurge)))

	r.POST("/api/sync", s.authed(s.handleSync))
	r.POST("/api/migrate", s.authed(s.handleMigrate))
	r.POST("/api/sweep", s.authed(s.handleSweep))

	r.GET("/api/team", s.authed(s.handleListTeam))
	r.POST("/api/team", s.authed(s.handleUpsertTeam))
	r.DELETE("/api/team/:email", s.authed(s.handleRemoveTeam))

	r.GET("/api/history", s.authed(s.handleHistory))
	r.GET("/api/stats", s.authed(s.handleStats))
	r.GET("/api/media", s.authed(s.handleMedia))
	r.GET("/api/published", s.authed(s.handlePublished))

	r.POST("/api/automation/dispatch", s.authed(s.handleDispatch))
	r.GET("/api/automation/:workflow", s.authed(s.handleRunStatus))

	r.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: string(cms.KindNotFound), Message: "route not found"})
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := s.clock.Now()
	reqID := s.idgen.New()
	w.Header().Set("X-Request-Id", reqID)
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.router.ServeHTTP(rec, r)
	s.logger.Debug("request", "id", reqID, "method", r.Method, "path", r.URL.Path,
		"status", rec.status, "duration", s.clock.Now().Sub(start).String())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// authed verifies the session token and resolves the stored user. The token's
// capability claims are informational; the stored row is authoritative.
func (s *Server) authed(h handler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		claims, authErr := parseSession(sessionToken(r), s.cfg.SessionSecret, s.clock.Now())
		if authErr != nil {
			s.logger.Debug("session rejected", "path", r.URL.Path, "reason", authErr.message)
			writeJSON(w, authErr.status, errorBody{Error: string(cms.KindUnauthorized), Message: authErr.message})
			return
		}
		actor, err := s.svc.ResolveUser(r.Context(), claims.Email)
		if err != nil {
			if errors.Is(err, cms.ErrUnauthorized) {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: string(cms.KindUnauthorized), Message: "unknown user"})
				return
			}
			s.writeError(w, err)
			return
		}
		h(w, r, p, actor)
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Step    string `json:"step,omitempty"`
}

func statusFor(kind cms.Kind) int {
	switch kind {
	case cms.KindNotConfigured:
		return http.StatusServiceUnavailable
	case cms.KindNotFound:
		return http.StatusNotFound
	case cms.KindConflict:
		return http.StatusConflict
	case cms.KindUnauthorized:
		return http.StatusForbidden
	case cms.KindRateLimited:
		return http.StatusTooManyRequests
	case cms.KindTransport, cms.KindRemoteDenied:
		return http.StatusBadGateway
	case cms.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto the JSON error envelope. Permission denials carry
// no reason and internal errors no detail.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := cms.KindOf(err)
	body := errorBody{Error: string(kind), Message: err.Error(), Step: string(cms.FailedStep(err))}
	switch kind {
	case cms.KindUnauthorized:
		body.Message = "unauthorized"
	case cms.KindInternal:
		s.logger.Error("request failed", "error", err)
		body.Message = "internal error"
	case cms.KindRateLimited:
		secs := int(math.Ceil(cms.RetryAfter(err).Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeJSON(w, statusFor(kind), body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a request body into v. An empty body leaves v untouched.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: decoding request body: %v", cms.ErrInvalidInput, err)
	}
	return nil
}
