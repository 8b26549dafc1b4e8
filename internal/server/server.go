package server

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/zombor/receipt-ingest/internal/capture"
	"github.com/zombor/receipt-ingest/internal/imaging"
	"github.com/zombor/receipt-ingest/internal/ingest"
)

// BasicAuth holds basic authentication credentials.
type BasicAuth struct {
	Username string
	Password string
}

// Server exposes the capture flow and receipt records over HTTP.
type Server struct {
	orch      *ingest.Orchestrator
	svc       *ingest.Service
	opts      imaging.Options
	basicAuth BasicAuth
	mux       *http.ServeMux

	mu       sync.Mutex
	sessions map[string]*captureSession
}

// captureSession pairs a capture state machine with the verification state of
// a single-page ingest. The pending slot is shared across concurrent requests
// to the same session and is accessed only through its accessors.
type captureSession struct {
	capture      *capture.Session
	collectionID string

	mu      sync.Mutex
	pending *ingest.PendingReceipt
}

func (c *captureSession) setPending(p *ingest.PendingReceipt) {
	c.mu.Lock()
	c.pending = p
	c.mu.Unlock()
}

func (c *captureSession) pendingReceipt() *ingest.PendingReceipt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// NewServer creates a new Server with a default mux.
func NewServer(orch *ingest.Orchestrator, svc *ingest.Service, opts imaging.Options, basicAuth BasicAuth) *Server {
	return NewServerWithMux(orch, svc, opts, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing.
func NewServerWithMux(orch *ingest.Orchestrator, svc *ingest.Service, opts imaging.Options, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		orch:      orch,
		svc:       svc,
		opts:      opts,
		basicAuth: basicAuth,
		mux:       mux,
		sessions:  make(map[string]*captureSession),
	}
	s.registerRoutes()
	return s
}

func (s *Server) newSession(collectionID string) (string, *captureSession) {
	id := uuid.NewString()
	sess := &captureSession{
		capture:      capture.NewSession(s.opts),
		collectionID: collectionID,
	}
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return id, sess
}

// newVerificationSession registers a session whose only remaining operations
// are verify and cancel, used when a direct upload pauses for verification.
// Its capture state machine is closed immediately; no photos can be added.
func (s *Server) newVerificationSession(collectionID string, pending *ingest.PendingReceipt) string {
	id, sess := s.newSession(collectionID)
	sess.capture.Cancel()
	sess.setPending(pending)
	return id
}

func (s *Server) session(id string) (*captureSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) dropSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// authenticate checks basic auth credentials.
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// requireAuth middleware.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Receipt Ingest"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// corsMiddleware adds CORS headers and answers preflight requests.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes, most specific first.
func (s *Server) registerRoutes() {
	// Capture sessions
	s.mux.HandleFunc("POST /api/sessions/{id}/photo", s.requireAuth(s.handleAddPhoto))
	s.mux.HandleFunc("POST /api/sessions/{id}/confirm", s.requireAuth(s.handleConfirm))
	s.mux.HandleFunc("POST /api/sessions/{id}/retake", s.requireAuth(s.handleRetake))
	s.mux.HandleFunc("POST /api/sessions/{id}/add-another", s.requireAuth(s.handleAddAnother))
	s.mux.HandleFunc("DELETE /api/sessions/{id}/pages/{n}", s.requireAuth(s.handleRemovePage))
	s.mux.HandleFunc("POST /api/sessions/{id}/finalize", s.requireAuth(s.handleFinalize))
	s.mux.HandleFunc("POST /api/sessions/{id}/verify", s.requireAuth(s.handleVerify))
	s.mux.HandleFunc("GET /api/sessions/{id}", s.requireAuth(s.handleGetSession))
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.requireAuth(s.handleCancelSession))
	s.mux.HandleFunc("POST /api/sessions", s.requireAuth(s.handleCreateSession))

	// Receipts
	s.mux.HandleFunc("GET /api/receipts/{id}/pages/{n}/full", s.requireAuth(s.handlePageImage(false)))
	s.mux.HandleFunc("GET /api/receipts/{id}/pages/{n}/thumb", s.requireAuth(s.handlePageImage(true)))
	s.mux.HandleFunc("GET /api/receipts/{id}", s.requireAuth(s.handleGetReceipt))
	s.mux.HandleFunc("DELETE /api/receipts/{id}", s.requireAuth(s.handleDeleteReceipt))
	s.mux.HandleFunc("GET /api/receipts", s.requireAuth(s.handleListReceipts))
	s.mux.HandleFunc("POST /api/receipts", s.requireAuth(s.handleDirectUpload))

	// Static HTML interface
	s.mux.HandleFunc("GET /", s.requireAuth(s.handleIndex))
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
			s.mux.ServeHTTP(w, r)
		})(w, r)
	}))
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
