package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/igm/sockjs-go/sockjs"

	"github.com/taggate-io/taggate/server/internal/notify"
	"github.com/taggate-io/taggate/server/internal/taggate/service"
	"github.com/taggate-io/taggate/server/internal/taggate/store"
	"github.com/taggate-io/taggate/server/internal/taggate/types"
)

type Dependencies struct {
	Logger        *log.Logger
	Addr          string
	Coordinator   *service.Coordinator
	Hub           *notify.Hub
	AuditPageSize int // default page size for /v1/audit
}

// Server is the observer-facing surface: a polling API mirroring the
// store snapshots and a realtime endpoint fed by the notification hub.
type Server struct {
	httpServer    *http.Server
	logger        *log.Logger
	mux           *http.ServeMux
	coordinator   *service.Coordinator
	hub           *notify.Hub
	auditPageSize int
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	pageSize := d.AuditPageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	s := &Server{
		logger:        d.Logger,
		mux:           mux,
		coordinator:   d.Coordinator,
		hub:           d.Hub,
		auditPageSize: pageSize,
	}

	mux.HandleFunc("GET /v1/credentials", s.handleListCredentials)
	mux.HandleFunc("POST /v1/credentials/{id}/toggle", s.handleToggleCredential)
	mux.HandleFunc("GET /v1/audit", s.handleListAudit)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	if d.Hub != nil {
		mux.Handle("/realtime/", sockjs.NewHandler("/realtime", sockjs.DefaultOptions, s.handleRealtime))
	}

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := s.coordinator.Credentials(r.Context())
	if err != nil {
		s.logger.Printf("list credentials: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	if creds == nil {
		creds = []types.Credential{}
	}
	writeJSON(w, http.StatusOK, creds)
}

// handleToggleCredential is the dashboard's manual override: flip one
// known credential without a physical scan.
func (s *Server) handleToggleCredential(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	d, err := s.coordinator.ToggleCredential(r.Context(), id)
	switch {
	case errors.Is(err, service.ErrInvalidTagID):
		writeError(w, http.StatusBadRequest, "bad_credential_id", "credential id is required")
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "no credential with that id")
		return
	case err != nil:
		s.logger.Printf("toggle %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	writeJSON(w, http.StatusOK, d.Credential)
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	limit := s.auditPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	recs, err := s.coordinator.RecentAudit(r.Context(), limit)
	if err != nil {
		s.logger.Printf("list audit: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	if recs == nil {
		recs = []types.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleRealtime pumps hub events into a sockjs session until either side
// goes away. Observers send nothing meaningful; inbound frames are drained
// so the session keepalive works.
func (s *Server) handleRealtime(session sockjs.Session) {
	client := s.hub.NewClient()
	defer s.hub.Unregister(client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, err := session.Recv(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			if err := session.Send(string(msg)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
