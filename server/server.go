// Package server exposes the synthesis pipeline over HTTP: the three-way
// request classification endpoint, the result-poll endpoint for partial
// responses, and the health and metrics surfaces.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/synclabs/voiceflow/config"
	"github.com/synclabs/voiceflow/convai"
	"github.com/synclabs/voiceflow/metrics"
	"github.com/synclabs/voiceflow/pipeline"
	"github.com/synclabs/voiceflow/resultstore"
)

const (
	// defaultReadHeaderTimeout prevents Slowloris attacks.
	defaultReadHeaderTimeout = 10 * time.Second

	// write timeout must exceed the hard race deadline or long requests
	// would be cut off mid-response.
	defaultWriteTimeout = 2 * time.Minute
	defaultReadTimeout  = 2 * time.Minute
	defaultIdleTimeout  = 2 * time.Minute

	maxBodySize = 32 * 1024 * 1024 // base64 audio payloads
)

// RaceController is the audio path entry point.
type RaceController interface {
	Process(ctx context.Context, requestID, audioBase64 string, opts convai.Options) (*pipeline.Outcome, error)
}

// Server routes synthesis requests. Construct with New.
type Server struct {
	cfg        *config.Config
	controller RaceController
	store      resultstore.Store

	httpSrv   *http.Server
	httpSrvMu sync.Mutex
}

// New creates a server around the given controller and result store.
// The store may be nil; the poll endpoint then always reports not-found.
func New(cfg *config.Config, controller RaceController, store resultstore.Store) *Server {
	return &Server{
		cfg:        cfg,
		controller: controller,
		store:      store,
	}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/workflows", s.handleSynthesize)
	mux.HandleFunc("OPTIONS /v1/workflows", s.handlePreflight)
	mux.HandleFunc("GET /v1/workflows/{id}", s.handleResult)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return otelhttp.NewHandler(withCORS(mux), "voiceflow-server")
}

// ListenAndServe starts the HTTP server on the configured address.
func (s *Server) ListenAndServe() error {
	srv := s.newHTTPServer()
	srv.Addr = s.cfg.Addr

	s.httpSrvMu.Lock()
	s.httpSrv = srv
	s.httpSrvMu.Unlock()

	return srv.ListenAndServe()
}

// Serve starts the HTTP server on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	srv := s.newHTTPServer()

	s.httpSrvMu.Lock()
	s.httpSrv = srv
	s.httpSrvMu.Unlock()

	return srv.Serve(ln)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.httpSrvMu.Lock()
	srv := s.httpSrv
	s.httpSrvMu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ReadTimeout:       defaultReadTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
}

// withCORS adds permissive cross-origin headers to every response.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		next.ServeHTTP(w, r)
	})
}
