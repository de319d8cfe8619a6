// Package liveness serves the keep-alive HTTP endpoint hosting platforms
// poll, plus optional Prometheus metrics and pprof. It shares no state with
// the poll loop.
package liveness

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/gorilla/mux"

	logx "trendwatch/pkg/logx"
)

const (
	DefaultAddr = ":10000"
	Banner      = "Trend watcher is running!"
)

type Config struct {
	Addr string
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool
}

type Server struct {
	cfg Config
	log logx.Logger
	srv *http.Server
}

func New(cfg Config, log logx.Logger) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	s := &Server{cfg: cfg, log: log}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(Banner))
	}).Methods(http.MethodGet, http.MethodHead)
	if s.cfg.Metrics != nil {
		r.Handle("/metrics", s.cfg.Metrics).Methods(http.MethodGet)
	}
	if s.cfg.Pprof {
		d := r.PathPrefix("/debug/pprof").Subrouter()
		d.HandleFunc("/cmdline", pprof.Cmdline)
		d.HandleFunc("/profile", pprof.Profile)
		d.HandleFunc("/symbol", pprof.Symbol)
		d.HandleFunc("/trace", pprof.Trace)
		// Index also serves the named profiles (heap, goroutine, ...).
		d.PathPrefix("/").HandlerFunc(pprof.Index)
	}
	return r
}

// Run listens until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("liveness server listening", logx.String("addr", ln.Addr().String()), logx.Bool("metrics", s.cfg.Metrics != nil), logx.Bool("pprof", s.cfg.Pprof))

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		s.log.Warn("liveness shutdown failed", logx.Err(err))
		return err
	}
	return nil
}
