// Package debugsrv serves the daemon's debug endpoints: a liveness probe, a
// JSON view of the scheduled jobs and the net/http/pprof handlers.
package debugsrv

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	logx "reportd/pkg/logx"
)

const pprofPrefix = "/debug/pprof/"

type Config struct {
	Addr  string
	Token string
}

type Server struct {
	cfg    Config
	log    logx.Logger
	status func() any
}

// New returns a server whose /status handler encodes the value returned by
// status. status may be nil.
func New(cfg Config, log logx.Logger, status func() any) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6060"
	}
	return &Server{cfg: cfg, log: log, status: status}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.withAuth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	mux.HandleFunc("/status", s.withAuth(s.handleStatus))

	base := strings.TrimSuffix(pprofPrefix, "/")
	mux.HandleFunc(pprofPrefix, s.withAuth(hpprof.Index))
	mux.HandleFunc(base+"/cmdline", s.withAuth(hpprof.Cmdline))
	mux.HandleFunc(base+"/profile", s.withAuth(hpprof.Profile))
	mux.HandleFunc(base+"/symbol", s.withAuth(hpprof.Symbol))
	mux.HandleFunc(base+"/trace", s.withAuth(hpprof.Trace))
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var v any = struct{}{}
	if s.status != nil {
		v = s.status()
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.log.Warn("encode status failed", logx.Err(err))
	}
}

// Serve listens on the configured address until ctx is canceled. A nil
// return is a clean stop.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // profile?seconds=30 streams for a while
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(cctx)
	}()

	s.log.Info("debug server started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token_set", s.cfg.Token != ""))
	err = srv.Serve(ln)
	if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
		s.log.Info("debug server stopped")
		return nil
	}
	return err
}

// withAuth accepts "Authorization: Bearer <token>" or ?token=<token> when a
// token is configured.
func (s *Server) withAuth(h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(s.cfg.Token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
				got = strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
			}
		}
		if got != tok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}
