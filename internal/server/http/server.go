package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/dreadatour/deque/internal/engine"
	"github.com/dreadatour/deque/internal/server/http/controllers"
	tubesvc "github.com/dreadatour/deque/internal/services/tubes"
)

type Server struct {
	srv *http.Server
	lis net.Listener
}

// New wires the controllers onto a mux behind a permissive CORS wrapper.
func New(eng *engine.Engine, svc *tubesvc.Service) *Server {
	mux := http.NewServeMux()
	controllers.NewRegistry(eng, svc).RegisterAllRoutes(mux)
	return &Server{srv: &http.Server{Handler: cors(mux)}}
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Addr returns the bound listen address, or empty before ListenAndServe.
func (s *Server) Addr() string {
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
