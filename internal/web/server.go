// Package web serves the output directory read-only so operators can browse
// audits, rendered cards, and the queue backlog.
package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	logx "firemon/pkg/logx"
)

// Config for the artifact server.
type Config struct {
	Addr string
	// Dir is the output directory root to expose.
	Dir string
}

type Server struct {
	srv *http.Server
	log logx.Logger
}

func NewServer(cfg Config, log logx.Logger) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	mux := http.NewServeMux()
	mux.Handle("/updates/", http.StripPrefix("/updates/", http.FileServer(http.Dir(cfg.Dir))))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	return &Server{
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: log,
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("artifact server listening", logx.String("addr", s.srv.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shCtx)
	}
}
