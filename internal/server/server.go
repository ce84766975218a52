package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"github.com/ohlc-tools/history-repair/internal/progress"
)

// HTTPServer exposes the live progress snapshot for the external
// notifier to poll. Reads never block the repair workers.
type HTTPServer struct {
	s *http.Server
}

func NewHTTPServer(ctx context.Context, port string, tracker *progress.Tracker) *HTTPServer {
	return &HTTPServer{
		s: &http.Server{
			Handler:           NewProgressHandler(tracker),
			Addr:              ":" + port,
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext: func(listener net.Listener) context.Context {
				return ctx
			},
		},
	}
}

func NewProgressHandler(tracker *progress.Tracker) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /progress", func(w http.ResponseWriter, r *http.Request) {
		data, err := sonic.Marshal(tracker.Snapshot())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (s *HTTPServer) Start() error {
	return s.s.ListenAndServe()
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.s.Shutdown(ctx)
}

func (s *HTTPServer) Run(ctx context.Context) error {
	errCh := make(chan error)
	go func() {
		errCh <- s.Start()
	}()
	select {
	case <-ctx.Done():
		return s.Shutdown(ctx)
	case err := <-errCh:
		return err
	}
}
