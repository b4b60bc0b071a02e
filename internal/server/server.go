package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kapu/lcstudy-go/internal/game"
	"github.com/kapu/lcstudy-go/internal/history"
	"github.com/kapu/lcstudy-go/internal/script"
)

// Server is the HTTP transport for the study service.
type Server struct {
	svc     *game.Service
	hist    *history.Repository
	scripts *script.Repository
	levels  map[int]bool
	log     *zap.Logger

	httpSrv *http.Server
}

func New(addr string, svc *game.Service, hist *history.Repository, scripts *script.Repository, levels []int, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	allowed := make(map[int]bool, len(levels))
	for _, l := range levels {
		allowed[l] = true
	}
	s := &Server{
		svc:     svc,
		hist:    hist,
		scripts: scripts,
		levels:  allowed,
		log:     log,
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Post("/new", s.handleNewSession)
			r.Route("/{sid}", func(r chi.Router) {
				r.Get("/state", s.handleState)
				r.Post("/check-move", s.handleCheckMove)
				r.Post("/predict", s.handlePredict)
				r.Post("/resign", s.handleResign)
				r.Get("/pgn", s.handlePGN)
				r.Get("/watch", s.handleWatch)
			})
		})
		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.handleHistoryList)
			r.Post("/", s.handleHistorySave)
			r.Delete("/", s.handleHistoryClear)
			r.Get("/stats", s.handleHistoryStats)
		})
	})
	return r
}

// ListenAndServe blocks until ctx is canceled, then drains with a short
// shutdown window.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.httpSrv.Addr))
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
