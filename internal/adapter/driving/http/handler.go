package http

import (
	"encoding/json"
	"net/http"

	"github.com/Wyydra/duo/internal/config"
	"github.com/Wyydra/duo/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	Dispatcher *service.Dispatcher

	staticDir      string
	sendBuffer     int
	maxMessageSize int64
}

func NewHandler(dispatcher *service.Dispatcher, cfg *config.Server) *Handler {
	return &Handler{
		Dispatcher:     dispatcher,
		staticDir:      cfg.StaticDir,
		sendBuffer:     cfg.SendBuffer,
		maxMessageSize: cfg.MaxMessageSize,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ws", h.ServeWS)
	r.Get("/healthz", h.Health)
	r.Get("/stats", h.Stats)

	if h.staticDir != "" {
		fs := http.FileServer(http.Dir(h.staticDir))
		r.Handle("/*", fs)
	}

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Dispatcher.Stats()); err != nil {
		log.Error().Err(err).Msg("Failed to encode stats")
	}
}
