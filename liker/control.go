package liker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/feedpilot/channel"
	"github.com/hazyhaar/feedpilot/kit"
	"github.com/hazyhaar/feedpilot/liker/internal/settings"
	"github.com/hazyhaar/feedpilot/shield"
)

// ControlServer is the local HTTP control API.
type ControlServer struct {
	sup    *Supervisor
	router *channel.Router
	logger *slog.Logger
}

// NewControlServer serves sup and the raw channel behind router.
func NewControlServer(sup *Supervisor, router *channel.Router, logger *slog.Logger) *ControlServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ControlServer{sup: sup, router: router, logger: logger}
}

// Handler returns the routes.
func (c *ControlServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	for _, mw := range shield.ControlStack(c.logger) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		st, err := c.sup.Status(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	})

	r.Route("/settings", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			s, err := c.sup.Settings(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, s)
		})
		r.Put("/", func(w http.ResponseWriter, r *http.Request) {
			var p settings.Patch
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("decode settings: %w", err))
				return
			}
			s, err := c.sup.UpdateSettings(r.Context(), p)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, s)
		})
	})

	r.Get("/actions", func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
				return
			}
			limit = min(n, 500)
		}
		entries, err := c.sup.RecentActions(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"actions": entries})
	})

	r.Post("/message", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil || !json.Valid(body) {
			writeError(w, http.StatusBadRequest, errors.New("body must be a JSON message"))
			return
		}
		ctx := kit.WithTransport(r.Context(), "http")
		resp, err := c.router.Call(ctx, body)
		if err != nil {
			log := shield.GetLogger(r.Context())
			var noListener *channel.ErrNoListener
			var unknown *channel.ErrUnknownAction
			code := http.StatusBadGateway
			if errors.As(err, &noListener) || errors.As(err, &unknown) {
				code = http.StatusNotFound
			}
			log.Debug("liker: control message failed", "error", err)
			writeError(w, code, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(resp)
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
