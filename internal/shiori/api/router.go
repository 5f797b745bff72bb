// Package api exposes the turn engine over HTTP.
package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bdobrica/Shiori/internal/shiori/memory"
)

// Deps are the collaborators of the router. Turns and Memory are required.
type Deps struct {
	Turns   TurnHandler
	Memory  *memory.Store
	TurnLog *memory.TurnLog
	Indexer IndexBuilder
	Status  StatusProvider
	// APIKey enables bearer authentication on /v1 routes when non-empty.
	APIKey string
	// MatrixEnabled is reported by /status.
	MatrixEnabled bool
	Logger        *slog.Logger
}

// NewRouter creates the chi router with all routes and middleware.
func NewRouter(d Deps) *chi.Mux {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	hh := &healthHandlers{status: d.Status, startedAt: time.Now(), matrix: d.MatrixEnabled}
	r.Get("/health", hh.health)
	r.Get("/status", hh.statusz)

	h := &handlers{
		turns:   d.Turns,
		memory:  d.Memory,
		turnLog: d.TurnLog,
		indexer: d.Indexer,
		logger:  logger,
	}
	r.Route("/v1", func(r chi.Router) {
		r.Use(BearerAuth(d.APIKey))

		r.Post("/turns", h.postTurn)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/memory", h.getMemory)
			r.Delete("/memory", h.deleteMemory)
			r.Get("/turns", h.listTurns)
		})
		r.Post("/affairs/{affairID}/index", h.buildIndex)
	})

	return r
}
