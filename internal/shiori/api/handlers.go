package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bdobrica/Shiori/internal/shiori/memory"
	"github.com/bdobrica/Shiori/internal/shiori/retrieval"
	"github.com/bdobrica/Shiori/internal/shiori/turn"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// TurnHandler runs one conversational turn.
type TurnHandler interface {
	Handle(ctx context.Context, req turn.Request) (*turn.Response, error)
}

// IndexBuilder rebuilds the passage index of an affair.
type IndexBuilder interface {
	Build(ctx context.Context, affairID string) (retrieval.IndexStats, error)
}

type handlers struct {
	turns   TurnHandler
	memory  *memory.Store
	turnLog *memory.TurnLog
	indexer IndexBuilder
	logger  *slog.Logger
}

// postTurn handles POST /v1/turns.
func (h *handlers) postTurn(w http.ResponseWriter, r *http.Request) {
	var req turn.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.turns.Handle(r.Context(), req)
	if err != nil {
		if errors.Is(err, turn.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("api: turn failed", "err", err)
		writeError(w, http.StatusInternalServerError, "turn failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// getMemory handles GET /v1/users/{userID}/memory.
func (h *handlers) getMemory(w http.ResponseWriter, r *http.Request) {
	m, err := h.memory.Load(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.logger.Error("api: memory load failed", "err", err)
		writeError(w, http.StatusInternalServerError, "memory unavailable")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// deleteMemory handles DELETE /v1/users/{userID}/memory.
func (h *handlers) deleteMemory(w http.ResponseWriter, r *http.Request) {
	if err := h.memory.Reset(r.Context(), chi.URLParam(r, "userID")); err != nil {
		h.logger.Error("api: memory reset failed", "err", err)
		writeError(w, http.StatusInternalServerError, "memory unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listTurns handles GET /v1/users/{userID}/turns.
func (h *handlers) listTurns(w http.ResponseWriter, r *http.Request) {
	if h.turnLog == nil {
		writeJSON(w, http.StatusOK, []memory.TurnLogEntry{})
		return
	}
	entries, err := h.turnLog.List(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.logger.Error("api: turn log read failed", "err", err)
		writeError(w, http.StatusInternalServerError, "turn log unavailable")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// buildIndex handles POST /v1/affairs/{affairID}/index.
func (h *handlers) buildIndex(w http.ResponseWriter, r *http.Request) {
	if h.indexer == nil {
		writeError(w, http.StatusNotImplemented, "indexing is not configured")
		return
	}
	affairID := strings.TrimSpace(chi.URLParam(r, "affairID"))
	stats, err := h.indexer.Build(r.Context(), affairID)
	if err != nil {
		h.logger.Error("api: index build failed", "affair_id", affairID, "err", err)
		writeError(w, http.StatusInternalServerError, "index build failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after JSON object")
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: failed to encode JSON response", "err", err)
	}
}
