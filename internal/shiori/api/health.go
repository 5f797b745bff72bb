package api

import (
	"context"
	"net/http"
	"time"

	"github.com/bdobrica/Shiori/common/version"
)

// StatusProvider reports the number of affairs with a project record.
type StatusProvider interface {
	AffairCount(ctx context.Context) (int, error)
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

type statusResponse struct {
	Status      string    `json:"status"`
	Version     string    `json:"version"`
	Commit      string    `json:"commit"`
	BuildTime   string    `json:"build_time"`
	StartedAt   time.Time `json:"started_at"`
	UptimeSecs  float64   `json:"uptime_seconds"`
	AffairCount int       `json:"affair_count"`
	Matrix      bool      `json:"matrix_gateway"`
}

type healthHandlers struct {
	status    StatusProvider
	startedAt time.Time
	matrix    bool
}

func (h *healthHandlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

func (h *healthHandlers) statusz(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:     "ok",
		Version:    version.Version,
		Commit:     version.GitCommit,
		BuildTime:  version.BuildTime,
		StartedAt:  h.startedAt,
		UptimeSecs: time.Since(h.startedAt).Seconds(),
		Matrix:     h.matrix,
	}
	if h.status != nil {
		n, err := h.status.AffairCount(r.Context())
		if err != nil {
			resp.Status = "degraded"
		} else {
			resp.AffairCount = n
		}
	}
	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
