package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lox/tdomcomposite/internal/models"
	"github.com/lox/tdomcomposite/internal/store"
)

type HealthStatus struct {
	Status           string     `json:"status"`
	SchemaVersion    int        `json:"schemaVersion"`
	LastRunAt        *time.Time `json:"lastRunAt,omitempty"`
	RecentFailedRuns int        `json:"recentFailedRuns"`
	Error            string     `json:"error,omitempty"`
}

const healthRunWindow = 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{Status: "ok"}

	version, err := s.store.MigrationVersion()
	if err != nil {
		health.Status = "error"
		health.Error = err.Error()
		s.writeJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	health.SchemaVersion = version

	runs, err := s.store.RecentRuns(healthRunWindow)
	if err != nil {
		health.Status = "error"
		health.Error = err.Error()
		s.writeJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	if len(runs) > 0 {
		last := runs[0].StartedAt
		health.LastRunAt = &last
		if runs[0].FinishedAt.Valid && !runs[0].Success {
			health.Status = "degraded"
		}
	}
	for _, run := range runs {
		if run.FinishedAt.Valid && !run.Success {
			health.RecentFailedRuns++
		}
	}

	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

func (s *Server) handleListComposites(w http.ResponseWriter, r *http.Request) {
	table, err := s.store.ListMetadata(r.URL.Query().Get("region"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if table == nil {
		table = models.MetadataTable{}
	}
	s.writeJSON(w, http.StatusOK, table)
}

func (s *Server) handleGetComposite(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetMetadata(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "composite not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetArtifact(r.PathValue("id"), store.ArtifactPreview)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if a == nil {
		http.Error(w, "preview not found", http.StatusNotFound)
		return
	}

	if match := r.Header.Get("If-None-Match"); match != "" && match == `"`+a.Hash+`"` {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("ETag", `"`+a.Hash+`"`)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(a.Data)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("api: write response", zap.Error(err))
	}
}
