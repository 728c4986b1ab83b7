package server

import (
	"encoding/json"
	"net/http"
	"time"

	ferrors "git.home.luguber.info/inful/autodoc/internal/foundation/errors"
	"git.home.luguber.info/inful/autodoc/internal/health"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleListDocs(w http.ResponseWriter, r *http.Request) {
	docs := s.deps.Store.List()
	s.writeJSON(w, http.StatusOK, DocumentListResponse{
		Documents: docs,
		Count:     len(docs),
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleGetDoc(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	artifact, ok := s.deps.Store.GetByName(name)
	if !ok {
		err := ferrors.NewError(ferrors.CategoryNotFound, "document not found").
			WithContext("name", name).Build()
		s.adapter.WriteErrorResponse(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, DocumentResponse{
		Name:              artifact.Name,
		Path:              artifact.Path,
		Markdown:          string(artifact.Markdown),
		Diagram:           artifact.Diagram,
		Outline:           artifact.Outline,
		Fingerprint:       artifact.Fingerprint,
		SourceFingerprint: artifact.SourceFingerprint,
		Revision:          artifact.Revision,
		Degraded:          artifact.Model != nil && artifact.Model.Degraded,
		GeneratedAt:       artifact.GeneratedAt,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Health()
	status := http.StatusOK
	if snap.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, HealthResponse{
		Snapshot:  snap,
		Revision:  s.deps.Revision,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.deps.Config
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Health:    s.deps.Health(),
		Scheduler: s.deps.SchedulerStatus(),
		Watcher:   s.deps.WatcherStatus(),
		Documents: s.deps.Store.Len(),
		Config: ConfigSummary{
			SourceDir: cfg.SourceDir,
			OutputDir: cfg.OutputDir,
			Pattern:   cfg.Watch.Pattern,
			Debounce:  cfg.Watch.Debounce,
			Workers:   cfg.Generation.Workers,
		},
		Revision:  s.deps.Revision,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleGenerateAll(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	result := s.deps.GenerateAll(force)
	s.writeJSON(w, http.StatusAccepted, GenerateResponse{
		Status:    "queued",
		Queued:    result.Queued,
		Skipped:   result.Skipped,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleGenerateOne(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	artifact, ok := s.deps.Store.GetByName(name)
	if !ok {
		err := ferrors.NewError(ferrors.CategoryNotFound, "document not found").
			WithContext("name", name).Build()
		s.adapter.WriteErrorResponse(w, r, err)
		return
	}
	s.deps.Generate(artifact.Path)
	s.writeJSON(w, http.StatusAccepted, GenerateResponse{
		Status:    "queued",
		Queued:    1,
		Timestamp: time.Now().UTC(),
	})
}
