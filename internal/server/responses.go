package server

import (
	"time"

	"git.home.luguber.info/inful/autodoc/internal/health"
	"git.home.luguber.info/inful/autodoc/internal/renderer"
	"git.home.luguber.info/inful/autodoc/internal/scheduler"
	"git.home.luguber.info/inful/autodoc/internal/store"
	"git.home.luguber.info/inful/autodoc/internal/watcher"
)

// DocumentListResponse is the payload of GET /api/docs.
type DocumentListResponse struct {
	Documents []store.Summary `json:"documents"`
	Count     int             `json:"count"`
	Timestamp time.Time       `json:"timestamp"`
}

// DocumentResponse is the payload of GET /api/docs/{name}.
type DocumentResponse struct {
	Name              string             `json:"name"`
	Path              string             `json:"path"`
	Markdown          string             `json:"markdown"`
	Diagram           string             `json:"diagram,omitempty"`
	Outline           []renderer.Heading `json:"outline,omitempty"`
	Fingerprint       string             `json:"fingerprint"`
	SourceFingerprint string             `json:"source_fingerprint"`
	Revision          string             `json:"revision,omitempty"`
	Degraded          bool               `json:"degraded,omitempty"`
	GeneratedAt       time.Time          `json:"generated_at"`
}

// HealthResponse is the payload of GET /api/health.
type HealthResponse struct {
	health.Snapshot
	Revision  string    `json:"revision,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse is the payload of GET /api/status.
type StatusResponse struct {
	Health    health.Snapshot  `json:"health"`
	Scheduler scheduler.Status `json:"scheduler"`
	Watcher   watcher.Status   `json:"watcher"`
	Documents int              `json:"documents"`
	Config    ConfigSummary    `json:"config"`
	Revision  string           `json:"revision,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// ConfigSummary is the sanitized configuration view in status responses.
type ConfigSummary struct {
	SourceDir string `json:"source_dir"`
	OutputDir string `json:"output_dir"`
	Pattern   string `json:"pattern"`
	Debounce  string `json:"debounce"`
	Workers   int    `json:"workers"`
}

// GenerateResponse is the payload of POST /api/generate.
type GenerateResponse struct {
	Status    string    `json:"status"`
	Queued    int       `json:"queued"`
	Skipped   int       `json:"skipped"`
	Timestamp time.Time `json:"timestamp"`
}
