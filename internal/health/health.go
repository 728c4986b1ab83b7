// Package health derives an overall service status from generation counts.
package health

// Status represents the overall health of the documentation pipeline.
type Status string

const (
	// StatusStarting is reported until the initial scan has completed.
	StatusStarting Status = "starting"
	// StatusHealthy means every known source file has a current artifact.
	StatusHealthy Status = "healthy"
	// StatusDegraded means generation failed for some files but the
	// service is still producing artifacts for the rest.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy means the service cannot do useful work at all,
	// e.g. the source directory is unreadable.
	StatusUnhealthy Status = "unhealthy"
)

// Inputs are the raw counts health is computed from. Callers snapshot
// these under their own locking; Compute itself holds no state.
type Inputs struct {
	// InitialScanDone is set once the first full directory scan and its
	// generation wave have finished.
	InitialScanDone bool
	// SourceUnreadable is set when the source directory cannot be listed.
	SourceUnreadable bool
	TotalFiles       int
	Succeeded        int
	Failed           int
	Pending          int
}

// Snapshot is the externally visible health report.
type Snapshot struct {
	Status     Status `json:"status"`
	TotalFiles int    `json:"total_files"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Pending    int    `json:"pending"`
}

// Compute derives the status from counts alone so repeated calls with
// the same inputs always agree.
func Compute(in Inputs) Snapshot {
	s := Snapshot{
		TotalFiles: in.TotalFiles,
		Succeeded:  in.Succeeded,
		Failed:     in.Failed,
		Pending:    in.Pending,
	}

	switch {
	case in.SourceUnreadable:
		s.Status = StatusUnhealthy
	case !in.InitialScanDone:
		s.Status = StatusStarting
	case in.TotalFiles > 0 && in.Succeeded == 0 && in.Failed > 0:
		s.Status = StatusUnhealthy
	case in.Failed > 0:
		s.Status = StatusDegraded
	default:
		s.Status = StatusHealthy
	}
	return s
}

// Healthy reports whether the status indicates the service is fully
// operational.
func (s Snapshot) Healthy() bool {
	return s.Status == StatusHealthy
}
