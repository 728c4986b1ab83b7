package events

import "time"

// Type enumerates the structured events the pipeline emits to subscribers.
type Type string

const (
	TypeGenerationStarted   Type = "generation-started"
	TypeGenerationSucceeded Type = "generation-succeeded"
	TypeGenerationFailed    Type = "generation-failed"
	// TypeGenerationAbandoned means the source file disappeared before the
	// job could finish; the outcome is terminal but not an error.
	TypeGenerationAbandoned Type = "generation-abandoned"
	TypeWatcherStatus       Type = "watcher-status"
)

// Event is one broadcast notification. Detail keys depend on the type:
// generation-succeeded carries "fingerprint" and "duration_ms",
// generation-failed carries "error" and "attempts",
// generation-abandoned carries "reason", watcher-status carries "status".
type Event struct {
	Type      Type              `json:"type"`
	File      string            `json:"file,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// New builds an event stamped with the current time.
func New(t Type, file string, detail map[string]string) Event {
	return Event{Type: t, File: file, Timestamp: time.Now().UTC(), Detail: detail}
}
