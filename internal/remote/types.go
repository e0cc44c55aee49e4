// Package remote is the client for the task/run tracking REST API.
// The orchestrator treats it as a fetch/update/append collaborator: task
// records are read-only, runs are created and mutated, and the run log is an
// append-only event sequence.
package remote

import (
	"encoding/json"
	"time"
)

// Run statuses. A run is terminal once completed or failed.
const (
	RunStatusStarted    = "started"
	RunStatusInProgress = "in_progress"
	RunStatusCompleted  = "completed"
	RunStatusFailed     = "failed"
)

// Run is one execution attempt of a task.
type Run struct {
	ID           string         `json:"id"`
	TaskID       string         `json:"task_id"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Output       map[string]any `json:"output,omitempty"`
	CreatedAt    time.Time      `json:"created_at,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at,omitempty"`
}

// RunPatch is a partial run update. Nil fields are left unchanged.
type RunPatch struct {
	Status       *string        `json:"status,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	Output       map[string]any `json:"output,omitempty"`
}

// LogEntry is one element of a run's append-only log. The ID gives each
// entry an identity the remote side could use for idempotent appends.
type LogEntry struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ArtifactUpload is a document pushed to the remote store at finalize.
type ArtifactUpload struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

// ArtifactUploadResult describes a stored artifact.
type ArtifactUploadResult struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	StoragePath string `json:"storage_path,omitempty"`
}
