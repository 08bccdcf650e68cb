package server

import (
	"context"
	"time"

	"github.com/xear-health/docflow/internal/pipeline"
	"github.com/xear-health/docflow/internal/store"
)

// pipelineInterface defines the methods the server needs from the document
// pipeline.
type pipelineInterface interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
	AssignPatient(artifactID, patientID string) (store.DocumentArtifact, error)
}

// documentLister is the read side of the document store used by the API.
type documentLister interface {
	List() ([]store.DocumentArtifact, error)
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ProcessResponse is the answer to a document upload.
type ProcessResponse struct {
	RunID          string                 `json:"run_id"`
	State          string                 `json:"state"`
	DocType        string                 `json:"doc_type"`
	MatchTier      string                 `json:"match_tier"`
	Artifact       store.DocumentArtifact `json:"artifact"`
	Placeholder    bool                   `json:"placeholder"`
	ProcessingTime int64                  `json:"processing_time_ms"`
}

// DocumentsResponse lists stored artifacts.
type DocumentsResponse struct {
	Documents []store.DocumentArtifact `json:"documents"`
	Count     int                      `json:"count"`
}

// AssignRequest attaches a patient to an artifact.
type AssignRequest struct {
	PatientID string `json:"patient_id"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

// ProgressEvent is broadcast to websocket subscribers while a document is
// processed.
type ProgressEvent struct {
	RunID   string    `json:"run_id"`
	Step    int       `json:"step,omitempty"`
	Total   int       `json:"total,omitempty"`
	State   string    `json:"state"`
	Message string    `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
	Final   bool      `json:"final"`
	Time    time.Time `json:"time"`
}
