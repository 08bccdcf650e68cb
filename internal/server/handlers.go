package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xear-health/docflow/internal/pipeline"
	"github.com/xear-health/docflow/internal/store"
	"github.com/xear-health/docflow/internal/version"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// documentsHandler serves POST (upload) and GET (list) on /api/v1/documents.
func (s *Server) documentsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.uploadHandler(w, r)
	case http.MethodGet:
		s.listHandler(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	}
}

// uploadHandler accepts a multipart form with a "document" file field and
// runs it through the pipeline synchronously. Progress is available on the
// websocket feed keyed by the returned run id.
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, pipeline.MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(pipeline.MaxUploadSize); err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed", "validation")
		return
	}
	file, header, err := r.FormFile("document")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing 'document' file field", "validation")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "reading upload failed", "validation")
		return
	}

	req := pipeline.Request{
		Data:     data,
		Filename: header.Filename,
		RunID:    r.FormValue("run_id"),
	}
	out, err := s.pipeline.Process(r.Context(), req)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ProcessResponse{
		RunID:          out.RunID,
		State:          string(out.State),
		DocType:        out.Classification.Type,
		MatchTier:      string(out.Match.Tier),
		Artifact:       out.Artifact,
		Placeholder:    out.Artifact.Placeholder,
		ProcessingTime: time.Since(start).Milliseconds(),
	})
}

func (s *Server) listHandler(w http.ResponseWriter, r *http.Request) {
	docs, err := s.documents.List()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "listing documents failed", "storage")
		return
	}
	if patientID := r.URL.Query().Get("patient_id"); patientID != "" {
		filtered := make([]store.DocumentArtifact, 0, len(docs))
		for _, d := range docs {
			if d.PatientID == patientID {
				filtered = append(filtered, d)
			}
		}
		docs = filtered
	}
	s.writeJSON(w, http.StatusOK, DocumentsResponse{Documents: docs, Count: len(docs)})
}

// documentHandler serves POST /api/v1/documents/{id}/assign.
func (s *Server) documentHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/documents/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "assign" || parts[0] == "" {
		s.writeError(w, http.StatusNotFound, "not found", "")
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PatientID == "" {
		s.writeError(w, http.StatusBadRequest, "body must carry a patient_id", "validation")
		return
	}
	artifact, err := s.pipeline.AssignPatient(parts[0], req.PatientID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error(), "assignment")
		return
	}
	s.writeJSON(w, http.StatusOK, artifact)
}

func (s *Server) writePipelineError(w http.ResponseWriter, err error) {
	var vErr *pipeline.ValidationError
	var eErr *pipeline.ExtractionError
	var pErr *pipeline.PersistenceError
	switch {
	case errors.As(err, &vErr):
		s.writeError(w, http.StatusUnprocessableEntity, vErr.Error(), "validation")
	case errors.As(err, &eErr):
		s.writeError(w, http.StatusBadGateway, eErr.Error(), "extraction")
	case errors.As(err, &pErr):
		s.writeError(w, http.StatusInsufficientStorage, pErr.Error(), "persistence")
	default:
		s.writeError(w, http.StatusInternalServerError, "document processing failed", "internal")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encoding response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg, errType string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg, Type: errType})
}
