package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xear-health/docflow/internal/classify"
	"github.com/xear-health/docflow/internal/config"
	"github.com/xear-health/docflow/internal/directory"
	"github.com/xear-health/docflow/internal/match"
	"github.com/xear-health/docflow/internal/pipeline"
	"github.com/xear-health/docflow/internal/store"
)

type stubPipeline struct {
	outcome *pipeline.Outcome
	err     error
	lastReq pipeline.Request
}

func (s *stubPipeline) Process(_ context.Context, req pipeline.Request) (*pipeline.Outcome, error) {
	s.lastReq = req
	if s.err != nil {
		return &pipeline.Outcome{State: pipeline.StateFailed}, s.err
	}
	return s.outcome, nil
}

func (s *stubPipeline) AssignPatient(artifactID, patientID string) (store.DocumentArtifact, error) {
	if artifactID != "a1" {
		return store.DocumentArtifact{}, store.ErrNotFound
	}
	return store.DocumentArtifact{ID: artifactID, PatientID: patientID}, nil
}

type stubLister struct {
	docs []store.DocumentArtifact
}

func (s *stubLister) List() ([]store.DocumentArtifact, error) { return s.docs, nil }

type stubDir struct{}

func (stubDir) ListPatients() ([]directory.Patient, error) { return nil, nil }

func (stubDir) GetPatient(string) (directory.Patient, error) { return directory.Patient{}, nil }

func (stubDir) SetWorkflowStatus(string, string, string) error { return nil }

func newTestServer(t *testing.T, p pipelineInterface, docs documentLister) *Server {
	t.Helper()
	cfg := config.ServerConfig{Host: "localhost", Port: 8080, Timeout: 5 * time.Second}
	return New(cfg, p, docs, stubDir{}, nil, nil)
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealthHandler(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{}, &stubLister{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.healthHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
}

func TestUploadHandler(t *testing.T) {
	p := &stubPipeline{outcome: &pipeline.Outcome{
		RunID:          "run-1",
		State:          pipeline.StateDone,
		Match:          match.Result{Tier: match.TierHigh},
		Classification: classify.Classification{Type: classify.TypePrescription, Confidence: 0.85},
		Artifact:       store.DocumentArtifact{ID: "a1", Filename: "Ali_Veli_prescription_x.pdf"},
	}}
	srv := newTestServer(t, p, &stubLister{})

	body, contentType := multipartBody(t, "document", "scan.jpg", []byte{0xFF, 0xD8, 0xFF})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.documentsHandler(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp ProcessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, "done", resp.State)
	assert.Equal(t, "high", resp.MatchTier)
	assert.Equal(t, "scan.jpg", p.lastReq.Filename)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, p.lastReq.Data)
}

func TestUploadHandler_MissingFileField(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{}, &stubLister{})
	body, contentType := multipartBody(t, "wrong_field", "scan.jpg", []byte{1})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.documentsHandler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadHandler_PipelineErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", &pipeline.ValidationError{Reason: "bad format"}, http.StatusUnprocessableEntity},
		{"extraction", &pipeline.ExtractionError{Err: context.DeadlineExceeded}, http.StatusBadGateway},
		{"persistence", &pipeline.PersistenceError{Err: store.ErrQuotaExceeded}, http.StatusInsufficientStorage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &stubPipeline{err: tt.err}, &stubLister{})
			body, contentType := multipartBody(t, "document", "scan.jpg", []byte{1})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			srv.documentsHandler(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestListHandler(t *testing.T) {
	docs := []store.DocumentArtifact{{ID: "a1"}, {ID: "a2"}}
	srv := newTestServer(t, &stubPipeline{}, &stubLister{docs: docs})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	rec := httptest.NewRecorder()
	srv.documentsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp DocumentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestListHandler_PatientFilter(t *testing.T) {
	docs := []store.DocumentArtifact{
		{ID: "a1", PatientID: "p-001"},
		{ID: "a2", PatientID: "p-002"},
		{ID: "a3"},
	}
	srv := newTestServer(t, &stubPipeline{}, &stubLister{docs: docs})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents?patient_id=p-002", nil)
	rec := httptest.NewRecorder()
	srv.documentsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp DocumentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "a2", resp.Documents[0].ID)
}

func TestAssignHandler(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{}, &stubLister{})

	body := strings.NewReader(`{"patient_id":"p-002"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/a1/assign", body)
	rec := httptest.NewRecorder()
	srv.documentHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var artifact store.DocumentArtifact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &artifact))
	assert.Equal(t, "p-002", artifact.PatientID)

	// unknown artifact
	req = httptest.NewRequest(http.MethodPost, "/api/v1/documents/ghost/assign", strings.NewReader(`{"patient_id":"p-002"}`))
	rec = httptest.NewRecorder()
	srv.documentHandler(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// missing patient id
	req = httptest.NewRequest(http.MethodPost, "/api/v1/documents/a1/assign", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	srv.documentHandler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProgressHub_Broadcast(t *testing.T) {
	hub := NewProgressHub(nil)
	ts := httptest.NewServer(http.HandlerFunc(hub.Subscribe))
	defer ts.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// wait for registration
	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.clients) == 1
	}, time.Second, 10*time.Millisecond)

	hub.OnStage("run-9", 3, 7, pipeline.StateExtracting, "extracting text")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt ProgressEvent
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, "run-9", evt.RunID)
	assert.Equal(t, 3, evt.Step)
	assert.Equal(t, "extracting", evt.State)
	assert.False(t, evt.Final)

	hub.OnFinished("run-9", pipeline.StateDone, nil)
	require.NoError(t, conn.ReadJSON(&evt))
	assert.True(t, evt.Final)
	assert.Equal(t, "done", evt.State)
}
