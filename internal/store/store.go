// Package store persists packaged document artifacts. The default
// implementation keeps metadata in a JSON index file and the PDFs alongside
// it on disk.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Errors the pipeline distinguishes: a quota error tells the operator to
// free space, a duplicate commit means the run already succeeded.
var (
	ErrQuotaExceeded = errors.New("document storage quota exceeded")
	ErrDuplicateRun  = errors.New("artifact for this run already committed")
	ErrNotFound      = errors.New("artifact not found")
)

// Artifact workflow statuses. Auto-assigned documents are archived directly,
// everything weaker waits for an operator.
const (
	StatusAwaitingReview = "awaiting-review"
	StatusArchived       = "archived"
)

// DocumentArtifact is the persisted record of one processed document. Besides
// the packaged PDF it keeps the OCR text, both classification and match
// confidences, and a reference to the rectified page image for later review.
type DocumentArtifact struct {
	ID              string    `json:"id"`
	RunID           string    `json:"runId"`
	PatientID       string    `json:"patientId,omitempty"`
	Filename        string    `json:"filename"`
	SourceFilename  string    `json:"sourceFilename,omitempty"`
	DocType         string    `json:"docType"`
	ClassConfidence float64   `json:"classConfidence"`
	MatchTier       string    `json:"matchTier"`
	MatchConfidence float64   `json:"matchConfidence"`
	OCRText         string    `json:"ocrText,omitempty"`
	RectifiedRef    string    `json:"rectifiedRef,omitempty"`
	Status          string    `json:"status"`
	Placeholder     bool      `json:"placeholder,omitempty"`
	Size            int       `json:"size"`
	CreatedAt       time.Time `json:"createdAt"`
}

// DocumentStore is the persistence surface the pipeline depends on.
type DocumentStore interface {
	// Append stores the artifact, its PDF bytes and, when non-empty, the
	// rectified page image the PDF was built from. Committing the same
	// run id twice returns ErrDuplicateRun with the existing record, which
	// callers treat as success.
	Append(artifact DocumentArtifact, pdf, pageImage []byte) (DocumentArtifact, error)
	// List returns all artifacts, newest first.
	List() ([]DocumentArtifact, error)
	// Update rewrites mutable fields (patient assignment, filename, status)
	// of an existing artifact.
	Update(artifact DocumentArtifact) error
}

type index struct {
	Artifacts []DocumentArtifact `json:"artifacts"`
}

// FileStore is a DocumentStore backed by a directory: an index.json plus one
// PDF per artifact. All mutations rewrite the index under a mutex.
type FileStore struct {
	mu       sync.Mutex
	dir      string
	maxBytes int64
}

// NewFileStore creates the storage directory if needed. maxBytes caps the
// total size of stored PDFs; zero means unlimited.
func NewFileStore(dir string, maxBytes int64) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	return &FileStore{dir: dir, maxBytes: maxBytes}, nil
}

func (s *FileStore) indexPath() string {
	return filepath.Join(s.dir, "index.json")
}

func (s *FileStore) load() (*index, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &index{}, nil
		}
		return nil, fmt.Errorf("reading store index: %w", err)
	}
	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parsing store index: %w", err)
	}
	return &idx, nil
}

func (s *FileStore) save(idx *index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store index: %w", err)
	}
	if err := os.WriteFile(s.indexPath(), data, 0o644); err != nil {
		return fmt.Errorf("writing store index: %w", err)
	}
	return nil
}

func (s *FileStore) Append(artifact DocumentArtifact, pdf, pageImage []byte) (DocumentArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load()
	if err != nil {
		return DocumentArtifact{}, err
	}
	if artifact.RunID != "" {
		for _, existing := range idx.Artifacts {
			if existing.RunID == artifact.RunID {
				return existing, ErrDuplicateRun
			}
		}
	}
	if s.maxBytes > 0 {
		var used int64
		for _, a := range idx.Artifacts {
			used += int64(a.Size)
		}
		if used+int64(len(pdf)) > s.maxBytes {
			return DocumentArtifact{}, fmt.Errorf("%w: %d bytes used of %d", ErrQuotaExceeded, used, s.maxBytes)
		}
	}

	artifact.Size = len(pdf)
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}
	if err := os.WriteFile(s.pdfPath(artifact.ID), pdf, 0o644); err != nil {
		return DocumentArtifact{}, fmt.Errorf("writing artifact pdf: %w", err)
	}
	if len(pageImage) > 0 {
		if err := os.WriteFile(s.pageImagePath(artifact.ID), pageImage, 0o644); err != nil {
			_ = os.Remove(s.pdfPath(artifact.ID))
			return DocumentArtifact{}, fmt.Errorf("writing page image: %w", err)
		}
		artifact.RectifiedRef = artifact.ID + ".jpg"
	}
	idx.Artifacts = append(idx.Artifacts, artifact)
	if err := s.save(idx); err != nil {
		// don't leave files behind that the index never learned about
		_ = os.Remove(s.pdfPath(artifact.ID))
		if artifact.RectifiedRef != "" {
			_ = os.Remove(s.pageImagePath(artifact.ID))
		}
		return DocumentArtifact{}, err
	}
	return artifact, nil
}

func (s *FileStore) List() ([]DocumentArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]DocumentArtifact, len(idx.Artifacts))
	for i, a := range idx.Artifacts {
		out[len(out)-1-i] = a
	}
	return out, nil
}

func (s *FileStore) Update(artifact DocumentArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load()
	if err != nil {
		return err
	}
	for i := range idx.Artifacts {
		if idx.Artifacts[i].ID == artifact.ID {
			// size, creation time and the stored page reference are immutable
			artifact.Size = idx.Artifacts[i].Size
			artifact.CreatedAt = idx.Artifacts[i].CreatedAt
			artifact.RectifiedRef = idx.Artifacts[i].RectifiedRef
			idx.Artifacts[i] = artifact
			return s.save(idx)
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, artifact.ID)
}

// ReadPDF returns the stored PDF bytes for an artifact id.
func (s *FileStore) ReadPDF(id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.pdfPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("reading artifact pdf: %w", err)
	}
	return data, nil
}

func (s *FileStore) pdfPath(id string) string {
	return filepath.Join(s.dir, id+".pdf")
}

func (s *FileStore) pageImagePath(id string) string {
	return filepath.Join(s.dir, id+".jpg")
}

// ReadPageImage returns the stored rectified page image for an artifact id.
func (s *FileStore) ReadPageImage(id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.pageImagePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("reading page image: %w", err)
	}
	return data, nil
}
