package pipeline

import "fmt"

// ValidationError rejects an upload before the pipeline starts. The message
// tells the operator what to change about the file.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "document rejected: " + e.Reason
}

// ExtractionError means the OCR engine failed and the run cannot continue.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("text extraction failed: %v (check that the OCR service is reachable, then retry the upload)", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// PersistenceError means every processing stage succeeded but the artifact
// could not be stored. The packaged bytes are retained on the outcome, so a
// retry does not repeat the expensive stages.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storing document failed: %v (the processed document was kept, retry persisting once storage is available)", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
