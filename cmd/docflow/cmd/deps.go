package cmd

import (
	"fmt"
	"log/slog"

	"github.com/xear-health/docflow/internal/classify"
	"github.com/xear-health/docflow/internal/config"
	"github.com/xear-health/docflow/internal/directory"
	"github.com/xear-health/docflow/internal/ocr"
	"github.com/xear-health/docflow/internal/packager"
	"github.com/xear-health/docflow/internal/pipeline"
	"github.com/xear-health/docflow/internal/store"
)

// buildDependencies wires the pipeline from configuration. The progress sink
// may be nil.
func buildDependencies(cfg *config.Config, sink pipeline.ProgressSink) (*pipeline.Pipeline, *store.FileStore, *directory.FileDirectory, error) {
	documents, err := store.NewFileStore(cfg.Storage.DocumentsDir, cfg.Storage.MaxBytes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening document store: %w", err)
	}
	patients := directory.NewFileDirectory(cfg.Storage.PatientsFile)

	var delegate classify.Delegate
	if cfg.NLP.URL != "" {
		delegate = classify.NewNLPDelegate(cfg.NLP.URL, cfg.NLP.Timeout)
	}

	builder := pipeline.NewBuilder().
		WithOCR(ocr.NewClient(cfg.OCR.URL, cfg.OCR.Timeout)).
		WithStore(documents).
		WithDirectory(patients).
		WithClassifier(classify.New(delegate, slog.Default())).
		WithPackager(packager.New(packager.Config{SizeBudget: cfg.Packaging.SizeBudget}, slog.Default())).
		WithLogger(slog.Default())
	if sink != nil {
		builder = builder.WithProgress(sink)
	}
	p, err := builder.Build()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building pipeline: %w", err)
	}
	return p, documents, patients, nil
}
