// Package pipeline orchestrates document processing: validation, geometry
// rectification, OCR, entity extraction, identity resolution,
// classification, packaging and persistence. Stages after validation degrade
// rather than fail wherever possible, so a barely legible photo still ends
// up as an archivable artifact flagged for review.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/xear-health/docflow/internal/classify"
	"github.com/xear-health/docflow/internal/directory"
	"github.com/xear-health/docflow/internal/extract"
	"github.com/xear-health/docflow/internal/match"
	"github.com/xear-health/docflow/internal/ocr"
	"github.com/xear-health/docflow/internal/packager"
	"github.com/xear-health/docflow/internal/rectify"
	"github.com/xear-health/docflow/internal/store"
	"github.com/xear-health/docflow/internal/utils"
)

// MaxUploadSize is the largest accepted upload.
const MaxUploadSize = 15 << 20

// totalStages is the number of progress steps reported per run.
const totalStages = 7

// WorkflowArchived is the event written to the patient directory when a
// document is linked to a patient.
const WorkflowArchived = "document-archived"

// weakClassification marks verdicts that need an operator double-check.
const weakClassification = 0.3

// Rectifier straightens a page image. Implementations must not fail on
// unusual content; they return the input unchanged instead.
type Rectifier interface {
	Apply(img image.Image) (*rectify.Result, error)
}

// Resolver matches extracted entities against the patient directory.
type Resolver interface {
	Resolve(ents extract.Entities, rawText string, patients []directory.Patient) match.Result
}

// Classifier assigns a document type.
type Classifier interface {
	Classify(ctx context.Context, text, filename string) classify.Classification
}

// Packager builds the archive PDF.
type Packager interface {
	Package(img image.Image, filename string) (*packager.Result, error)
}

// Request is one document upload.
type Request struct {
	Data     []byte
	Filename string
	// RunID deduplicates retries of the same upload. Empty means a fresh
	// run id is generated.
	RunID string
}

// Run tracks one document through the pipeline.
type Run struct {
	ID    string
	State State
}

// Outcome is the result of a processing run. On a persistence failure the
// packaged PDF and rectified page are retained here so RetryPersist can
// finish the run without repeating the earlier stages.
type Outcome struct {
	RunID          string
	State          State
	Artifact       store.DocumentArtifact
	SourceFilename string
	Text           string
	Entities       extract.Entities
	Match          match.Result
	Classification classify.Classification
	Packaged       *packager.Result
	PageImage      []byte
}

// Pipeline wires the processing stages together. Construct it with Builder.
type Pipeline struct {
	rectifier  Rectifier
	engine     ocr.Engine
	resolver   Resolver
	classifier Classifier
	packager   Packager
	documents  store.DocumentStore
	patients   directory.Directory
	progress   ProgressSink
	logger     *slog.Logger
	now        func() time.Time
}

// Builder assembles a Pipeline. OCR engine, document store and patient
// directory are required; everything else has production defaults.
type Builder struct {
	p   Pipeline
	err error
}

// NewBuilder starts a pipeline configuration.
func NewBuilder() *Builder {
	return &Builder{p: Pipeline{
		progress: NoOpProgressSink{},
		now:      time.Now,
	}}
}

func (b *Builder) WithOCR(engine ocr.Engine) *Builder { b.p.engine = engine; return b }

func (b *Builder) WithStore(s store.DocumentStore) *Builder { b.p.documents = s; return b }

func (b *Builder) WithDirectory(d directory.Directory) *Builder { b.p.patients = d; return b }

func (b *Builder) WithRectifier(r Rectifier) *Builder { b.p.rectifier = r; return b }

func (b *Builder) WithResolver(r Resolver) *Builder { b.p.resolver = r; return b }

func (b *Builder) WithClassifier(c Classifier) *Builder { b.p.classifier = c; return b }

func (b *Builder) WithPackager(pk Packager) *Builder { b.p.packager = pk; return b }

func (b *Builder) WithProgress(sink ProgressSink) *Builder { b.p.progress = sink; return b }

func (b *Builder) WithLogger(l *slog.Logger) *Builder { b.p.logger = l; return b }

// Build validates the configuration and returns the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if b.err != nil {
		return nil, b.err
	}
	p := b.p
	if p.engine == nil {
		return nil, errors.New("pipeline requires an OCR engine")
	}
	if p.documents == nil {
		return nil, errors.New("pipeline requires a document store")
	}
	if p.patients == nil {
		return nil, errors.New("pipeline requires a patient directory")
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.rectifier == nil {
		p.rectifier = rectify.New(rectify.DefaultConfig())
	}
	if p.resolver == nil {
		p.resolver = match.NewResolver(p.logger)
	}
	if p.classifier == nil {
		p.classifier = classify.New(nil, p.logger)
	}
	if p.packager == nil {
		p.packager = packager.New(packager.DefaultConfig(), p.logger)
	}
	if p.progress == nil {
		p.progress = NoOpProgressSink{}
	}
	return &p, nil
}

// Process runs one document through every stage. Context cancellation is
// honored at stage boundaries; a canceled run returns the context error and
// persists nothing.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Outcome, error) {
	run := &Run{ID: req.RunID, State: StateUploaded}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	out := &Outcome{RunID: run.ID, SourceFilename: req.Filename}
	logger := p.logger.With("run", run.ID, "filename", req.Filename)

	finish := func(err error) (*Outcome, error) {
		out.State = run.State
		if run.State == StateDone || run.State == StateFailed {
			documentsProcessed.WithLabelValues(string(run.State)).Inc()
		}
		p.progress.OnFinished(run.ID, run.State, err)
		return out, err
	}

	// stage 1: validation
	p.stage(run, 1, "validating upload")
	mediaType, err := p.validate(req)
	if err != nil {
		run.advance(StateFailed)
		logger.Warn("upload rejected", "error", err)
		return finish(err)
	}

	// stage 2: geometry rectification
	if err := ctx.Err(); err != nil {
		return finish(err)
	}
	run.advance(StateRectifying)
	p.stage(run, 2, "straightening page image")
	pageImage := p.rectifyInput(req.Data, mediaType, logger)
	out.PageImage = encodePage(pageImage, logger)

	// stage 3: text extraction
	if err := ctx.Err(); err != nil {
		return finish(err)
	}
	run.advance(StateExtracting)
	p.stage(run, 3, "extracting text")
	text, err := p.extractText(ctx, out.PageImage)
	if err != nil {
		if ctx.Err() != nil {
			return finish(ctx.Err())
		}
		run.advance(StateFailed)
		extErr := &ExtractionError{Err: err}
		logger.Error("text extraction failed", "error", err)
		return finish(extErr)
	}
	out.Text = text
	out.Entities = extract.Extract(text)

	// stage 4: identity resolution
	if err := ctx.Err(); err != nil {
		return finish(err)
	}
	run.advance(StateResolving)
	p.stage(run, 4, "resolving patient identity")
	patients, err := p.patients.ListPatients()
	if err != nil {
		logger.Warn("patient directory unavailable, resolving against empty list", "error", err)
		patients = nil
	}
	out.Match = p.resolver.Resolve(out.Entities, text, patients)
	matchTiers.WithLabelValues(string(out.Match.Tier)).Inc()

	// stage 5: classification
	if err := ctx.Err(); err != nil {
		return finish(err)
	}
	run.advance(StateClassifying)
	p.stage(run, 5, "classifying document")
	out.Classification = p.classifier.Classify(ctx, text, req.Filename)

	// stage 6: packaging
	if err := ctx.Err(); err != nil {
		return finish(err)
	}
	run.advance(StatePackaging)
	p.stage(run, 6, "packaging archive document")
	packaged, err := p.pack(pageImage, out, logger)
	if err != nil {
		if ctx.Err() != nil {
			return finish(ctx.Err())
		}
		// fall back to a placeholder so the run still yields an artifact
		logger.Warn("packaging page image failed, archiving placeholder", "error", err)
		packaged, err = p.packager.Package(nil, p.archiveFilename(out))
		if err != nil {
			run.advance(StatePersisting)
			run.advance(StateFailed)
			return finish(&PersistenceError{Err: fmt.Errorf("packaging failed: %w", err)})
		}
	}
	out.Packaged = packaged
	if packaged.Placeholder {
		packagedPlaceholders.Inc()
	}

	// stage 7: persistence
	if err := ctx.Err(); err != nil {
		return finish(err)
	}
	run.advance(StatePersisting)
	p.stage(run, 7, "storing archive document")
	if err := p.persist(run, out, logger); err != nil {
		run.advance(StateFailed)
		return finish(err)
	}

	run.advance(StateDone)
	p.notifyWorkflow(out, logger)
	logger.Info("document processed",
		"docType", out.Classification.Type,
		"matchTier", out.Match.Tier,
		"artifact", out.Artifact.ID,
		"placeholder", packaged.Placeholder)
	return finish(nil)
}

func (p *Pipeline) validate(req Request) (string, error) {
	if len(req.Data) == 0 {
		return "", &ValidationError{Reason: "the uploaded file is empty"}
	}
	if len(req.Data) > MaxUploadSize {
		return "", &ValidationError{Reason: fmt.Sprintf(
			"the file is %d bytes, the limit is %d; rescan at a lower resolution", len(req.Data), MaxUploadSize)}
	}
	mediaType := utils.DetectMediaType(req.Data)
	switch mediaType {
	case utils.MediaTypeJPEG, utils.MediaTypePNG, utils.MediaTypeTIFF, utils.MediaTypePDF:
		return mediaType, nil
	default:
		return "", &ValidationError{Reason: "unsupported file format; upload a JPEG, PNG, TIFF or PDF scan"}
	}
}

// rectifyInput decodes the upload and straightens the page. It never fails:
// an undecodable page yields nil, which later stages turn into a placeholder
// artifact.
func (p *Pipeline) rectifyInput(data []byte, mediaType string, logger *slog.Logger) image.Image {
	start := p.now()
	defer func() {
		stageDuration.WithLabelValues("rectify").Observe(p.now().Sub(start).Seconds())
	}()

	var img image.Image
	var err error
	if mediaType == utils.MediaTypePDF {
		img, err = utils.ExtractPDFRaster(data)
	} else {
		img, _, err = utils.DecodeRaster(data)
	}
	if err != nil {
		logger.Warn("page image could not be decoded", "mediaType", mediaType, "error", err)
		return nil
	}

	res, err := p.rectifier.Apply(img)
	if err != nil {
		logger.Warn("rectification failed, using original image", "error", err)
		return img
	}
	logger.Debug("page rectified",
		"boundaryDetected", res.BoundaryDetected,
		"strategy", res.Strategy,
		"width", res.Width, "height", res.Height)
	return res.Image
}

// encodePage re-encodes the rectified page as JPEG for the OCR engine and the
// store. A nil page or a failed encode yields nil.
func encodePage(pageImage image.Image, logger *slog.Logger) []byte {
	if pageImage == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, pageImage, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		logger.Warn("encoding rectified page failed", "error", err)
		return nil
	}
	return buf.Bytes()
}

// extractText OCRs the rectified page. An empty page yields empty text
// without consulting the engine.
func (p *Pipeline) extractText(ctx context.Context, pageJPEG []byte) (string, error) {
	if len(pageJPEG) == 0 {
		return "", nil
	}
	start := p.now()
	defer func() {
		stageDuration.WithLabelValues("ocr").Observe(p.now().Sub(start).Seconds())
	}()

	res, err := p.engine.ExtractText(ctx, pageJPEG)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (p *Pipeline) pack(pageImage image.Image, out *Outcome, logger *slog.Logger) (*packager.Result, error) {
	start := p.now()
	defer func() {
		stageDuration.WithLabelValues("package").Observe(p.now().Sub(start).Seconds())
	}()
	return p.packager.Package(pageImage, p.archiveFilename(out))
}

// archiveFilename derives the final artifact name from the match tier and
// classification verdict.
func (p *Pipeline) archiveFilename(out *Outcome) string {
	name := ""
	if best, ok := out.Match.Best(); ok && out.Match.Tier != match.TierNone {
		name = best.Patient.FullName()
	}
	var suffix string
	switch out.Match.Tier {
	case match.TierHigh:
		// no suffix, safe to auto-assign
	case match.TierMedium:
		suffix = packager.SuffixVerify
	case match.TierLow:
		suffix = packager.SuffixManual
	default:
		suffix = packager.SuffixUnmatched
	}
	if out.Classification.Confidence <= weakClassification {
		suffix += packager.SuffixCheck
	}
	return packager.BuildFilename(name, out.Classification.Type, suffix, p.now().UTC())
}

// persist commits the packaged artifact. A duplicate run id means an earlier
// attempt already succeeded; the stored artifact is adopted as this run's
// result.
func (p *Pipeline) persist(run *Run, out *Outcome, logger *slog.Logger) error {
	artifact := store.DocumentArtifact{
		ID:              uuid.NewString(),
		RunID:           run.ID,
		Filename:        out.Packaged.Filename,
		SourceFilename:  out.SourceFilename,
		DocType:         out.Classification.Type,
		ClassConfidence: out.Classification.Confidence,
		MatchTier:       string(out.Match.Tier),
		OCRText:         out.Text,
		Status:          store.StatusAwaitingReview,
		Placeholder:     out.Packaged.Placeholder,
		CreatedAt:       p.now().UTC(),
	}
	if best, ok := out.Match.Best(); ok {
		artifact.MatchConfidence = best.Confidence
		if out.Match.Tier == match.TierHigh {
			artifact.PatientID = best.Patient.ID
			artifact.Status = store.StatusArchived
		}
	}

	stored, err := p.documents.Append(artifact, out.Packaged.PDF, out.PageImage)
	if errors.Is(err, store.ErrDuplicateRun) {
		logger.Info("run already committed, reusing stored artifact", "artifact", stored.ID)
		out.Artifact = stored
		return nil
	}
	if err != nil {
		logger.Error("storing artifact failed", "error", err)
		return &PersistenceError{Err: err}
	}
	out.Artifact = stored
	return nil
}

// RetryPersist finishes a run that failed in the persistence stage, reusing
// the retained packaged bytes.
func (p *Pipeline) RetryPersist(ctx context.Context, out *Outcome) error {
	if out == nil || out.Packaged == nil {
		return errors.New("nothing to persist: outcome carries no packaged document")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	run := &Run{ID: out.RunID, State: StatePersisting}
	if err := p.persist(run, out, p.logger.With("run", out.RunID)); err != nil {
		return err
	}
	out.State = StateDone
	documentsProcessed.WithLabelValues(string(StateDone)).Inc()
	p.notifyWorkflow(out, p.logger)
	return nil
}

// AssignPatient attaches an operator-chosen patient to a stored artifact and
// renames it without review suffixes.
func (p *Pipeline) AssignPatient(artifactID, patientID string) (store.DocumentArtifact, error) {
	patient, err := p.patients.GetPatient(patientID)
	if err != nil {
		return store.DocumentArtifact{}, fmt.Errorf("looking up patient: %w", err)
	}
	artifacts, err := p.documents.List()
	if err != nil {
		return store.DocumentArtifact{}, fmt.Errorf("listing artifacts: %w", err)
	}
	for _, a := range artifacts {
		if a.ID != artifactID {
			continue
		}
		a.PatientID = patient.ID
		a.MatchTier = string(match.TierHigh)
		a.Status = store.StatusArchived
		a.Filename = packager.BuildFilename(patient.FullName(), a.DocType, "", p.now().UTC())
		if err := p.documents.Update(a); err != nil {
			return store.DocumentArtifact{}, fmt.Errorf("updating artifact: %w", err)
		}
		if err := p.patients.SetWorkflowStatus(patient.ID, WorkflowArchived, a.Filename); err != nil {
			p.logger.Warn("workflow status update failed", "patient", patient.ID, "error", err)
		}
		return a, nil
	}
	return store.DocumentArtifact{}, fmt.Errorf("artifact not found: %s", artifactID)
}

// notifyWorkflow records the document event in the patient directory. It only
// fires for persists that linked the artifact to a patient; weaker matches
// stay awaiting review until an operator assigns them. Failures are logged,
// never fatal.
func (p *Pipeline) notifyWorkflow(out *Outcome, logger *slog.Logger) {
	if out.Artifact.PatientID == "" {
		return
	}
	if err := p.patients.SetWorkflowStatus(out.Artifact.PatientID, WorkflowArchived, out.Artifact.Filename); err != nil {
		logger.Warn("workflow status update failed", "patient", out.Artifact.PatientID, "error", err)
	}
}

func (p *Pipeline) stage(run *Run, step int, message string) {
	p.progress.OnStage(run.ID, step, totalStages, run.State, message)
}
