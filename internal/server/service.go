// Package server exposes the invoice pipeline over HTTP: it stores uploaded
// audio, runs inference, reconciles the result, renders a PDF and stores it.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voiceinvoice/voice-invoice/internal/errs"
	"github.com/voiceinvoice/voice-invoice/internal/inference"
	"github.com/voiceinvoice/voice-invoice/internal/invoice"
	"github.com/voiceinvoice/voice-invoice/internal/render"
	"github.com/voiceinvoice/voice-invoice/internal/storage"
)

// IDGenerator generates unique IDs for audio objects
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Model is the inference resource the service drives.
type Model interface {
	Load(ctx context.Context) error
	Unload() error
	Status() inference.Status
	Infer(ctx context.Context, audio []byte, mimeType, transcript string) (string, error)
}

// Buckets names the blob buckets for audio inputs and rendered invoices.
type Buckets struct {
	Audio    string
	Invoices string
}

// DefaultBuckets matches the bucket names of existing deployments.
var DefaultBuckets = Buckets{Audio: "audio-inputs", Invoices: "generated-invoices"}

// Options carries the collaborators of a Service.
type Options struct {
	Store    storage.Store
	Model    Model
	Pipeline *invoice.Pipeline
	Renderer render.Renderer
	Buckets  Buckets

	// Lookup and TablesPath enable ReloadTables.
	Lookup     *invoice.SyncedLookup
	TablesPath string

	Logger *slog.Logger
}

// Result is the outcome of a generate call.
type Result struct {
	Invoice     invoice.Record `json:"invoice_data"`
	AudioObject string         `json:"audio_object_name,omitempty"`
	PDFObject   string         `json:"pdf_object_name"`
}

// Service orchestrates storage, inference, the pipeline and rendering.
type Service struct {
	store      storage.Store
	model      Model
	pipeline   *invoice.Pipeline
	renderer   render.Renderer
	buckets    Buckets
	lookup     *invoice.SyncedLookup
	tablesPath string
	logger     *slog.Logger

	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with the default ID generator and time
// source.
func NewService(opts Options) *Service {
	return NewServiceWithDeps(opts, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(opts Options, idGen IDGenerator, timeSrc TimeSource) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Buckets == (Buckets{}) {
		opts.Buckets = DefaultBuckets
	}
	return &Service{
		store:       opts.Store,
		model:       opts.Model,
		pipeline:    opts.Pipeline,
		renderer:    opts.Renderer,
		buckets:     opts.Buckets,
		lookup:      opts.Lookup,
		tablesPath:  opts.TablesPath,
		logger:      opts.Logger,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Buckets returns the configured bucket names.
func (s *Service) Buckets() Buckets {
	return s.buckets
}

// GenerateFromAudio stores the recording, runs inference on the stored copy,
// reconciles the model output and renders the invoice.
func (s *Service) GenerateFromAudio(ctx context.Context, filename string, audio []byte, contentType, transcript string) (*Result, error) {
	if len(audio) == 0 {
		return nil, errs.BadInput("audio file is empty")
	}
	contentType, err := audioContentType(contentType, audio, filename)
	if err != nil {
		return nil, err
	}

	audioObject := fmt.Sprintf("audio-%s%s", s.idGenerator.Generate(), audioExtension(filename, contentType))
	if err := s.store.Put(ctx, s.buckets.Audio, audioObject, audio, contentType); err != nil {
		return nil, fmt.Errorf("storing audio: %w", err)
	}
	s.logger.Info("Stored audio", "bucket", s.buckets.Audio, "object", audioObject, "content_type", contentType, "size", len(audio))

	stored, err := s.store.Get(ctx, s.buckets.Audio, audioObject)
	if err != nil {
		return nil, fmt.Errorf("loading stored audio: %w", err)
	}

	raw, err := s.model.Infer(ctx, stored, contentType, transcript)
	if err != nil {
		return nil, err
	}

	rec, err := s.pipeline.Process(invoice.TextInput(raw))
	if err != nil {
		s.logger.Error("Failed to extract invoice",
			"audio_object", audioObject,
			"kind", errs.KindOf(err),
			"error", err,
		)
		return nil, err
	}

	result, err := s.publish(ctx, rec)
	if err != nil {
		return nil, err
	}
	result.AudioObject = audioObject
	return result, nil
}

// GenerateFromData reconciles a caller-supplied record and renders it.
func (s *Service) GenerateFromData(ctx context.Context, r invoice.Record) (*Result, error) {
	rec, err := s.pipeline.Process(invoice.RecordInput(r))
	if err != nil {
		return nil, err
	}
	return s.publish(ctx, rec)
}

// Extract runs the text pipeline without rendering anything.
func (s *Service) Extract(_ context.Context, raw string) (invoice.Record, error) {
	if strings.TrimSpace(raw) == "" {
		return invoice.Record{}, errs.BadInput("model output is empty")
	}
	return s.pipeline.Process(invoice.TextInput(raw))
}

// publish numbers, renders and stores a reconciled record.
func (s *Service) publish(ctx context.Context, rec invoice.Record) (*Result, error) {
	now := s.timeSource.Now()
	rec = render.AssignNumber(rec, now)

	pdf, err := s.renderer.Render(rec)
	if err != nil {
		return nil, fmt.Errorf("rendering invoice: %w", err)
	}

	name := render.ObjectName(rec, now)
	if err := s.store.Put(ctx, s.buckets.Invoices, name, pdf, "application/pdf"); err != nil {
		return nil, fmt.Errorf("storing invoice: %w", err)
	}
	s.logger.Info("Generated invoice",
		"object", name,
		"invoice_number", *rec.InvoiceNumber,
		"grand_total", *rec.GrandTotal,
	)

	return &Result{Invoice: rec, PDFObject: name}, nil
}

// GetPDF reads a rendered invoice.
func (s *Service) GetPDF(ctx context.Context, name string) ([]byte, error) {
	return s.read(ctx, s.buckets.Invoices, name, "invoice")
}

// GetAudio reads a stored recording and reports its content type: the one
// recorded at upload when the store keeps it, else a sniffed one.
func (s *Service) GetAudio(ctx context.Context, name string) ([]byte, string, error) {
	data, err := s.read(ctx, s.buckets.Audio, name, "audio file")
	if err != nil {
		return nil, "", err
	}
	if typer, ok := s.store.(storage.ContentTyper); ok {
		if contentType, err := typer.ContentType(ctx, s.buckets.Audio, name); err == nil && contentType != "" {
			return data, contentType, nil
		}
	}
	contentType, err := audioContentType("", data, name)
	if err != nil {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

func (s *Service) read(ctx context.Context, bucket, name, what string) ([]byte, error) {
	found, err := s.store.Exists(ctx, bucket, name)
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", what, err)
	}
	if !found {
		return nil, errs.NotFound("%s %q not found in bucket %q", what, name, bucket)
	}
	data, err := s.store.Get(ctx, bucket, name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", what, err)
	}
	return data, nil
}

// LoadModel loads the inference backend.
func (s *Service) LoadModel(ctx context.Context) error {
	return s.model.Load(ctx)
}

// UnloadModel releases the inference backend.
func (s *Service) UnloadModel() error {
	return s.model.Unload()
}

// ModelStatus reports the inference backend state.
func (s *Service) ModelStatus() inference.Status {
	return s.model.Status()
}

// ReloadTables re-reads the lookup table file and swaps it in for
// subsequent reconciles. It returns the number of catalog items loaded.
func (s *Service) ReloadTables() (int, error) {
	if s.lookup == nil || s.tablesPath == "" {
		return 0, errs.BadInput("no lookup table file is configured")
	}
	tables, err := invoice.LoadTables(s.tablesPath)
	if err != nil {
		return 0, errs.BadInput("%v", err)
	}
	s.lookup.Replace(tables)
	s.logger.Info("Reloaded lookup tables", "path", s.tablesPath, "catalog_items", len(tables.Catalog()))
	return len(tables.Catalog()), nil
}

func audioExtension(filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != "" && len(ext) <= 6 && isSafeExt(ext) {
		return ext
	}
	return extensionFor(contentType)
}

func isSafeExt(ext string) bool {
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return len(ext) > 1
}
