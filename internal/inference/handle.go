package inference

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voiceinvoice/voice-invoice/internal/errs"
)

// Factory constructs a backend. It is called by Handle.Load.
type Factory func(ctx context.Context) (Inferrer, error)

// Status describes the model resource.
type Status struct {
	Backend  string     `json:"backend"`
	Loaded   bool       `json:"loaded"`
	LoadedAt *time.Time `json:"loaded_at,omitempty"`
}

// Handle owns the single model backend of the process. Infer calls share a
// read lock, so Unload waits for in-flight requests before closing the
// backend.
type Handle struct {
	name    string
	factory Factory
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	backend  Inferrer
	loadedAt time.Time
}

// NewHandle creates an unloaded handle for the named backend.
func NewHandle(name string, factory Factory, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handle{
		name:    name,
		factory: factory,
		logger:  logger,
		now:     time.Now,
	}
}

// Load constructs the backend unless it is already loaded.
func (h *Handle) Load(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.backend != nil {
		return nil
	}

	start := h.now()
	backend, err := h.factory(ctx)
	if err != nil {
		h.logger.Error("Failed to load model", "backend", h.name, "error", err)
		return errs.InferenceUnavailable(err, "loading "+h.name+" model")
	}
	h.backend = backend
	h.loadedAt = h.now()
	h.logger.Info("Model loaded", "backend", h.name, "duration", h.loadedAt.Sub(start))
	return nil
}

// Unload closes the backend. Unloading an unloaded handle is a no-op.
func (h *Handle) Unload() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.backend == nil {
		return nil
	}
	err := h.backend.Close()
	h.backend = nil
	h.loadedAt = time.Time{}
	h.logger.Info("Model unloaded", "backend", h.name)
	return err
}

// Ready reports whether Infer can be served.
func (h *Handle) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.backend != nil
}

// Status reports the backend name and load state.
func (h *Handle) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Status{Backend: h.name, Loaded: h.backend != nil}
	if s.Loaded {
		t := h.loadedAt
		s.LoadedAt = &t
	}
	return s
}

// Infer runs the loaded backend. It fails with InferenceUnavailable when no
// backend is loaded and InferenceFailed when the backend errors.
func (h *Handle) Infer(ctx context.Context, audio []byte, mimeType, transcript string) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.backend == nil {
		return "", errs.InferenceUnavailable(nil, h.name+" model is not loaded")
	}

	start := h.now()
	raw, err := h.backend.Infer(ctx, audio, mimeType, transcript)
	if err != nil {
		h.logger.Error("Inference failed", "backend", h.name, "error", err)
		return "", errs.InferenceFailed(err, "running "+h.name+" inference")
	}
	h.logger.Debug("Inference finished",
		"backend", h.name,
		"audio_bytes", len(audio),
		"output_length", len(raw),
		"duration", h.now().Sub(start),
	)
	return raw, nil
}

// Close unloads the backend.
func (h *Handle) Close() error {
	return h.Unload()
}
