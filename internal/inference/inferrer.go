// Package inference turns a recorded invoicing request into raw model text.
//
// Backends implement Inferrer. The process owns exactly one Handle, which
// loads a backend on demand, reports readiness, and releases it on Unload.
package inference

import "context"

// Inferrer produces free-form model output for an audio clip and an optional
// transcript. The output is expected to contain a JSON invoice object but is
// not parsed here.
type Inferrer interface {
	Infer(ctx context.Context, audio []byte, mimeType, transcript string) (string, error)
	// Close releases backend resources.
	Close() error
}
