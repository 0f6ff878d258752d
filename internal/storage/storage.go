// Package storage keeps audio inputs and rendered invoices as opaque blobs
// addressed by bucket and object name.
package storage

import (
	"context"
	"strings"

	"github.com/voiceinvoice/voice-invoice/internal/errs"
)

// Store defines blob storage operations. Get on an absent object fails with
// errs.ErrNotFound.
type Store interface {
	// Put writes data under bucket/key, replacing any existing object.
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error

	// Get reads the object at bucket/key.
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Exists reports whether bucket/key is present.
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// EnsureBuckets creates missing buckets.
	EnsureBuckets(ctx context.Context, buckets ...string) error

	// Close releases the backend.
	Close() error
}

// ContentTyper is implemented by stores that keep the content type given to
// Put. Absent objects fail with errs.ErrNotFound.
type ContentTyper interface {
	ContentType(ctx context.Context, bucket, key string) (string, error)
}

// validateKey rejects names that could escape their bucket. Object names are
// flat: no separators, no dot segments.
func validateKey(bucket, key string) error {
	if err := validateName("bucket", bucket); err != nil {
		return err
	}
	return validateName("object name", key)
}

func validateName(what, name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errs.BadInput("%s must not be empty", what)
	case name == "." || name == "..":
		return errs.BadInput("invalid %s %q", what, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return errs.BadInput("%s %q must not contain path separators", what, name)
	}
	return nil
}
