package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/voiceinvoice/voice-invoice/internal/errs"
)

// LocalStore implements Store on the local filesystem, one directory per
// bucket.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a new LocalStore instance
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStore{
		basePath: basePath,
	}, nil
}

// EnsureBuckets creates a directory for every bucket.
func (l *LocalStore) EnsureBuckets(_ context.Context, buckets ...string) error {
	for _, bucket := range buckets {
		if err := validateName("bucket", bucket); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Join(l.basePath, bucket), 0755); err != nil {
			return fmt.Errorf("creating bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// Put writes the object to disk. The content type is not persisted.
func (l *LocalStore) Put(_ context.Context, bucket, key string, data []byte, _ string) error {
	if err := validateKey(bucket, key); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(l.basePath, bucket, key), data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

// Get reads the object from disk.
func (l *LocalStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	if err := validateKey(bucket, key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(l.basePath, bucket, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.NotFound("object %s/%s not found", bucket, key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Exists reports whether the object file exists.
func (l *LocalStore) Exists(_ context.Context, bucket, key string) (bool, error) {
	if err := validateKey(bucket, key); err != nil {
		return false, err
	}
	info, err := os.Stat(filepath.Join(l.basePath, bucket, key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking file: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// Close is a no-op.
func (l *LocalStore) Close() error {
	return nil
}
