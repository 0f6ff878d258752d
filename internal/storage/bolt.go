package storage

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/voiceinvoice/voice-invoice/internal/errs"
)

var (
	dataBucket        = []byte("data")
	contentTypeBucket = []byte("content_type")
)

// BoltStore implements Store in a single bbolt file. Every blob bucket is a
// top-level bbolt bucket holding a data and a content_type sub-bucket.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens or creates the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// EnsureBuckets creates missing buckets.
func (b *BoltStore) EnsureBuckets(_ context.Context, buckets ...string) error {
	for _, name := range buckets {
		if err := validateName("bucket", name); err != nil {
			return err
		}
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			bucket, err := tx.CreateBucketIfNotExists([]byte(name))
			if err != nil {
				return err
			}
			if _, err := bucket.CreateBucketIfNotExists(dataBucket); err != nil {
				return err
			}
			if _, err := bucket.CreateBucketIfNotExists(contentTypeBucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("creating buckets: %w", err)
	}
	return nil
}

// Put stores data and its content type.
func (b *BoltStore) Put(_ context.Context, bucket, key string, data []byte, contentType string) error {
	if err := validateKey(bucket, key); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		top := tx.Bucket([]byte(bucket))
		if top == nil {
			return fmt.Errorf("bucket %s does not exist", bucket)
		}
		if err := top.Bucket(dataBucket).Put([]byte(key), data); err != nil {
			return fmt.Errorf("saving object: %w", err)
		}
		if err := top.Bucket(contentTypeBucket).Put([]byte(key), []byte(contentType)); err != nil {
			return fmt.Errorf("saving content type: %w", err)
		}
		return nil
	})
}

// Get returns a copy of the stored data; bbolt memory is only valid inside
// the transaction.
func (b *BoltStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	if err := validateKey(bucket, key); err != nil {
		return nil, err
	}
	var data []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := b.lookup(tx, bucket, dataBucket, key)
		if v == nil {
			return errs.NotFound("object %s/%s not found", bucket, key)
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ContentType returns the content type recorded by Put.
func (b *BoltStore) ContentType(_ context.Context, bucket, key string) (string, error) {
	if err := validateKey(bucket, key); err != nil {
		return "", err
	}
	var contentType string
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := b.lookup(tx, bucket, contentTypeBucket, key)
		if v == nil {
			return errs.NotFound("object %s/%s not found", bucket, key)
		}
		contentType = string(v)
		return nil
	})
	return contentType, err
}

// Exists reports whether bucket/key is stored.
func (b *BoltStore) Exists(_ context.Context, bucket, key string) (bool, error) {
	if err := validateKey(bucket, key); err != nil {
		return false, err
	}
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		found = b.lookup(tx, bucket, dataBucket, key) != nil
		return nil
	})
	return found, err
}

func (b *BoltStore) lookup(tx *bbolt.Tx, bucket string, sub []byte, key string) []byte {
	top := tx.Bucket([]byte(bucket))
	if top == nil {
		return nil
	}
	inner := top.Bucket(sub)
	if inner == nil {
		return nil
	}
	return inner.Get([]byte(key))
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}
