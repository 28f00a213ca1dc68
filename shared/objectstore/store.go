package objectstore

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("object not found")

// Store abstracts the bucket holding every build record. Keys are relative to the bucket.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	// Get reads the object fully. A non-empty generation pins the read to that
	// object version where the backend supports versions.
	Get(ctx context.Context, key, generation string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// URL returns the fully qualified location of key, e.g. s3://bucket/key.
	URL(key string) string
	Bucket() string
}
