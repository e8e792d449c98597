package storage

import "context"

// Blob is the durable key-value port the store persists through. The whole
// notification collection is written as one serialized value per key.
type Blob interface {
	// Get returns the value for key; found is false when the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set writes value under key, replacing any previous value.
	Set(ctx context.Context, key string, value string) error
}
