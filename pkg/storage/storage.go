package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned when a photo key has no backing object.
var ErrObjectNotFound = errors.New("storage: object not found")

// PhotoStore persists attendance photos under opaque keys.
type PhotoStore interface {
	Save(ctx context.Context, key string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Name() string
}
