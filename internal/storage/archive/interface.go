// Package archive persists completed backtest runs to local disk or an
// S3-compatible object store.
package archive

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Storage.Read when nothing is stored at a path
var ErrNotFound = errors.New("archive: object not found")

// Storage defines the interface for archive storage backends
type Storage interface {
	// Write stores data at the given path
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths matching the prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the given path
	Exists(ctx context.Context, path string) (bool, error)
}

// Config selects and configures a backend
type Config struct {
	Type string // "localfs" or "s3"
	Path string // base directory for localfs
	S3   S3Config
}

// Open builds the backend named by cfg.Type
func Open(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", "localfs":
		return NewLocalFS(cfg.Path)
	case "s3":
		return NewS3(cfg.S3)
	default:
		return nil, errors.New("archive: unknown storage type " + cfg.Type)
	}
}
