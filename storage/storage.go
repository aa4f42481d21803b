// Package storage holds uploaded certification documents and service images.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"service-marketplace-server/config"
)

// File is an upload waiting to be stored
type File struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// StoredFile is where a File ended up
type StoredFile struct {
	URL string
	Key string
}

// FileStore persists uploads and removes them by key
type FileStore interface {
	Save(ctx context.Context, folder string, f File) (*StoredFile, error)
	Delete(ctx context.Context, key string) error
}

// New picks the backend named by cfg.Driver
func New(ctx context.Context, cfg config.StorageConfig) (FileStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "cloudinary":
		return NewCloudinaryStore(cfg)
	case "minio":
		return NewMinIOStore(ctx, cfg)
	case "memory", "":
		return NewMemoryStore("/uploads"), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// objectKey builds a collision free key under folder keeping the extension
func objectKey(folder, name string) string {
	ext := strings.ToLower(path.Ext(name))
	return path.Join(folder, uuid.NewString()+ext)
}
