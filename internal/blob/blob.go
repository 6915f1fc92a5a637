// Package blob stores attachment payloads outside the database. Payloads
// are write-once and addressed by a key derived from the attachment id.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/Rrens/chat-gateway/internal/config"
)

var (
	ErrExists   = errors.New("blob already exists")
	ErrNotFound = errors.New("blob not found")
	ErrBadKey   = errors.New("invalid blob key")
)

// Store persists attachment payloads
type Store interface {
	// Put writes data under a key derived from id and returns that key
	Put(ctx context.Context, id string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// KeyFor shards ids by their first two characters
func KeyFor(id string) (string, error) {
	if len(id) < 2 || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("%w: %q", ErrBadKey, id)
	}
	return id[:2] + "/" + id, nil
}

func checkKey(key string) error {
	if key == "" || path.IsAbs(key) || strings.Contains(key, `\`) || path.Clean(key) != key || strings.HasPrefix(key, "..") {
		return fmt.Errorf("%w: %q", ErrBadKey, key)
	}
	return nil
}

// New opens the backend named in cfg.Backend
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "fs":
		return NewFSStore(cfg.AttachmentsDir)
	case "minio":
		return NewMinIOStore(ctx, cfg.MinIO)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
