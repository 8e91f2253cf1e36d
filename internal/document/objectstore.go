package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/zombar/guardian/internal/apperr"
)

// MaxObjectSize bounds how much of a stored document is read
const MaxObjectSize = 25 << 20

// ObjectStore reads uploaded document bytes by key
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// LocalStore serves objects from a directory
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at dir
func NewLocalStore(dir string) (*LocalStore, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(key))
	if p != s.root && !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", apperr.Newf(apperr.Validation, "invalid object key %q", key)
	}
	return p, nil
}

// Get reads an object
func (s *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.Newf(apperr.NotFound, "object %q not found", key)
	}
	if err != nil {
		return nil, apperr.New(apperr.Storage, fmt.Errorf("failed to open object: %w", err))
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxObjectSize))
	if err != nil {
		return nil, apperr.New(apperr.Storage, fmt.Errorf("failed to read object: %w", err))
	}
	return data, nil
}

// Put writes an object, creating parent directories
func (s *LocalStore) Put(_ context.Context, key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return apperr.New(apperr.Storage, fmt.Errorf("failed to create object directory: %w", err))
	}
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return apperr.New(apperr.Storage, fmt.Errorf("failed to write object: %w", err))
	}
	return nil
}

// GCSStore serves objects from a Google Cloud Storage bucket
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a read-only bucket store
func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("GCS bucket name is required")
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadOnly))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Get downloads an object
func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, apperr.Newf(apperr.NotFound, "object %q not found", key)
	}
	if err != nil {
		return nil, apperr.New(apperr.Storage, fmt.Errorf("failed to open GCS object: %w", err))
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, MaxObjectSize))
	if err != nil {
		return nil, apperr.New(apperr.Storage, fmt.Errorf("failed to read GCS object: %w", err))
	}
	return data, nil
}

// Close releases the storage client
func (s *GCSStore) Close() error {
	return s.client.Close()
}
