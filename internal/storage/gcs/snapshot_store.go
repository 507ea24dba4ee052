// Package gcs provides a snapshot store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/carelane/content-pipeline/internal/pipeline"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// SnapshotStore archives normalized-content snapshots in a GCS bucket.
type SnapshotStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed snapshot store.
func New(client *storage.Client, cfg Config) (*SnapshotStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &SnapshotStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Save uploads the snapshot and returns a gs:// URI.
func (s *SnapshotStore) Save(ctx context.Context, key string, data []byte) (string, error) {
	object, err := s.objectPath(key)
	if err != nil {
		return "", err
	}
	writer := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = "text/plain; charset=utf-8"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write snapshot: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}

// Load downloads the snapshot for the key or returns
// pipeline.ErrSnapshotNotFound.
func (s *SnapshotStore) Load(ctx context.Context, key string) ([]byte, error) {
	object, err := s.objectPath(key)
	if err != nil {
		return nil, err
	}
	reader, err := s.client.Bucket(s.bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, pipeline.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

func (s *SnapshotStore) objectPath(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("snapshot key is required")
	}
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:]) + ".txt"
	if s.prefix == "" {
		return name, nil
	}
	return path.Join(s.prefix, name), nil
}
