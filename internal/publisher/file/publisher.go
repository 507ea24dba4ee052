// Package file implements a JSONL chunk publisher for local development.
// Each source document gets one file; chunks append as single-line JSON.
package file

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/carelane/content-pipeline/internal/pipeline"
)

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Publisher appends chunks to per-document JSONL files under dir.
type Publisher struct {
	dir    string
	logger *zap.Logger
	mu     sync.Mutex
}

// New returns a Publisher rooted at dir, creating it if needed.
func New(dir string, logger *zap.Logger) (*Publisher, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create publisher dir %s: %w", dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{dir: dir, logger: logger}, nil
}

// Publish appends the chunk as one JSON line to its document's file.
func (p *Publisher) Publish(ctx context.Context, chunk pipeline.ContentChunk) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk %s: %w", chunk.ID, err)
	}
	target := p.chunkFilePath(chunk.Metadata.SourceURL)

	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open chunk file %s: %w", target, err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("append chunk to %s: %w", target, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close chunk file %s: %w", target, err)
	}
	p.logger.Debug("chunk written",
		zap.String("chunk_id", chunk.ID),
		zap.String("path", target),
	)
	return nil
}

// Close implements the publisher interface; files are closed per publish.
func (p *Publisher) Close() error {
	return nil
}

func (p *Publisher) chunkFilePath(sourceURL string) string {
	return filepath.Join(p.dir, fmt.Sprintf("%s.jsonl", safeBasename(sourceURL)))
}

func safeBasename(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return hashURL(raw)
	}
	host := invalidFilenameChars.ReplaceAllString(u.Hostname(), "_")
	p := strings.Trim(u.EscapedPath(), "/")
	if p == "" {
		p = "root"
	}
	p = invalidFilenameChars.ReplaceAllString(p, "_")
	hash := hashURL(raw)[:16]
	return fmt.Sprintf("%s_%s_%s", host, p, hash)
}

func hashURL(raw string) string {
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
