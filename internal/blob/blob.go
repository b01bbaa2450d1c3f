// Package blob stores market images in S3-compatible object storage.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrUnsupportedType is returned for content types that are not images.
var ErrUnsupportedType = errors.New("blob: unsupported content type")

var imageExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageStore stores an image under a generated key and returns its public URL.
type ImageStore interface {
	PutImage(ctx context.Context, marketID int64, data io.Reader, contentType string) (string, error)
}

// ObjectKey builds a unique key for a market image.
func ObjectKey(marketID int64, contentType string) (string, error) {
	ext, ok := imageExt[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	return fmt.Sprintf("markets/%d/%s%s", marketID, uuid.NewString(), ext), nil
}

// Memory keeps images in process. Used by tests and local development.
type Memory struct {
	mu      sync.Mutex
	baseURL string
	objects map[string][]byte
}

// NewMemory creates an in-memory image store whose URLs start with baseURL.
func NewMemory(baseURL string) *Memory {
	return &Memory{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string][]byte),
	}
}

func (m *Memory) PutImage(_ context.Context, marketID int64, data io.Reader, contentType string) (string, error) {
	key, err := ObjectKey(marketID, contentType)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return "", fmt.Errorf("blob: read image: %w", err)
	}
	m.mu.Lock()
	m.objects[key] = buf.Bytes()
	m.mu.Unlock()
	return m.baseURL + "/" + key, nil
}

// Object returns the stored bytes for key.
func (m *Memory) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return b, ok
}
