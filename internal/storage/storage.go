// Package storage persists uploaded attachment blobs behind a small
// driver interface so the API does not care whether files live on local
// disk or in S3.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
)

// BlobStore is the attachment blob driver.
type BlobStore interface {
	// Put stores the blob under key and returns a URL it can be fetched from.
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// BuildKey constructs the storage key for an uploaded file:
// tickets/<batchID>/<ulid>-<sanitized name>.
func BuildKey(batchID, filename string) string {
	return path.Join("tickets", batchID, ulid.Make().String()+"-"+SanitizeName(filename))
}

// SanitizeName strips path components and characters that are unsafe in keys.
func SanitizeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "file"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// DiskStore writes blobs under a local directory and serves them from
// baseURL + "/files/" + key.
type DiskStore struct {
	dir     string
	baseURL string
}

func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir returns the root directory blobs are written under.
func (s *DiskStore) Dir() string { return s.dir }

func (s *DiskStore) localPath(key string) (string, error) {
	clean := path.Clean("/" + key)
	full := filepath.Join(s.dir, filepath.FromSlash(clean))
	// Refuse keys that escape the storage root.
	if !strings.HasPrefix(full, filepath.Clean(s.dir)+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return full, nil
}

func (s *DiskStore) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	full, err := s.localPath(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("write blob: %w", err)
	}
	return s.baseURL + "/files/" + key, nil
}

func (s *DiskStore) Delete(ctx context.Context, key string) error {
	full, err := s.localPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
