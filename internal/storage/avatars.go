// internal/storage/avatars.go
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// AvatarBucket is a disk-backed object store for avatar images. Objects are
// addressed by bare file name and exposed through a public base URL that the
// HTTP layer serves statically.
type AvatarBucket struct {
	dir     string
	baseURL string
}

func NewAvatarBucket(dir, baseURL string) (*AvatarBucket, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create avatar dir: %w", err)
	}
	return &AvatarBucket{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Upload writes the object, replacing any previous content under the name.
func (b *AvatarBucket) Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string) error {
	path, err := b.objectPath(name)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create object: %w", err)
	}

	written, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write object: %w", err)
	}
	if size > 0 && written != size {
		os.Remove(path)
		return fmt.Errorf("short write: expected %d bytes, wrote %d", size, written)
	}
	return nil
}

// Remove deletes an object. Removing a missing object is not an error.
func (b *AvatarBucket) Remove(ctx context.Context, name string) error {
	path, err := b.objectPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove object: %w", err)
	}
	return nil
}

// PublicURL returns the externally reachable URL for an object name.
func (b *AvatarBucket) PublicURL(name string) string {
	return b.baseURL + "/" + name
}

// Dir reports the bucket root for the static file route.
func (b *AvatarBucket) Dir() string {
	return b.dir
}

func (b *AvatarBucket) objectPath(name string) (string, error) {
	clean := filepath.Base(filepath.Clean(name))
	if clean == "" || clean == "." || clean == ".." || clean != name {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	return filepath.Join(b.dir, clean), nil
}
