package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DirFileStore keeps uploaded objects on the local disk and serves them
// under baseURL.
type DirFileStore struct {
	dir     string
	baseURL string
}

func NewDirFileStore(dir, baseURL string) *DirFileStore {
	return &DirFileStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

func (d *DirFileStore) Dir() string {
	return d.dir
}

func (d *DirFileStore) UploadObject(ctx context.Context, objectPath, contentType string, data []byte) (string, error) {
	clean := path.Clean("/" + objectPath)
	target := filepath.Join(d.dir, filepath.FromSlash(clean))

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create attachment dir: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}
	return d.baseURL + clean, nil
}
