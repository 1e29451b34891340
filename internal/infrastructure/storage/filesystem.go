// Package storage keeps receipt documents on local disk.
package storage

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Filesystem writes objects under Dir and publishes them below BaseURL.
type Filesystem struct {
	dir     string
	baseURL string
}

func NewFilesystem(dir, baseURL string) (*Filesystem, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return &Filesystem{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (fs *Filesystem) UploadBinary(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	file, err := fs.objectName(name)
	if err != nil {
		return "", err
	}

	path := filepath.Join(fs.dir, file)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write %s: %w", file, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("storage: publish %s: %w", file, err)
	}
	return fs.baseURL + "/receipts/" + file, nil
}

// Handler serves stored objects; mount it at /receipts/.
func (fs *Filesystem) Handler() http.Handler {
	return http.StripPrefix("/receipts/", http.FileServer(http.Dir(fs.dir)))
}

// objectName rejects names that could escape the directory and adds the .pdf suffix.
func (fs *Filesystem) objectName(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("storage: invalid object name %q", name)
	}
	if filepath.Ext(name) == "" {
		name += ".pdf"
	}
	return name, nil
}
