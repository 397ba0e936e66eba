package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/and161185/tim-admin/internal/model"
)

// URLPrefix is where the server exposes Disk contents.
const URLPrefix = "/images"

// Disk keeps images in a local directory served under URLPrefix.
type Disk struct {
	dir     string
	baseURL string
}

var _ Store = (*Disk)(nil)

// NewDisk creates dir if needed. publicBaseURL is the server origin.
func NewDisk(dir, publicBaseURL string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("images dir: %w", err)
	}
	return &Disk{dir: dir, baseURL: strings.TrimRight(publicBaseURL, "/") + URLPrefix}, nil
}

// Dir is the directory to serve.
func (d *Disk) Dir() string { return d.dir }

func (d *Disk) Put(_ context.Context, u model.Upload) (string, error) {
	key, _, err := objectKey(u)
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(filepath.Join(d.dir, key), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, u.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return d.baseURL + "/" + key, nil
}

func (d *Disk) Delete(_ context.Context, url string) error {
	key, ok := keyFromURL(d.baseURL, url)
	if !ok {
		return nil
	}
	err := os.Remove(filepath.Join(d.dir, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
