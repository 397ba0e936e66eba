// Package images stores uploaded pictures and returns their public URLs.
package images

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/tim-admin/internal/errs"
	"github.com/and161185/tim-admin/internal/model"
)

// Store persists uploads.
type Store interface {
	// Put stores the upload under a fresh key and returns its public URL.
	Put(ctx context.Context, u model.Upload) (string, error)
	// Delete removes the object behind a URL returned by Put. Foreign URLs are ignored.
	Delete(ctx context.Context, url string) error
}

var extByType = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/webp":    ".webp",
	"image/gif":     ".gif",
	"image/svg+xml": ".svg",
}

// objectKey validates the upload type and returns "<uuid><ext>".
func objectKey(u model.Upload) (string, string, error) {
	ct := u.ContentType
	if ct == "" || ct == "application/octet-stream" {
		ct = mime.TypeByExtension(strings.ToLower(path.Ext(u.Name)))
	}
	ct, _, _ = strings.Cut(ct, ";")
	ext, ok := extByType[strings.TrimSpace(ct)]
	if !ok {
		return "", "", fmt.Errorf("%w: unsupported image type %q", errs.ErrValidation, u.ContentType)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return "", "", err
	}
	return id.String() + ext, ct, nil
}

// keyFromURL returns the object key when url starts with base.
func keyFromURL(base, url string) (string, bool) {
	key, ok := strings.CutPrefix(url, strings.TrimRight(base, "/")+"/")
	if !ok || key == "" || strings.Contains(key, "/") {
		return "", false
	}
	return key, true
}
