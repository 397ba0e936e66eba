package images

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/and161185/tim-admin/internal/config"
	"github.com/and161185/tim-admin/internal/model"
)

// MinIO keeps images in an S3 bucket.
type MinIO struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

var _ Store = (*MinIO)(nil)

// NewMinIO connects to the endpoint and creates the bucket when missing.
// The endpoint may carry a scheme, which then decides TLS.
func NewMinIO(ctx context.Context, cfg config.S3) (*MinIO, error) {
	const op = "images.NewMinIO"

	endpoint, secure := cfg.Endpoint, cfg.UseSSL
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("%s: create bucket %q: %w", op, cfg.Bucket, err)
		}
	}

	base := cfg.PublicURL
	if base == "" {
		scheme := "http"
		if secure {
			scheme = "https"
		}
		base = scheme + "://" + endpoint + "/" + cfg.Bucket
	}
	return &MinIO{client: client, bucket: cfg.Bucket, baseURL: strings.TrimRight(base, "/")}, nil
}

func (m *MinIO) Put(ctx context.Context, u model.Upload) (string, error) {
	key, ct, err := objectKey(u)
	if err != nil {
		return "", err
	}
	size := u.Size
	if size <= 0 {
		size = -1
	}
	if _, err := m.client.PutObject(ctx, m.bucket, key, u.Body, size, minio.PutObjectOptions{ContentType: ct}); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return m.baseURL + "/" + key, nil
}

func (m *MinIO) Delete(ctx context.Context, rawURL string) error {
	key, ok := keyFromURL(m.baseURL, rawURL)
	if !ok {
		return nil
	}
	return m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
}
