package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// GCSConfig selects the bucket and the base URL objects are served from.
type GCSConfig struct {
	Bucket string
	// PublicBaseURL overrides https://storage.googleapis.com/<bucket>, e.g. for a CDN.
	PublicBaseURL string
}

type gcsBackend struct {
	bucket  *gcs.BucketHandle
	baseURL string
}

// NewGCSImageStore builds an ImageStore on a Cloud Storage bucket.
func NewGCSImageStore(client *gcs.Client, cfg GCSConfig, logger *zap.Logger) (*ImageStore, error) {
	if client == nil {
		return nil, errors.New("storage: cloud storage client is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		base = "https://storage.googleapis.com/" + bucket
	}
	return newImageStore(&gcsBackend{bucket: client.Bucket(bucket), baseURL: base}, logger), nil
}

func (b *gcsBackend) put(ctx context.Context, key, contentType string, data []byte) error {
	w := b.bucket.Object(key).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = uploadCacheControl
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize object: %w", err)
	}
	return nil
}

func (b *gcsBackend) remove(ctx context.Context, key string) error {
	err := b.bucket.Object(key).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return ErrObjectNotFound
	}
	return err
}

func (b *gcsBackend) publicURL(key string) string {
	return joinURL(b.baseURL, key)
}

func joinURL(base, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return base + "/" + strings.Join(parts, "/")
}
