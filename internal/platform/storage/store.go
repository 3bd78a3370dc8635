package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
)

// ErrObjectNotFound is returned by backends when the object does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

const uploadCacheControl = "public, max-age=31536000, immutable"

// backend is the minimal object API shared by Cloud Storage and MinIO.
type backend interface {
	put(ctx context.Context, key, contentType string, data []byte) error
	remove(ctx context.Context, key string) error
	publicURL(key string) string
}

// ImageStore uploads product images and avatars to an object store.
type ImageStore struct {
	backend backend
	newID   func() string
	logger  *zap.Logger
}

func newImageStore(b backend, logger *zap.Logger) *ImageStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageStore{
		backend: b,
		newID:   func() string { return ulid.Make().String() },
		logger:  logger.Named("storage"),
	}
}

// Upload writes the image under folder and returns its reference. Width and height are filled
// for formats the standard decoders understand and left zero otherwise.
func (s *ImageStore) Upload(ctx context.Context, folder string, upload domain.ImageUpload) (domain.Image, error) {
	if len(upload.Data) == 0 {
		return domain.Image{}, errors.New("storage: empty upload")
	}
	key, err := BuildObjectPath(folder, s.newID(), upload.ContentType, upload.Filename)
	if err != nil {
		return domain.Image{}, err
	}
	if err := s.backend.put(ctx, key, upload.ContentType, upload.Data); err != nil {
		return domain.Image{}, fmt.Errorf("storage: upload %s: %w", key, err)
	}

	img := domain.Image{ID: key, Src: s.backend.publicURL(key), ResourceType: "image"}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(upload.Data)); err == nil {
		img.Width, img.Height = cfg.Width, cfg.Height
	}
	s.logger.Debug("image uploaded", zap.String("object", key), zap.Int("bytes", len(upload.Data)))
	return img, nil
}

// Delete removes a stored image. Deleting an object that is already gone succeeds.
func (s *ImageStore) Delete(ctx context.Context, imageID string) error {
	if err := ValidateObjectKey(imageID); err != nil {
		return err
	}
	if err := s.backend.remove(ctx, imageID); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil
		}
		return fmt.Errorf("storage: delete %s: %w", imageID, err)
	}
	return nil
}
