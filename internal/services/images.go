package services

import (
	"context"
	"strings"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
)

const maxProductImages = 10

func validateImageUpload(field string, upload domain.ImageUpload) *FieldError {
	if !strings.HasPrefix(strings.ToLower(upload.ContentType), "image/") {
		return &FieldError{Field: field, Message: "only image format is allowed"}
	}
	if len(upload.Data) == 0 {
		return &FieldError{Field: field, Message: "image is empty"}
	}
	if len(upload.Data) > domain.MaxImageSize {
		return &FieldError{Field: field, Message: "file size limit exceeded"}
	}
	return nil
}

// removeStoredImages deletes uploaded objects. Placeholders are skipped and failures are logged,
// so a missing object never blocks the owning record's removal.
func removeStoredImages(ctx context.Context, store ImageStore, logger func(context.Context, string, map[string]any), images ...domain.Image) {
	if store == nil {
		return
	}
	for _, img := range images {
		if !img.Stored() {
			continue
		}
		if err := store.Delete(ctx, img.ID); err != nil {
			logger(ctx, "images.delete_failed", map[string]any{
				"imageId": img.ID,
				"error":   err.Error(),
			})
		}
	}
}
