package storage

import (
	"fmt"
	"path"
	"strings"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
)

var extensionsByType = map[string]string{
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/avif":    ".avif",
	"image/svg+xml": ".svg",
}

// BuildObjectPath composes the object key for an upload: <folder>/<objectID><ext>. The extension
// comes from the content type, falling back to the client file name.
func BuildObjectPath(folder, objectID, contentType, fileName string) (string, error) {
	folder, err := validateFolder(folder)
	if err != nil {
		return "", err
	}
	objectID, err = validateSegment("objectID", objectID)
	if err != nil {
		return "", err
	}
	return folder + "/" + objectID + extensionFor(contentType, fileName), nil
}

// ValidateObjectKey rejects keys outside the upload folders or containing traversal sequences.
func ValidateObjectKey(key string) error {
	folder, name, ok := strings.Cut(strings.TrimSpace(key), "/")
	if !ok {
		return fmt.Errorf("storage: object key %q has no folder", key)
	}
	if _, err := validateFolder(folder); err != nil {
		return err
	}
	_, err := validateSegment("object name", name)
	return err
}

func validateFolder(folder string) (string, error) {
	switch folder = strings.TrimSpace(folder); folder {
	case domain.ImageFolderProducts, domain.ImageFolderAvatars:
		return folder, nil
	default:
		return "", fmt.Errorf("storage: unsupported folder %q", folder)
	}
}

func extensionFor(contentType, fileName string) string {
	mediaType, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(contentType)), ";")
	if ext, ok := extensionsByType[strings.TrimSpace(mediaType)]; ok {
		return ext
	}
	ext := strings.ToLower(path.Ext(strings.TrimSpace(fileName)))
	for _, known := range extensionsByType {
		if ext == known {
			return ext
		}
	}
	return ""
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
