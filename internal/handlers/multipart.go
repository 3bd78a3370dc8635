package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
)

const (
	maxProductImages  = 10
	formOverheadBytes = 1 << 20
	formMemoryBytes   = 8 << 20
)

var errTooManyFiles = errors.New("too many files")

// parseForm accepts multipart and urlencoded bodies capped at maxBytes.
func parseForm(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	err := r.ParseMultipartForm(formMemoryBytes)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errors.New("file size limit exceeded")
	}
	if err != nil {
		return errors.New("invalid form data")
	}
	return nil
}

// readUploads reads every file under field. Files larger than MaxImageSize are rejected
// before they are fully buffered.
func readUploads(r *http.Request, field string, maxFiles int) ([]domain.ImageUpload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File[field]
	if maxFiles > 0 && len(headers) > maxFiles {
		return nil, fmt.Errorf("%w: at most %d %s allowed", errTooManyFiles, maxFiles, field)
	}
	uploads := make([]domain.ImageUpload, 0, len(headers))
	for _, header := range headers {
		upload, err := readUpload(header)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	return uploads, nil
}

func readUpload(header *multipart.FileHeader) (domain.ImageUpload, error) {
	if header.Size > domain.MaxImageSize {
		return domain.ImageUpload{}, errors.New("file size limit exceeded")
	}
	file, err := header.Open()
	if err != nil {
		return domain.ImageUpload{}, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, domain.MaxImageSize+1))
	if err != nil {
		return domain.ImageUpload{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > domain.MaxImageSize {
		return domain.ImageUpload{}, errors.New("file size limit exceeded")
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return domain.ImageUpload{
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

// formList collects repeated values and comma separated lists into one slice.
func formList(r *http.Request, key string) []string {
	var out []string
	for _, raw := range r.Form[key] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// formString returns nil when the key is absent so updates can tell "unset" from "empty".
func formString(r *http.Request, key string) *string {
	values, ok := r.Form[key]
	if !ok || len(values) == 0 {
		return nil
	}
	v := strings.TrimSpace(values[0])
	return &v
}

func formBool(r *http.Request, key string) (*bool, error) {
	raw := formString(r, key)
	if raw == nil || *raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(*raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false", key)
	}
	return &v, nil
}

func formInt(r *http.Request, key string) (*int, error) {
	raw := formString(r, key)
	if raw == nil || *raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(*raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a whole number", key)
	}
	return &v, nil
}

func formAmount(r *http.Request, key string) (*int64, error) {
	raw := formString(r, key)
	if raw == nil || *raw == "" {
		return nil, nil
	}
	v, err := domain.ParseAmount(*raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number with at most two decimals", key)
	}
	return &v, nil
}
