package storage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
)

type memoryBackend struct {
	objects map[string][]byte
	types   map[string]string
	failPut error
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{objects: map[string][]byte{}, types: map[string]string{}}
}

func (b *memoryBackend) put(_ context.Context, key, contentType string, data []byte) error {
	if b.failPut != nil {
		return b.failPut
	}
	b.objects[key] = data
	b.types[key] = contentType
	return nil
}

func (b *memoryBackend) remove(_ context.Context, key string) error {
	if _, ok := b.objects[key]; !ok {
		return ErrObjectNotFound
	}
	delete(b.objects, key)
	return nil
}

func (b *memoryBackend) publicURL(key string) string {
	return joinURL("https://cdn.example.com", key)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageStoreUploadAndDelete(t *testing.T) {
	backend := newMemoryBackend()
	store := newImageStore(backend, nil)
	store.newID = func() string { return "01HXIMG" }

	img, err := store.Upload(context.Background(), domain.ImageFolderProducts, domain.ImageUpload{
		Filename:    "sofa.png",
		ContentType: "image/png",
		Data:        pngBytes(t, 40, 20),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Image{
		ID:           "images/01HXIMG.png",
		Src:          "https://cdn.example.com/images/01HXIMG.png",
		Width:        40,
		Height:       20,
		ResourceType: "image",
	}, img)
	assert.True(t, img.Stored())
	assert.Equal(t, "image/png", backend.types[img.ID])

	require.NoError(t, store.Delete(context.Background(), img.ID))
	assert.Empty(t, backend.objects)
	assert.NoError(t, store.Delete(context.Background(), img.ID), "missing objects are ignored")
	assert.Error(t, store.Delete(context.Background(), "public/default.jpg"))
}

func TestImageStoreUploadErrors(t *testing.T) {
	backend := newMemoryBackend()
	store := newImageStore(backend, nil)

	_, err := store.Upload(context.Background(), domain.ImageFolderAvatars, domain.ImageUpload{ContentType: "image/png"})
	assert.Error(t, err)

	backend.failPut = errors.New("quota exceeded")
	_, err = store.Upload(context.Background(), domain.ImageFolderAvatars, domain.ImageUpload{ContentType: "image/jpeg", Data: []byte("x")})
	assert.ErrorIs(t, err, backend.failPut)
}

func TestImageStoreLeavesUnknownDimensionsZero(t *testing.T) {
	store := newImageStore(newMemoryBackend(), nil)
	img, err := store.Upload(context.Background(), domain.ImageFolderAvatars, domain.ImageUpload{ContentType: "image/webp", Data: []byte("RIFF....WEBP")})
	require.NoError(t, err)
	assert.Zero(t, img.Width)
	assert.Zero(t, img.Height)
}

type fakeMinio struct {
	puts    map[string]minio.PutObjectOptions
	removed []string
}

func (f *fakeMinio) PutObject(_ context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, _ := io.ReadAll(reader)
	if int64(len(data)) != size {
		return minio.UploadInfo{}, errors.New("size mismatch")
	}
	f.puts[bucket+"/"+object] = opts
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func (f *fakeMinio) RemoveObject(_ context.Context, bucket, object string, _ minio.RemoveObjectOptions) error {
	f.removed = append(f.removed, bucket+"/"+object)
	return nil
}

func TestMinioBackend(t *testing.T) {
	client := &fakeMinio{puts: map[string]minio.PutObjectOptions{}}
	b := newMinioBackend(client, MinioConfig{Endpoint: "minio.local:9000", Bucket: "shop"})
	store := newImageStore(b, nil)
	store.newID = func() string { return "01HXAV" }

	img, err := store.Upload(context.Background(), domain.ImageFolderAvatars, domain.ImageUpload{ContentType: "image/jpeg", Data: []byte("jpeg")})
	require.NoError(t, err)
	assert.Equal(t, "http://minio.local:9000/shop/avatars/01HXAV.jpg", img.Src)
	assert.Equal(t, "image/jpeg", client.puts["shop/avatars/01HXAV.jpg"].ContentType)

	require.NoError(t, store.Delete(context.Background(), img.ID))
	assert.Equal(t, []string{"shop/avatars/01HXAV.jpg"}, client.removed)
}
