package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-archive-api/pkg/config"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "2025/06/session-1-start.jpg", strings.NewReader("jpeg")))

	rc, err := store.Open(ctx, "2025/06/session-1-start.jpg")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close() //nolint:errcheck
	assert.Equal(t, "jpeg", string(data))

	require.NoError(t, store.Delete(ctx, "2025/06/session-1-start.jpg"))
	require.NoError(t, store.Delete(ctx, "2025/06/session-1-start.jpg"))

	_, err = store.Open(ctx, "2025/06/session-1-start.jpg")
	require.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.Error(t, store.Save(context.Background(), "../outside.jpg", strings.NewReader("x")))
	require.Error(t, store.Delete(context.Background(), ""))
}

type fakeS3 struct {
	objects map[string][]byte
	deleted []string
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, *in.Key)
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StoragePrefixesKeys(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	store := newS3Storage(fake, "photos", "/attendance/", nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "s1/start.jpg", strings.NewReader("img")))
	assert.Contains(t, fake.objects, "attendance/s1/start.jpg")

	rc, err := store.Open(ctx, "s1/start.jpg")
	require.NoError(t, err)
	rc.Close() //nolint:errcheck

	require.NoError(t, store.Delete(ctx, "s1/start.jpg"))
	assert.Equal(t, []string{"attendance/s1/start.jpg"}, fake.deleted)

	_, err = store.Open(ctx, "s1/start.jpg")
	require.True(t, errors.Is(err, ErrObjectNotFound))
}

func TestNewPhotoStoreUnknownDriver(t *testing.T) {
	_, err := NewPhotoStore(context.Background(), config.PhotoStorageConfig{Driver: "ftp"}, nil)
	require.Error(t, err)

	store, err := NewPhotoStore(context.Background(), config.PhotoStorageConfig{Driver: config.PhotoDriverLocal, LocalDir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.Equal(t, "local", store.Name())
}
