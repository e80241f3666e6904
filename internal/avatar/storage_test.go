// AngelaMos | 2026
// storage_test.go

package avatar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/rti-cashflowops/internal/config"
)

func TestLocalStoragePutDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir, "https://cdn.example.com/")
	require.NoError(t, err)

	ctx := context.Background()
	key := "avatars/acc-1/a.png"

	require.NoError(t, store.Put(ctx, key, []byte("png"), ContentType))

	data, err := os.ReadFile(filepath.Join(dir, "avatars", "acc-1", "a.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)

	assert.Equal(t, "https://cdn.example.com/avatars/acc-1/a.png", store.URL(key))
	assert.Empty(t, store.URL(""))

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key), "deleting a missing key is not an error")

	_, err = os.Stat(filepath.Join(dir, "avatars", "acc-1", "a.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStorageFileServer(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/*", store.MountPath())

	key := "avatars/acc-2/b.png"
	require.NoError(t, store.Put(context.Background(), key, []byte("png-bytes"), ContentType))

	rec := httptest.NewRecorder()
	store.FileServer().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, store.URL(key), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png-bytes", rec.Body.String())

	remote, err := NewLocalStorage(dir, "https://cdn.example.com")
	require.NoError(t, err)
	assert.Empty(t, remote.MountPath())
}

func TestLocalStorageRejectsEscapingKey(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)

	err = store.Put(context.Background(), "../../etc/passwd", []byte("x"), ContentType)
	assert.Error(t, err)
}

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) PutObject(
	ctx context.Context,
	in *s3.PutObjectInput,
	_ ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	if out, ok := args.Get(0).(*s3.PutObjectOutput); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockS3) DeleteObject(
	ctx context.Context,
	in *s3.DeleteObjectInput,
	_ ...func(*s3.Options),
) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, in)
	if out, ok := args.Get(0).(*s3.DeleteObjectOutput); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestS3StoragePut(t *testing.T) {
	client := &mockS3{}
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Bucket) == "avatars-bucket" &&
			aws.ToString(in.Key) == "avatars/acc-1/a.png" &&
			aws.ToString(in.ContentType) == ContentType &&
			aws.ToInt64(in.ContentLength) == 3
	})).Return(&s3.PutObjectOutput{}, nil)

	store := NewS3StorageWithClient(client, "avatars-bucket", "https://files.example.com/")

	err := store.Put(context.Background(), "avatars/acc-1/a.png", []byte("png"), ContentType)
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/avatars/acc-1/a.png", store.URL("avatars/acc-1/a.png"))
	client.AssertExpectations(t)
}

func TestS3StorageDeleteError(t *testing.T) {
	client := &mockS3{}
	client.On("DeleteObject", mock.Anything, mock.Anything).
		Return(nil, errors.New("access denied"))

	store := NewS3StorageWithClient(client, "b", "https://files.example.com")

	err := store.Delete(context.Background(), "avatars/acc-1/a.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	client.AssertExpectations(t)
}

func TestNewStorageUnknownDriver(t *testing.T) {
	_, err := NewStorage(context.Background(), config.StorageConfig{Driver: "ftp"})
	assert.Error(t, err)
}
