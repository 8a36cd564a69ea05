package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/survivorsoul/soulsongs/internal/model"
	"github.com/survivorsoul/soulsongs/internal/repository"
)

type failingUpdateRepository struct {
	repository.UserRepository
}

func (failingUpdateRepository) Update(context.Context, *model.User) error {
	return errors.New("database is locked")
}

type memoryStorage struct {
	objects map[string][]byte
	saveErr error
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}}
}

func (m *memoryStorage) Save(_ context.Context, key, _ string, body io.Reader) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memoryStorage) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memoryStorage) URL(_ context.Context, key string) string {
	return "https://cdn.example.com/" + key
}

func avatarUpload(t *testing.T, filename string, content []byte) (multipart.File, *multipart.FileHeader) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("avatar", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	file, header, err := req.FormFile("avatar")
	require.NoError(t, err)
	t.Cleanup(func() { _ = file.Close() })
	return file, header
}

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestUserService_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	users := repository.NewUserRepository(newTestDB(t))
	svc := NewUserService(users, nil, 1<<20)
	user := createUser(t, users, "ann@example.com")

	name, phone := "  Ann Lee ", "+1 555 010 2030"
	updated, err := svc.UpdateProfile(ctx, user, ProfileUpdate{FullName: &name, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", updated.FullName)
	require.NotNil(t, updated.Phone)

	loaded, err := svc.ByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", loaded.FullName)
	assert.Equal(t, phone, *loaded.Phone)

	empty := ""
	updated, err = svc.UpdateProfile(ctx, loaded, ProfileUpdate{Phone: &empty})
	require.NoError(t, err)
	assert.Nil(t, updated.Phone)

	bad := "call me"
	_, err = svc.UpdateProfile(ctx, loaded, ProfileUpdate{Phone: &bad})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "phone", verr.Field)
}

func TestUserService_UpdateAvatar(t *testing.T) {
	ctx := context.Background()

	t.Run("stores image and sets profile image", func(t *testing.T) {
		users := repository.NewUserRepository(newTestDB(t))
		store := newMemoryStorage()
		svc := NewUserService(users, store, 1<<20)
		user := createUser(t, users, "ann@example.com")
		file, header := avatarUpload(t, "me.png", pngBytes)

		updated, err := svc.UpdateAvatar(ctx, user, file, header)

		require.NoError(t, err)
		require.Len(t, store.objects, 1)
		require.NotNil(t, updated.ProfileImage)
		assert.True(t, strings.HasPrefix(*updated.ProfileImage, "https://cdn.example.com/avatars/"))
		assert.True(t, strings.HasSuffix(*updated.ProfileImage, ".png"))
		for _, data := range store.objects {
			assert.Equal(t, pngBytes, data)
		}
	})

	t.Run("storage disabled", func(t *testing.T) {
		users := repository.NewUserRepository(newTestDB(t))
		svc := NewUserService(users, nil, 1<<20)
		user := createUser(t, users, "ann@example.com")
		file, header := avatarUpload(t, "me.png", pngBytes)

		_, err := svc.UpdateAvatar(ctx, user, file, header)

		assert.ErrorIs(t, err, ErrStorageDisabled)
	})

	t.Run("non image rejected", func(t *testing.T) {
		users := repository.NewUserRepository(newTestDB(t))
		store := newMemoryStorage()
		svc := NewUserService(users, store, 1<<20)
		user := createUser(t, users, "ann@example.com")
		file, header := avatarUpload(t, "me.png", []byte("plain text"))

		_, err := svc.UpdateAvatar(ctx, user, file, header)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Empty(t, store.objects)
	})

	t.Run("storage failure", func(t *testing.T) {
		users := repository.NewUserRepository(newTestDB(t))
		store := newMemoryStorage()
		store.saveErr = errors.New("s3 down")
		svc := NewUserService(users, store, 1<<20)
		user := createUser(t, users, "ann@example.com")
		file, header := avatarUpload(t, "me.png", pngBytes)

		_, err := svc.UpdateAvatar(ctx, user, file, header)

		require.Error(t, err)
		loaded, loadErr := users.ByID(ctx, user.ID)
		require.NoError(t, loadErr)
		assert.Nil(t, loaded.ProfileImage)
	})
	t.Run("replacing removes the previous object", func(t *testing.T) {
		users := repository.NewUserRepository(newTestDB(t))
		store := newMemoryStorage()
		svc := NewUserService(users, store, 1<<20)
		user := createUser(t, users, "ann@example.com")

		file, header := avatarUpload(t, "first.png", pngBytes)
		first, err := svc.UpdateAvatar(ctx, user, file, header)
		require.NoError(t, err)
		firstURL := *first.ProfileImage

		file, header = avatarUpload(t, "second.png", pngBytes)
		second, err := svc.UpdateAvatar(ctx, first, file, header)
		require.NoError(t, err)

		require.Len(t, store.objects, 1)
		assert.NotEqual(t, firstURL, *second.ProfileImage)
		for key := range store.objects {
			assert.Equal(t, "https://cdn.example.com/"+key, *second.ProfileImage)
		}
	})

	t.Run("external picture is kept in place", func(t *testing.T) {
		users := repository.NewUserRepository(newTestDB(t))
		store := newMemoryStorage()
		store.objects["avatars/other.png"] = pngBytes
		svc := NewUserService(users, store, 1<<20)
		user := createUser(t, users, "ann@example.com")
		google := "https://lh3.googleusercontent.com/a/photo.png"
		user.ProfileImage = &google

		file, header := avatarUpload(t, "me.png", pngBytes)
		_, err := svc.UpdateAvatar(ctx, user, file, header)

		require.NoError(t, err)
		assert.Len(t, store.objects, 2)
	})

	t.Run("database failure removes upload and restores profile image", func(t *testing.T) {
		users := repository.NewUserRepository(newTestDB(t))
		store := newMemoryStorage()
		svc := NewUserService(failingUpdateRepository{users}, store, 1<<20)
		user := createUser(t, users, "ann@example.com")
		previous := "https://cdn.example.com/avatars/old.png"
		user.ProfileImage = &previous

		file, header := avatarUpload(t, "me.png", pngBytes)
		_, err := svc.UpdateAvatar(ctx, user, file, header)

		require.Error(t, err)
		assert.Empty(t, store.objects)
		require.NotNil(t, user.ProfileImage)
		assert.Equal(t, previous, *user.ProfileImage)
	})
}

func TestStoredAvatarKey(t *testing.T) {
	tests := []struct {
		name  string
		image string
		key   string
		ok    bool
	}{
		{name: "public url", image: "https://bucket.s3.us-east-1.amazonaws.com/avatars/7/a.png", key: "avatars/7/a.png", ok: true},
		{name: "path style presigned", image: "http://minio:9000/bucket/avatars/7/a.png?X-Amz-Signature=abc", key: "avatars/7/a.png", ok: true},
		{name: "other user", image: "https://cdn.example.com/avatars/8/a.png"},
		{name: "nested path", image: "https://cdn.example.com/avatars/7/x/a.png"},
		{name: "external", image: "https://lh3.googleusercontent.com/a/photo.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := storedAvatarKey(7, &tt.image)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.key, key)
		})
	}

	_, ok := storedAvatarKey(7, nil)
	assert.False(t, ok)
}
