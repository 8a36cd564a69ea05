package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/survivorsoul/soulsongs/internal/model"
	"github.com/survivorsoul/soulsongs/internal/repository"
	"github.com/survivorsoul/soulsongs/internal/storage"
	"github.com/survivorsoul/soulsongs/internal/validation"
)

var ErrStorageDisabled = errors.New("avatar uploads are not available")

// ProfileUpdate holds optional profile changes; nil fields are left as they are.
type ProfileUpdate struct {
	FullName *string
	Phone    *string
}

type UserService struct {
	userRepository repository.UserRepository
	storage        storage.Storage
	maxAvatarSize  int64
}

// NewUserService accepts a nil storage, in which case avatar uploads fail with ErrStorageDisabled.
func NewUserService(userRepository repository.UserRepository, store storage.Storage, maxAvatarSize int64) *UserService {
	return &UserService{
		userRepository: userRepository,
		storage:        store,
		maxAvatarSize:  maxAvatarSize,
	}
}

func (s *UserService) ByID(ctx context.Context, id int64) (*model.User, error) {
	return s.userRepository.ByID(ctx, id)
}

func (s *UserService) UpdateProfile(ctx context.Context, user *model.User, update ProfileUpdate) (*model.User, error) {
	if update.FullName != nil {
		name := strings.TrimSpace(*update.FullName)
		err := validation.ValidateName(name)
		if err != nil {
			return nil, &ValidationError{Field: "full_name", Err: err}
		}
		user.FullName = name
	}

	if update.Phone != nil {
		phone := strings.TrimSpace(*update.Phone)
		if phone == "" {
			user.Phone = nil
		} else {
			err := validation.ValidatePhone(phone)
			if err != nil {
				return nil, &ValidationError{Field: "phone", Err: err}
			}
			user.Phone = &phone
		}
	}

	err := s.userRepository.Update(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return user, nil
}

// UpdateAvatar stores a validated image and points profile_image at it.
func (s *UserService) UpdateAvatar(ctx context.Context, user *model.User, file multipart.File, header *multipart.FileHeader) (*model.User, error) {
	if s.storage == nil {
		return nil, ErrStorageDisabled
	}

	contentType, err := validation.ValidateImage(file, header, s.maxAvatarSize)
	if err != nil {
		return nil, &ValidationError{Field: "avatar", Err: err}
	}

	key := path.Join(avatarPrefix(user.ID), uuid.New().String()+strings.ToLower(path.Ext(header.Filename)))

	err = s.storage.Save(ctx, key, contentType, file)
	if err != nil {
		return nil, fmt.Errorf("failed to save avatar: %w", err)
	}

	previous := user.ProfileImage
	link := s.storage.URL(ctx, key)
	user.ProfileImage = &link

	err = s.userRepository.Update(ctx, user)
	if err != nil {
		user.ProfileImage = previous
		delErr := s.storage.Delete(ctx, key)
		if delErr != nil {
			slog.Error("failed to delete avatar during cleanup", "error", delErr, "key", key)
		}
		return nil, fmt.Errorf("failed to update profile image: %w", err)
	}

	if oldKey, ok := storedAvatarKey(user.ID, previous); ok && oldKey != key {
		delErr := s.storage.Delete(ctx, oldKey)
		if delErr != nil {
			slog.Warn("failed to delete replaced avatar", "error", delErr, "key", oldKey)
		}
	}

	slog.Info("avatar updated", "user_id", user.ID, "key", key)
	return user, nil
}

func avatarPrefix(userID int64) string {
	return path.Join("avatars", strconv.FormatInt(userID, 10))
}

// storedAvatarKey recovers the object key from a profile image URL we issued.
// External pictures, such as a Google profile photo, are not ours to delete.
func storedAvatarKey(userID int64, profileImage *string) (string, bool) {
	if profileImage == nil {
		return "", false
	}
	u, err := url.Parse(*profileImage)
	if err != nil {
		return "", false
	}

	prefix := avatarPrefix(userID) + "/"
	i := strings.Index(u.Path, "/"+prefix)
	if i < 0 {
		return "", false
	}
	key := u.Path[i+1:]
	if name := strings.TrimPrefix(key, prefix); name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return key, true
}
