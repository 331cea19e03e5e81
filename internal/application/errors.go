package application

import (
	"errors"
	"fmt"

	"github.com/oksasatya/client-powered/internal/domain/repository"
)

var (
	ErrProfileNotFound     = errors.New("profile not found")
	ErrMultipleRows        = errors.New("profile lookup matched more than one row")
	ErrInvalidEmail        = errors.New("invalid email address")
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrInvalidSession      = errors.New("session is no longer valid")
	ErrUnsupportedProvider = errors.New("unsupported sign-in provider")
	ErrOAuthFailed         = errors.New("oauth sign-in failed")
	ErrUpdateInFlight      = errors.New("a profile update is already in progress")
	ErrNoImage             = errors.New("no image selected")
	ErrNotImage            = errors.New("file is not an image")
	ErrAvatarTooLarge      = errors.New("image is too large")
	ErrInvalidAvatarPath   = errors.New("invalid avatar path")
	ErrAvatarNotFound      = errors.New("avatar not found")
	ErrForbidden           = errors.New("forbidden")
)

// mapRepoErr turns repository row-count sentinels into application errors
// and keeps the operation in the message.
func mapRepoErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrProfileNotFound)
	case errors.Is(err, repository.ErrTooManyRows):
		return fmt.Errorf("%s: %w", op, ErrMultipleRows)
	}
	return fmt.Errorf("%s: %w", op, err)
}
