package repository

import (
	"context"
	"errors"

	"github.com/oksasatya/client-powered/internal/domain/entity"
)

var (
	// ErrNotFound is returned when a lookup by key matched no row.
	ErrNotFound = errors.New("not found")
	// ErrTooManyRows is returned when a lookup that expects one row matched several.
	ErrTooManyRows = errors.New("more than one row")
)

// ProfileRepository defines the profile table operations.
type ProfileRepository interface {
	GetPublic(ctx context.Context, id string) (*entity.PublicProfile, error)
	GetPrivate(ctx context.Context, id string) (*entity.PrivateProfile, error)
	GetPrivateByEmail(ctx context.Context, email string) (*entity.PrivateProfile, error)
	UpsertPublic(ctx context.Context, p *entity.PublicProfile) error
	// CreateUser inserts the private row and an empty public row together.
	CreateUser(ctx context.Context, priv *entity.PrivateProfile) error
}
