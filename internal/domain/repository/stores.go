package repository

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/oksasatya/client-powered/internal/domain/entity"
)

// AvatarStore holds avatar binaries keyed by path.
type AvatarStore interface {
	Upload(ctx context.Context, path, contentType string, r io.Reader) error
	Download(ctx context.Context, path string) (data []byte, contentType string, err error)
}

// SessionStore keeps the server side of issued sessions.
type SessionStore interface {
	Save(ctx context.Context, s *entity.Session, ttl time.Duration) error
	Get(ctx context.Context, userID string) (*entity.Session, error)
	Rotate(ctx context.Context, userID, sid string, ttl time.Duration) error
	// UpdateProfile refreshes the cached display fields, keeping the TTL.
	UpdateProfile(ctx context.Context, userID, name, avatar string) error
	Delete(ctx context.Context, userID string) error
}

// OAuthState is stored between the authorization redirect and the callback.
type OAuthState struct {
	Provider string `json:"provider"`
	Nonce    string `json:"nonce"`
}

// AuthStateStore keeps short-lived sign-in secrets. Take* calls consume the
// value so every secret works at most once.
type AuthStateStore interface {
	PutMagicLink(ctx context.Context, tokenHash, email string, ttl time.Duration) error
	TakeMagicLink(ctx context.Context, tokenHash string) (string, error)
	PutOTP(ctx context.Context, email, code string, ttl time.Duration) error
	TakeOTP(ctx context.Context, email string) (string, error)
	PutOAuthState(ctx context.Context, state string, v OAuthState, ttl time.Duration) error
	TakeOAuthState(ctx context.Context, state string) (*OAuthState, error)
}

// ErrLockLost is returned by Release when the key expired and is now held
// by someone else, or by no one.
var ErrLockLost = errors.New("lock no longer held")

// MutationLock serialises writes per key. Acquire hands out an owner token;
// Release frees the key only while that token still holds it.
type MutationLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// ProfileIndex is the search side of profiles.
type ProfileIndex interface {
	Index(ctx context.Context, p entity.Profile) error
	Search(ctx context.Context, q string, size int) ([]map[string]any, error)
}
