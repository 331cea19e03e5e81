package redisstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/client-powered/internal/domain/repository"
	"github.com/oksasatya/client-powered/pkg/helpers"
)

const (
	magicLinkPrefix  = "magic:"
	otpPrefix        = "otp:"
	oauthStatePrefix = "oauth:state:"
)

// AuthStateStore keeps magic-link tokens, OTP codes and OAuth state. Every
// read is a GETDEL so each secret is single use.
type AuthStateStore struct {
	rdb redis.Cmdable
}

func NewAuthStateStore(rdb redis.Cmdable) *AuthStateStore {
	return &AuthStateStore{rdb: rdb}
}

func (s *AuthStateStore) PutMagicLink(ctx context.Context, tokenHash, email string, ttl time.Duration) error {
	return s.rdb.Set(ctx, magicLinkPrefix+tokenHash, email, ttl).Err()
}

func (s *AuthStateStore) TakeMagicLink(ctx context.Context, tokenHash string) (string, error) {
	return s.take(ctx, magicLinkPrefix+tokenHash)
}

func (s *AuthStateStore) PutOTP(ctx context.Context, email, code string, ttl time.Duration) error {
	return s.rdb.Set(ctx, otpKey(email), code, ttl).Err()
}

func (s *AuthStateStore) TakeOTP(ctx context.Context, email string) (string, error) {
	return s.take(ctx, otpKey(email))
}

func (s *AuthStateStore) PutOAuthState(ctx context.Context, state string, v repository.OAuthState, ttl time.Duration) error {
	return helpers.RedisSetJSON(ctx, s.rdb, oauthStatePrefix+state, v, ttl)
}

func (s *AuthStateStore) TakeOAuthState(ctx context.Context, state string) (*repository.OAuthState, error) {
	var v repository.OAuthState
	found, err := helpers.RedisTakeJSON(ctx, s.rdb, oauthStatePrefix+state, &v)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (s *AuthStateStore) take(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", repository.ErrNotFound
	}
	return v, err
}

func otpKey(email string) string {
	return otpPrefix + strings.ToLower(strings.TrimSpace(email))
}

var _ repository.AuthStateStore = (*AuthStateStore)(nil)
