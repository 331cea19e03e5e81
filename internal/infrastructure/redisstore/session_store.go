package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/client-powered/internal/domain/entity"
	"github.com/oksasatya/client-powered/internal/domain/repository"
)

func sessionKey(userID string) string {
	return "user:session:" + userID
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// SessionStore keeps one session hash per user. Signing in again replaces it,
// which invalidates tokens carrying the previous sid.
type SessionStore struct {
	rdb redis.Cmdable
}

func NewSessionStore(rdb redis.Cmdable) *SessionStore {
	return &SessionStore{rdb: rdb}
}

func (s *SessionStore) Save(ctx context.Context, sess *entity.Session, ttl time.Duration) error {
	key := sessionKey(sess.Identity.UserID)
	created := sess.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		"user_id":    sess.Identity.UserID,
		"email":      sess.Identity.Email,
		"name":       sess.Name,
		"avatar":     sess.Avatar,
		"sid":        sess.ID,
		"logged_in":  true,
		"created_at": created.UTC().Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *SessionStore) Get(ctx context.Context, userID string) (*entity.Session, error) {
	data, err := s.rdb.HGetAll(ctx, sessionKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || data["sid"] == "" {
		return nil, repository.ErrNotFound
	}
	sess := &entity.Session{
		ID:       data["sid"],
		Identity: entity.Identity{UserID: userID, Email: data["email"]},
		Name:     data["name"],
		Avatar:   data["avatar"],
	}
	if t, err := time.Parse(time.RFC3339Nano, data["created_at"]); err == nil {
		sess.CreatedAt = t
	}
	return sess, nil
}

// Rotate swaps the session id and extends the TTL. It fails with
// repository.ErrNotFound when the session has already ended.
func (s *SessionStore) Rotate(ctx context.Context, userID, sid string, ttl time.Duration) error {
	key := sessionKey(userID)
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"sid":        sid,
		"updated_at": nowRFC3339(),
	})
	pipe.Expire(ctx, key, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *SessionStore) UpdateProfile(ctx context.Context, userID, name, avatar string) error {
	key := sessionKey(userID)
	ttl, err := s.rdb.TTL(ctx, key).Result()
	if err != nil {
		return err
	}
	if ttl <= 0 {
		// no live session to refresh
		return nil
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"name":       name,
		"avatar":     avatar,
		"updated_at": nowRFC3339(),
	})
	pipe.Expire(ctx, key, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *SessionStore) Delete(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, sessionKey(userID)).Err()
}

var _ repository.SessionStore = (*SessionStore)(nil)
