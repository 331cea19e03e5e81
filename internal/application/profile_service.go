package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/client-powered/internal/application/profilestate"
	"github.com/oksasatya/client-powered/internal/domain/entity"
	repo "github.com/oksasatya/client-powered/internal/domain/repository"
	"github.com/oksasatya/client-powered/pkg/helpers"
)

const (
	// AvatarRoute is where avatars are served from.
	AvatarRoute = "/api/avatars/"

	defaultLockTTL = 30 * time.Second
	maxSearchSize  = 50
)

func updatingKey(userID string) string {
	return "profile:updating:" + userID
}

type ProfileService struct {
	Profiles repo.ProfileRepository
	Sessions repo.SessionStore
	Avatars  repo.AvatarStore
	Index    repo.ProfileIndex // nil disables search indexing
	Lock     repo.MutationLock
	Trackers *profilestate.Registry
	Logger   *logrus.Logger

	AvatarMaxBytes int64
	LockTTL        time.Duration
}

func NewProfileService(
	profiles repo.ProfileRepository,
	sessions repo.SessionStore,
	avatars repo.AvatarStore,
	index repo.ProfileIndex,
	lock repo.MutationLock,
	logger *logrus.Logger,
	avatarMaxBytes int64,
) *ProfileService {
	if logger == nil {
		logger = helpers.NopLogger()
	}
	return &ProfileService{
		Profiles:       profiles,
		Sessions:       sessions,
		Avatars:        avatars,
		Index:          index,
		Lock:           lock,
		Logger:         logger,
		AvatarMaxBytes: avatarMaxBytes,
		LockTTL:        defaultLockTTL,
	}
}

// GetPublic returns exactly one public row for id.
func (s *ProfileService) GetPublic(ctx context.Context, id string) (*entity.PublicProfile, error) {
	p, err := s.Profiles.GetPublic(ctx, id)
	if err != nil {
		return nil, mapRepoErr("get public profile", err)
	}
	return p, nil
}

// GetPrivate returns exactly one private row for id.
func (s *ProfileService) GetPrivate(ctx context.Context, id string) (*entity.PrivateProfile, error) {
	p, err := s.Profiles.GetPrivate(ctx, id)
	if err != nil {
		return nil, mapRepoErr("get private profile", err)
	}
	return p, nil
}

type UpdateProfileInput struct {
	Name   string
	Avatar string
}

// UpdateProfile upserts {id, name, avatar} for the session's user. Only one
// mutation per user runs at a time; a concurrent call gets
// ErrUpdateInFlight.
func (s *ProfileService) UpdateProfile(ctx context.Context, sess *entity.Session, in UpdateProfileInput) (*entity.PublicProfile, error) {
	var out *entity.PublicProfile
	err := s.withLock(ctx, sess.Identity.UserID, func() error {
		p := &entity.PublicProfile{
			ID:     sess.Identity.UserID,
			Name:   entity.StringPtr(strings.TrimSpace(in.Name)),
			Avatar: entity.StringPtr(in.Avatar),
		}
		if err := s.Profiles.UpsertPublic(ctx, p); err != nil {
			return fmt.Errorf("upsert profile: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, sess, out)
	return out, nil
}

// UploadAvatar stores an image under a random name and records that name
// on the user's public profile. It returns the stored path.
func (s *ProfileService) UploadAvatar(ctx context.Context, sess *entity.Session, filename, contentType string, r io.Reader) (string, error) {
	if r == nil {
		return "", ErrNoImage
	}
	if !AvatarType(contentType) {
		return "", ErrNotImage
	}
	data, err := io.ReadAll(io.LimitReader(r, s.AvatarMaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read avatar: %w", err)
	}
	if len(data) == 0 {
		return "", ErrNoImage
	}
	if int64(len(data)) > s.AvatarMaxBytes {
		return "", ErrAvatarTooLarge
	}

	path := AvatarName(filename)
	var out *entity.PublicProfile
	err = s.withLock(ctx, sess.Identity.UserID, func() error {
		if err := s.Avatars.Upload(ctx, path, contentType, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("upload avatar: %w", err)
		}
		p, err := s.Profiles.GetPublic(ctx, sess.Identity.UserID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			p = &entity.PublicProfile{ID: sess.Identity.UserID}
		case err != nil:
			return mapRepoErr("get public profile", err)
		}
		p.Avatar = entity.StringPtr(path)
		if err := s.Profiles.UpsertPublic(ctx, p); err != nil {
			return fmt.Errorf("upsert profile: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return "", err
	}
	s.afterWrite(ctx, sess, out)
	return path, nil
}

// raster formats browsers render without running content
var avatarTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// AvatarType reports whether contentType may be stored as an avatar.
// Parameters after ';' are ignored.
func AvatarType(contentType string) bool {
	mt, _, _ := strings.Cut(contentType, ";")
	return avatarTypes[strings.ToLower(strings.TrimSpace(mt))]
}

// AvatarName is a random object name carrying the original extension,
// lower-cased and without the dot.
func AvatarName(filename string) string {
	name := uuid.NewString()
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// DownloadAvatar returns the stored bytes and content type for path.
func (s *ProfileService) DownloadAvatar(ctx context.Context, path string) ([]byte, string, error) {
	if path == "" || strings.ContainsAny(path, `/\`) || strings.Contains(path, "..") {
		return nil, "", ErrInvalidAvatarPath
	}
	b, ct, err := s.Avatars.Download(ctx, path)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, "", ErrAvatarNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("download avatar: %w", err)
	}
	return b, ct, nil
}

// AvatarURL is the displayable URL for a stored path, empty for none.
func AvatarURL(path string) string {
	if path == "" {
		return ""
	}
	return AvatarRoute + url.PathEscape(path)
}

// SearchProfiles queries the profile index. Only admins may search.
func (s *ProfileService) SearchProfiles(ctx context.Context, sess *entity.Session, q string, size int) ([]map[string]any, error) {
	priv, err := s.GetPrivate(ctx, sess.Identity.UserID)
	if err != nil {
		return nil, err
	}
	if !priv.Admin {
		return nil, ErrForbidden
	}
	if s.Index == nil {
		return []map[string]any{}, nil
	}
	if size <= 0 || size > maxSearchSize {
		size = 10
	}
	return s.Index.Search(ctx, q, size)
}

func (s *ProfileService) withLock(ctx context.Context, userID string, fn func() error) error {
	key := updatingKey(userID)
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	token, ok, err := s.Lock.Acquire(ctx, key, ttl)
	if err != nil {
		return fmt.Errorf("acquire profile lock: %w", err)
	}
	if !ok {
		return ErrUpdateInFlight
	}
	defer func() {
		// release even when the request context is already gone
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.Lock.Release(rctx, key, token); err != nil {
			s.Logger.WithError(err).WithField("user_id", userID).Warn("release profile lock failed")
		}
	}()
	return fn()
}

// afterWrite propagates a saved public profile to the session cache, the
// search index and the user's tracker. Failures here are logged only; the
// write itself already succeeded.
func (s *ProfileService) afterWrite(ctx context.Context, sess *entity.Session, p *entity.PublicProfile) {
	log := s.Logger.WithField("user_id", p.ID)
	name, avatar := valueOr(p.Name), valueOr(p.Avatar)

	if s.Sessions != nil {
		if err := s.Sessions.UpdateProfile(ctx, p.ID, name, avatar); err != nil {
			log.WithError(err).Warn("refresh session profile failed")
		}
	}
	sess.Name, sess.Avatar = name, avatar

	if s.Index != nil {
		if priv, err := s.Profiles.GetPrivate(ctx, p.ID); err == nil {
			if err := s.Index.Index(ctx, entity.MergeProfile(*p, *priv)); err != nil {
				log.WithError(err).Warn("es index failed")
			}
		} else {
			log.WithError(err).Warn("load private profile for indexing failed")
		}
	}

	if s.Trackers != nil {
		s.Trackers.For(sess.ID).Refresh()
	}
}
