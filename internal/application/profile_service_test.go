package application

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/client-powered/internal/application/profilestate"
	"github.com/oksasatya/client-powered/internal/domain/entity"
	"github.com/oksasatya/client-powered/internal/infrastructure/repofake"
)

type profileFixture struct {
	svc      *ProfileService
	profiles *repofake.Profiles
	sessions *repofake.Sessions
	avatars  *repofake.Avatars
	index    *repofake.Index
	lock     *repofake.Lock
	sess     *entity.Session
}

func newProfileFixture(t *testing.T) *profileFixture {
	t.Helper()
	f := &profileFixture{
		profiles: repofake.NewProfiles(),
		sessions: repofake.NewSessions(),
		avatars:  repofake.NewAvatars(),
		index:    &repofake.Index{},
		lock:     repofake.NewLock(),
	}
	f.svc = NewProfileService(f.profiles, f.sessions, f.avatars, f.index, f.lock, nil, 1024)
	f.svc.Trackers = profilestate.NewRegistry(f.svc)

	f.profiles.SetPrivate(entity.PrivateProfile{ID: "u1", Email: "ada@example.com"})
	f.sess = &entity.Session{ID: "s1", Identity: entity.Identity{UserID: "u1", Email: "ada@example.com"}}
	require.NoError(t, f.sessions.Save(context.Background(), f.sess, time.Hour))
	return f
}

func TestGetProfile_MapsRowCountErrors(t *testing.T) {
	f := newProfileFixture(t)
	_, err := f.svc.GetPublic(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrProfileNotFound)
	_, err = f.svc.GetPrivate(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestUpdateProfile_RoundTrip(t *testing.T) {
	f := newProfileFixture(t)
	ctx := context.Background()
	f.profiles.SetPublic(entity.PublicProfile{ID: "u1"})
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	tr := f.svc.Trackers.For("s1")
	tr.Observe(&f.sess.Identity)
	require.NoError(t, tr.Wait(waitCtx))
	assert.Nil(t, tr.Snapshot().Profile.Name)

	out, err := f.svc.UpdateProfile(ctx, f.sess, UpdateProfileInput{Name: " Ada ", Avatar: "a.png"})
	require.NoError(t, err)
	assert.Equal(t, "u1", out.ID)

	got, err := f.svc.GetPublic(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", *got.Name)
	assert.Equal(t, "a.png", *got.Avatar)

	cached, err := f.sessions.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", cached.Name)
	assert.Equal(t, "a.png", cached.Avatar)

	indexed := f.index.Indexed()
	require.Len(t, indexed, 1)
	assert.Equal(t, "ada@example.com", indexed[0].Email)

	require.NoError(t, tr.Wait(waitCtx))
	st := tr.Snapshot()
	require.NotNil(t, st.Profile)
	assert.Equal(t, "Ada", st.Profile.DisplayName())
	assert.Equal(t, "a.png", st.Profile.AvatarPath())
}

func TestUpdateProfile_EmptyFieldsBecomeNull(t *testing.T) {
	f := newProfileFixture(t)
	out, err := f.svc.UpdateProfile(context.Background(), f.sess, UpdateProfileInput{})
	require.NoError(t, err)
	assert.Nil(t, out.Name)
	assert.Nil(t, out.Avatar)
}

func TestUpdateProfile_FailureIsReturnedAndLockReleased(t *testing.T) {
	f := newProfileFixture(t)
	f.profiles.UpsertErr = errors.New("permission denied")

	_, err := f.svc.UpdateProfile(context.Background(), f.sess, UpdateProfileInput{Name: "Ada"})
	assert.ErrorContains(t, err, "permission denied")
	assert.Zero(t, f.lock.Held())
	assert.Empty(t, f.index.Indexed())
}

func TestUpdateProfile_SingleInFlight(t *testing.T) {
	f := newProfileFixture(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	f.avatars.OnUpload = func(string) error {
		close(entered)
		<-release
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.svc.UploadAvatar(context.Background(), f.sess, "me.png", "image/png", strings.NewReader("png"))
		assert.NoError(t, err)
	}()
	<-entered

	_, err := f.svc.UpdateProfile(context.Background(), f.sess, UpdateProfileInput{Name: "Ada"})
	assert.ErrorIs(t, err, ErrUpdateInFlight)

	close(release)
	wg.Wait()
	_, err = f.svc.UpdateProfile(context.Background(), f.sess, UpdateProfileInput{Name: "Ada"})
	assert.NoError(t, err)
}

func TestUpdateProfile_ExpiredHolderCannotReleaseNextLock(t *testing.T) {
	f := newProfileFixture(t)
	key := updatingKey("u1")
	entered := make(chan struct{})
	release := make(chan struct{})
	f.avatars.OnUpload = func(string) error {
		// the first holder outlives its TTL while uploading
		f.lock.Expire(key)
		close(entered)
		<-release
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.svc.UploadAvatar(context.Background(), f.sess, "me.png", "image/png", strings.NewReader("png"))
		assert.NoError(t, err)
	}()
	<-entered

	token, ok, err := f.lock.Acquire(context.Background(), key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	close(release)
	wg.Wait()

	_, err = f.svc.UpdateProfile(context.Background(), f.sess, UpdateProfileInput{Name: "Ada"})
	assert.ErrorIs(t, err, ErrUpdateInFlight)
	require.NoError(t, f.lock.Release(context.Background(), key, token))
}

func TestUploadAvatar_ThenDownloadIsByteIdentical(t *testing.T) {
	f := newProfileFixture(t)
	ctx := context.Background()
	f.profiles.SetPublic(entity.PublicProfile{ID: "u1", Name: entity.StringPtr("Ada")})
	payload := []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3}

	path, err := f.svc.UploadAvatar(ctx, f.sess, "Me.PNG", "image/png", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".png"))
	assert.NotContains(t, path, "/")

	pub, err := f.svc.GetPublic(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, path, *pub.Avatar)
	assert.Equal(t, "Ada", *pub.Name, "upload keeps the name")

	got, ct, err := f.svc.DownloadAvatar(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, "/api/avatars/"+path, AvatarURL(path))
}

func TestUploadAvatar_Rejections(t *testing.T) {
	f := newProfileFixture(t)
	ctx := context.Background()

	_, err := f.svc.UploadAvatar(ctx, f.sess, "a.png", "image/png", nil)
	assert.ErrorIs(t, err, ErrNoImage)
	_, err = f.svc.UploadAvatar(ctx, f.sess, "a.png", "image/png", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoImage)
	_, err = f.svc.UploadAvatar(ctx, f.sess, "a.txt", "text/plain", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrNotImage)
	_, err = f.svc.UploadAvatar(ctx, f.sess, "a.png", "image/png", bytes.NewReader(make([]byte, 1025)))
	assert.ErrorIs(t, err, ErrAvatarTooLarge)
	assert.Zero(t, f.avatars.Len())
}

func TestUploadAvatar_StorageFailureLeavesProfile(t *testing.T) {
	f := newProfileFixture(t)
	f.avatars.OnUpload = func(string) error { return errors.New("bucket gone") }

	_, err := f.svc.UploadAvatar(context.Background(), f.sess, "a.png", "image/png", strings.NewReader("x"))
	assert.ErrorContains(t, err, "bucket gone")
	_, err = f.svc.GetPublic(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestAvatarType(t *testing.T) {
	for _, ct := range []string{"image/png", "image/jpeg", "IMAGE/GIF", "image/webp; q=1"} {
		assert.True(t, AvatarType(ct), ct)
	}
	for _, ct := range []string{"image/svg+xml", "text/html", "image/", ""} {
		assert.False(t, AvatarType(ct), ct)
	}

	f := newProfileFixture(t)
	_, err := f.svc.UploadAvatar(context.Background(), f.sess, "x.svg", "image/svg+xml", strings.NewReader("<svg/>"))
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestAvatarName(t *testing.T) {
	assert.True(t, strings.HasSuffix(AvatarName("photo.JPEG"), ".jpeg"))
	assert.NotContains(t, AvatarName("noext"), ".")
	assert.NotEqual(t, AvatarName("a.png"), AvatarName("a.png"))
	assert.Equal(t, "", AvatarURL(""))
}

func TestDownloadAvatar_Errors(t *testing.T) {
	f := newProfileFixture(t)
	_, _, err := f.svc.DownloadAvatar(context.Background(), "../secret")
	assert.ErrorIs(t, err, ErrInvalidAvatarPath)
	_, _, err = f.svc.DownloadAvatar(context.Background(), "missing.png")
	assert.ErrorIs(t, err, ErrAvatarNotFound)
}

func TestSearchProfiles_AdminOnly(t *testing.T) {
	f := newProfileFixture(t)
	ctx := context.Background()
	f.index.Hits = []map[string]any{{"email": "ada@example.com"}}

	_, err := f.svc.SearchProfiles(ctx, f.sess, "ada", 10)
	assert.ErrorIs(t, err, ErrForbidden)

	f.profiles.SetPrivate(entity.PrivateProfile{ID: "u1", Email: "ada@example.com", Admin: true})
	hits, err := f.svc.SearchProfiles(ctx, f.sess, "ada", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}
