package profilestate

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/client-powered/internal/domain/entity"
	"github.com/oksasatya/client-powered/internal/metrics"
)

type fakeFetcher struct {
	public  func(ctx context.Context, id string) (*entity.PublicProfile, error)
	private func(ctx context.Context, id string) (*entity.PrivateProfile, error)
}

func (f *fakeFetcher) GetPublic(ctx context.Context, id string) (*entity.PublicProfile, error) {
	return f.public(ctx, id)
}

func (f *fakeFetcher) GetPrivate(ctx context.Context, id string) (*entity.PrivateProfile, error) {
	return f.private(ctx, id)
}

// resultRecorder lets tests wait for a task to apply (or drop) its result.
type resultRecorder struct {
	results chan string
}

func newResultRecorder() *resultRecorder {
	return &resultRecorder{results: make(chan string, 32)}
}

func (r *resultRecorder) RecordProfileFetch(result string, _ time.Duration) {
	r.results <- result
}

func (r *resultRecorder) next(t *testing.T) string {
	t.Helper()
	select {
	case res := <-r.results:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a fetch result")
		return ""
	}
}

func rows(id, name, email string) (*entity.PublicProfile, *entity.PrivateProfile) {
	return &entity.PublicProfile{ID: id, Name: entity.StringPtr(name)},
		&entity.PrivateProfile{ID: id, Email: email, Admin: true}
}

func staticFetcher() *fakeFetcher {
	return &fakeFetcher{
		public: func(_ context.Context, id string) (*entity.PublicProfile, error) {
			pub, _ := rows(id, "name-"+id, id+"@example.com")
			return pub, nil
		},
		private: func(_ context.Context, id string) (*entity.PrivateProfile, error) {
			_, priv := rows(id, "name-"+id, id+"@example.com")
			return priv, nil
		},
	}
}

func waitReady(t *testing.T, tr *Tracker) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tr.Wait(ctx))
	return tr.Snapshot()
}

func TestTracker_ReadyMergesBothRows(t *testing.T) {
	tr := NewTracker(staticFetcher())
	assert.Equal(t, Idle, tr.Snapshot().Phase)

	tr.Observe(&entity.Identity{UserID: "u1", Email: "u1@example.com"})
	st := waitReady(t, tr)

	require.Equal(t, Ready, st.Phase)
	require.NotNil(t, st.Profile)
	assert.False(t, st.Fetching)
	assert.Empty(t, st.Errors)
	assert.Equal(t, "u1", st.Auth.UserID)
	assert.Equal(t, "name-u1", st.Profile.DisplayName())
	assert.Equal(t, "u1@example.com", st.Profile.Email)
	assert.True(t, st.Profile.Admin)

	b, err := json.Marshal(st.Profile)
	require.NoError(t, err)
	var keys map[string]any
	require.NoError(t, json.Unmarshal(b, &keys))
	got := make([]string, 0, len(keys))
	for k := range keys {
		got = append(got, k)
	}
	sort.Strings(got)
	assert.Equal(t, []string{"admin", "email", "id", "name"}, got)
}

func TestTracker_EitherFailureLeavesProfileNil(t *testing.T) {
	boom := errors.New("connection refused")
	cases := map[string]func(f *fakeFetcher){
		"public fails": func(f *fakeFetcher) {
			f.public = func(context.Context, string) (*entity.PublicProfile, error) { return nil, boom }
		},
		"private fails": func(f *fakeFetcher) {
			f.private = func(context.Context, string) (*entity.PrivateProfile, error) { return nil, boom }
		},
	}
	for name, breakIt := range cases {
		t.Run(name, func(t *testing.T) {
			f := staticFetcher()
			breakIt(f)
			tr := NewTracker(f)

			tr.Observe(&entity.Identity{UserID: "u1"})
			st := waitReady(t, tr)

			assert.Equal(t, Failed, st.Phase)
			assert.Nil(t, st.Profile)
			require.Len(t, st.Errors, 1)
			assert.Equal(t, FetchErrorContext, st.Errors[0].Context)
			assert.ErrorIs(t, st.Errors[0], boom)
		})
	}
}

func TestTracker_StaleIdentityNeverOverwrites(t *testing.T) {
	release := make(chan struct{})
	f := staticFetcher()
	base := f.public
	f.public = func(ctx context.Context, id string) (*entity.PublicProfile, error) {
		if id == "u1" {
			// ignore cancellation so the stale result really comes back
			<-release
		}
		return base(ctx, id)
	}
	rec := newResultRecorder()
	tr := NewTracker(f, WithRecorder(rec))

	tr.Observe(&entity.Identity{UserID: "u1"})
	tr.Observe(&entity.Identity{UserID: "u2"})
	assert.Equal(t, metrics.ResultReady, rec.next(t))

	close(release)
	assert.Equal(t, metrics.ResultDiscarded, rec.next(t))

	st := tr.Snapshot()
	require.NotNil(t, st.Profile)
	assert.Equal(t, "u2", st.Profile.ID)
	assert.Equal(t, "u2", st.Auth.UserID)
	assert.Equal(t, Ready, st.Phase)
}

func TestTracker_FetchingUntilBothResolve(t *testing.T) {
	publicDone := make(chan struct{})
	releasePrivate := make(chan struct{})
	f := staticFetcher()
	basePub, basePriv := f.public, f.private
	f.public = func(ctx context.Context, id string) (*entity.PublicProfile, error) {
		defer close(publicDone)
		return basePub(ctx, id)
	}
	f.private = func(ctx context.Context, id string) (*entity.PrivateProfile, error) {
		<-releasePrivate
		return basePriv(ctx, id)
	}
	tr := NewTracker(f)

	tr.Observe(&entity.Identity{UserID: "u1"})
	<-publicDone
	st := tr.Snapshot()
	assert.True(t, st.Fetching)
	assert.Equal(t, Fetching, st.Phase)
	assert.Nil(t, st.Profile)

	close(releasePrivate)
	st = waitReady(t, tr)
	assert.False(t, st.Fetching)
	assert.NotNil(t, st.Profile)
}

func TestTracker_ErrorsAccumulateAndResetOnIdentityChange(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	f := staticFetcher()
	base := f.private
	f.private = func(ctx context.Context, id string) (*entity.PrivateProfile, error) {
		if fail.Load() {
			return nil, errors.New("too many rows")
		}
		return base(ctx, id)
	}
	tr := NewTracker(f)

	tr.Observe(&entity.Identity{UserID: "u1"})
	waitReady(t, tr)
	tr.Refresh()
	st := waitReady(t, tr)
	assert.Len(t, st.Errors, 2)

	fail.Store(false)
	tr.Refresh()
	st = waitReady(t, tr)
	assert.Equal(t, Ready, st.Phase)
	assert.Len(t, st.Errors, 2, "a later success keeps earlier errors")

	tr.Observe(&entity.Identity{UserID: "u2"})
	st = waitReady(t, tr)
	assert.Empty(t, st.Errors)
	assert.Equal(t, "u2", st.Profile.ID)
}

func TestTracker_SameIdentityIsNoop(t *testing.T) {
	var calls atomic.Int32
	f := staticFetcher()
	base := f.public
	f.public = func(ctx context.Context, id string) (*entity.PublicProfile, error) {
		calls.Add(1)
		return base(ctx, id)
	}
	tr := NewTracker(f)

	id := &entity.Identity{UserID: "u1", Email: "u1@example.com"}
	tr.Observe(id)
	waitReady(t, tr)
	tr.Observe(&entity.Identity{UserID: "u1", Email: "u1@example.com"})
	waitReady(t, tr)

	assert.EqualValues(t, 1, calls.Load())
}

func TestTracker_NilIdentityResetsToIdle(t *testing.T) {
	tr := NewTracker(staticFetcher())
	tr.Observe(&entity.Identity{UserID: "u1"})
	waitReady(t, tr)

	changed := tr.Changes()
	tr.Observe(nil)

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("expected a change notification")
	}
	st := tr.Snapshot()
	assert.Equal(t, Idle, st.Phase)
	assert.Nil(t, st.Profile)
	assert.Nil(t, st.Auth)
}

func TestTracker_SupersededFetchIsCancelled(t *testing.T) {
	cancelled := make(chan struct{})
	f := staticFetcher()
	base := f.public
	f.public = func(ctx context.Context, id string) (*entity.PublicProfile, error) {
		if id == "u1" {
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		}
		return base(ctx, id)
	}
	tr := NewTracker(f)

	tr.Observe(&entity.Identity{UserID: "u1"})
	tr.Observe(&entity.Identity{UserID: "u2"})

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("superseded fetch was not cancelled")
	}
	st := waitReady(t, tr)
	assert.Equal(t, "u2", st.Profile.ID)
	assert.Empty(t, st.Errors)
}

func TestTracker_WaitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	f := staticFetcher()
	f.private = func(context.Context, string) (*entity.PrivateProfile, error) {
		<-block
		return nil, errors.New("unreachable")
	}
	tr := NewTracker(f)
	tr.Observe(&entity.Identity{UserID: "u1"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tr.Wait(ctx), context.DeadlineExceeded)
	assert.True(t, tr.Snapshot().Fetching)
}

func TestTracker_TimeoutFailsFetch(t *testing.T) {
	f := staticFetcher()
	f.private = func(ctx context.Context, _ string) (*entity.PrivateProfile, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	tr := NewTracker(f, WithTimeout(10*time.Millisecond))
	tr.Observe(&entity.Identity{UserID: "u1"})

	st := waitReady(t, tr)
	assert.Equal(t, Failed, st.Phase)
	require.Len(t, st.Errors, 1)
	assert.ErrorIs(t, st.Errors[0], context.DeadlineExceeded)
}

func TestTracker_CloseReleasesWaiters(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	f := staticFetcher()
	f.private = func(context.Context, string) (*entity.PrivateProfile, error) {
		<-block
		return nil, errors.New("unreachable")
	}
	tr := NewTracker(f)
	tr.Observe(&entity.Identity{UserID: "u1"})

	done := make(chan error, 1)
	go func() { done <- tr.Wait(context.Background()) }()
	tr.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait still blocked after Close")
	}
	st := tr.Snapshot()
	assert.False(t, st.Fetching)
	assert.Equal(t, Idle, st.Phase)
}
