// Package profilestate aggregates a signed-in user's public and private
// profile rows into one Profile.
//
// A Tracker runs the state machine Idle -> Fetching -> {Ready, Failed} for
// the identity it observes. Every fetch is a cancellable task tagged with a
// generation number; a task's result is applied only while its generation is
// current, so a fetch issued for a previous identity can never overwrite the
// state of the current one.
package profilestate

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/oksasatya/client-powered/internal/domain/entity"
	"github.com/oksasatya/client-powered/internal/metrics"
	"github.com/oksasatya/client-powered/pkg/helpers"
)

// FetchErrorContext tags every error recorded by a failed fetch.
const FetchErrorContext = "error fetching profile"

type Phase int

const (
	Idle Phase = iota
	Fetching
	Ready
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// FetchError pairs the context message with the underlying failure.
type FetchError struct {
	Context string
	Err     error
}

func (e *FetchError) Error() string { return e.Context + ": " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher reads the two halves of a profile.
type Fetcher interface {
	GetPublic(ctx context.Context, id string) (*entity.PublicProfile, error)
	GetPrivate(ctx context.Context, id string) (*entity.PrivateProfile, error)
}

// State is a point-in-time copy of a tracker.
type State struct {
	Profile  *entity.Profile
	Fetching bool
	// Errors accumulates across fetches for the same identity and is reset
	// when the identity changes.
	Errors []*FetchError
	Auth   *entity.Identity
	Phase  Phase
}

type Option func(*Tracker)

func WithRecorder(r metrics.FetchRecorder) Option { return func(t *Tracker) { t.rec = r } }
func WithLogger(l *logrus.Logger) Option          { return func(t *Tracker) { t.logger = l } }

// WithTimeout bounds each fetch task. Zero means no bound.
func WithTimeout(d time.Duration) Option { return func(t *Tracker) { t.timeout = d } }

type Tracker struct {
	fetcher Fetcher
	rec     metrics.FetchRecorder
	logger  *logrus.Logger
	timeout time.Duration

	mu      sync.Mutex
	state   State
	gen     uint64
	cancel  context.CancelFunc
	changed chan struct{}
}

func NewTracker(f Fetcher, opts ...Option) *Tracker {
	t := &Tracker{
		fetcher: f,
		rec:     metrics.Nop{},
		logger:  helpers.NopLogger(),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe feeds the current identity into the tracker. A new or changed
// identity supersedes any running fetch and starts another; observing the
// identity already tracked is a no-op; nil resets to Idle.
func (t *Tracker) Observe(id *entity.Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id == nil {
		if t.state.Auth == nil && t.state.Phase == Idle {
			return
		}
		t.supersede()
		t.state = State{Phase: Idle}
		t.notify()
		return
	}
	if t.state.Auth != nil && *t.state.Auth == *id {
		return
	}

	auth := *id
	t.state = State{Auth: &auth}
	t.dispatch()
}

// Refresh re-runs the fetch for the current identity. The last good profile
// stays visible until the new result lands. It does nothing while Idle.
func (t *Tracker) Refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Auth == nil {
		return
	}
	t.dispatch()
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := State{Fetching: t.state.Fetching, Phase: t.state.Phase}
	if t.state.Profile != nil {
		p := *t.state.Profile
		s.Profile = &p
	}
	if t.state.Auth != nil {
		a := *t.state.Auth
		s.Auth = &a
	}
	if len(t.state.Errors) > 0 {
		s.Errors = append([]*FetchError(nil), t.state.Errors...)
	}
	return s
}

// Changes returns a channel that is closed on the next state change.
func (t *Tracker) Changes() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.changed
}

// Wait blocks until no fetch is running or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		fetching := t.state.Fetching
		ch := t.changed
		t.mu.Unlock()
		if !fetching {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close cancels any running fetch and wakes everyone in Wait. The tracker
// must not be used afterwards.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.supersede()
	if t.state.Fetching {
		t.state.Fetching = false
		if t.state.Profile != nil {
			t.state.Phase = Ready
		} else {
			t.state.Phase = Idle
		}
	}
	t.notify()
}

// supersede invalidates the running task, if any. Callers hold mu.
func (t *Tracker) supersede() {
	t.gen++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// dispatch starts a fetch task for state.Auth. Callers hold mu.
func (t *Tracker) dispatch() {
	t.supersede()

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if t.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), t.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	t.cancel = cancel
	t.state.Fetching = true
	t.state.Phase = Fetching
	t.notify()

	go t.run(ctx, t.gen, t.state.Auth.UserID)
}

func (t *Tracker) run(ctx context.Context, gen uint64, userID string) {
	start := time.Now()
	var (
		pub  *entity.PublicProfile
		priv *entity.PrivateProfile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := t.fetcher.GetPublic(gctx, userID)
		if err != nil {
			return err
		}
		pub = p
		return nil
	})
	g.Go(func() error {
		p, err := t.fetcher.GetPrivate(gctx, userID)
		if err != nil {
			return err
		}
		priv = p
		return nil
	})
	err := g.Wait()
	t.apply(gen, userID, pub, priv, err, time.Since(start))
}

func (t *Tracker) apply(gen uint64, userID string, pub *entity.PublicProfile, priv *entity.PrivateProfile, err error, took time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.gen {
		t.rec.RecordProfileFetch(metrics.ResultDiscarded, took)
		t.logger.WithField("user_id", userID).Debug("discarding superseded profile fetch")
		return
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}

	t.state.Fetching = false
	if err != nil {
		// a half that did arrive is dropped with the failure
		t.state.Profile = nil
		t.state.Phase = Failed
		t.state.Errors = append(t.state.Errors, &FetchError{Context: FetchErrorContext, Err: err})
		t.rec.RecordProfileFetch(metrics.ResultFailed, took)
		t.logger.WithError(err).WithField("user_id", userID).Warn(FetchErrorContext)
	} else {
		p := entity.MergeProfile(*pub, *priv)
		t.state.Profile = &p
		t.state.Phase = Ready
		t.rec.RecordProfileFetch(metrics.ResultReady, took)
	}
	t.notify()
}

// notify wakes everyone waiting on Changes. Callers hold mu.
func (t *Tracker) notify() {
	close(t.changed)
	t.changed = make(chan struct{})
}
