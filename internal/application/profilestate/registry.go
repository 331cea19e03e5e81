package profilestate

import (
	"sync"
	"time"
)

// Registry holds one Tracker per session id.
type Registry struct {
	fetcher Fetcher
	opts    []Option
	now     func() time.Time

	mu       sync.Mutex
	trackers map[string]*entry
}

type entry struct {
	tracker  *Tracker
	lastSeen time.Time
}

func NewRegistry(f Fetcher, opts ...Option) *Registry {
	return &Registry{
		fetcher:  f,
		opts:     opts,
		now:      time.Now,
		trackers: make(map[string]*entry),
	}
}

// For returns the tracker for sid, creating it on first use.
func (r *Registry) For(sid string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.trackers[sid]
	if !ok {
		e = &entry{tracker: NewTracker(r.fetcher, r.opts...)}
		r.trackers[sid] = e
	}
	e.lastSeen = r.now()
	return e.tracker
}

// Move re-keys a tracker after its session id rotated.
func (r *Registry) Move(oldSID, newSID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.trackers[oldSID]
	if !ok || oldSID == newSID {
		return
	}
	delete(r.trackers, oldSID)
	if prev, ok := r.trackers[newSID]; ok {
		prev.tracker.Close()
	}
	r.trackers[newSID] = e
}

// Drop closes and forgets the tracker for sid.
func (r *Registry) Drop(sid string) {
	r.mu.Lock()
	e, ok := r.trackers[sid]
	delete(r.trackers, sid)
	r.mu.Unlock()
	if ok {
		e.tracker.Close()
	}
}

// Sweep drops trackers not requested within maxIdle and returns how many
// were removed.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)
	var stale []*Tracker

	r.mu.Lock()
	for sid, e := range r.trackers {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, e.tracker)
			delete(r.trackers, sid)
		}
	}
	r.mu.Unlock()

	for _, t := range stale {
		t.Close()
	}
	return len(stale)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trackers)
}

// Close cancels every running fetch and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.trackers
	r.trackers = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range all {
		e.tracker.Close()
	}
}
