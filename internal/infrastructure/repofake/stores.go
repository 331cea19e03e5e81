package repofake

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/oksasatya/client-powered/internal/domain/entity"
	"github.com/oksasatya/client-powered/internal/domain/repository"
	"github.com/oksasatya/client-powered/pkg/mailer"
)

var (
	_ repository.SessionStore   = (*Sessions)(nil)
	_ repository.AuthStateStore = (*AuthState)(nil)
	_ repository.MutationLock   = (*Lock)(nil)
	_ repository.AvatarStore    = (*Avatars)(nil)
	_ repository.ProfileIndex   = (*Index)(nil)
)

type Sessions struct {
	mu       sync.Mutex
	sessions map[string]entity.Session
}

func NewSessions() *Sessions { return &Sessions{sessions: map[string]entity.Session{}} }

func (m *Sessions) Save(_ context.Context, s *entity.Session, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Identity.UserID] = *s
	return nil
}

func (m *Sessions) Get(_ context.Context, userID string) (*entity.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (m *Sessions) Rotate(_ context.Context, userID, sid string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return repository.ErrNotFound
	}
	s.ID = sid
	m.sessions[userID] = s
	return nil
}

func (m *Sessions) UpdateProfile(_ context.Context, userID, name, avatar string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil
	}
	s.Name, s.Avatar = name, avatar
	m.sessions[userID] = s
	return nil
}

func (m *Sessions) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

type AuthState struct {
	mu     sync.Mutex
	values map[string]string
	oauth  map[string]repository.OAuthState
}

func NewAuthState() *AuthState {
	return &AuthState{values: map[string]string{}, oauth: map[string]repository.OAuthState{}}
}

func (m *AuthState) put(key, v string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = v
	return nil
}

func (m *AuthState) take(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", repository.ErrNotFound
	}
	delete(m.values, key)
	return v, nil
}

func (m *AuthState) PutMagicLink(_ context.Context, h, email string, _ time.Duration) error {
	return m.put("magic:"+h, email)
}

func (m *AuthState) TakeMagicLink(_ context.Context, h string) (string, error) {
	return m.take("magic:" + h)
}

func (m *AuthState) PutOTP(_ context.Context, email, code string, _ time.Duration) error {
	return m.put("otp:"+email, code)
}

func (m *AuthState) TakeOTP(_ context.Context, email string) (string, error) {
	return m.take("otp:" + email)
}

func (m *AuthState) PutOAuthState(_ context.Context, state string, v repository.OAuthState, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.oauth[state] = v
	return nil
}

func (m *AuthState) TakeOAuthState(_ context.Context, state string) (*repository.OAuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.oauth[state]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(m.oauth, state)
	return &v, nil
}

type Lock struct {
	mu   sync.Mutex
	held map[string]string
	next int
}

func NewLock() *Lock { return &Lock{held: map[string]string{}} }

func (l *Lock) Acquire(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.next++
	token := strconv.Itoa(l.next)
	l.held[key] = token
	return token, true, nil
}

func (l *Lock) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != token {
		return repository.ErrLockLost
	}
	delete(l.held, key)
	return nil
}

// Expire drops key as if its TTL ran out.
func (l *Lock) Expire(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}

// Held reports how many keys are locked.
func (l *Lock) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

type Avatars struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	// OnUpload runs before the object is stored when set.
	OnUpload func(path string) error
}

func NewAvatars() *Avatars {
	return &Avatars{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *Avatars) Upload(_ context.Context, path, ct string, r io.Reader) error {
	if m.OnUpload != nil {
		if err := m.OnUpload(path); err != nil {
			return err
		}
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = buf.Bytes()
	m.types[path] = ct
	return nil
}

func (m *Avatars) Download(_ context.Context, path string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, "", repository.ErrNotFound
	}
	return b, m.types[path], nil
}

func (m *Avatars) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type Index struct {
	mu      sync.Mutex
	indexed []entity.Profile
	Hits    []map[string]any
}

func (m *Index) Index(_ context.Context, p entity.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexed = append(m.indexed, p)
	return nil
}

func (m *Index) Search(context.Context, string, int) ([]map[string]any, error) {
	return m.Hits, nil
}

func (m *Index) Indexed() []entity.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.Profile(nil), m.indexed...)
}

// Queue records enqueued email jobs.
type Queue struct {
	mu   sync.Mutex
	jobs []mailer.EmailJob
	Err  error
}

func (q *Queue) Enqueue(_ context.Context, job mailer.EmailJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return q.Err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *Queue) Jobs() []mailer.EmailJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]mailer.EmailJob(nil), q.jobs...)
}

// Provider is a scripted OAuth provider.
type Provider struct {
	ProviderName string
	EmailFunc    func(ctx context.Context, code, nonce string) (string, error)
}

func (p *Provider) Name() string { return p.ProviderName }

func (p *Provider) AuthCodeURL(state, nonce string) string {
	return "https://idp.test/authorize?state=" + state + "&nonce=" + nonce
}

func (p *Provider) Email(ctx context.Context, code, nonce string) (string, error) {
	return p.EmailFunc(ctx, code, nonce)
}
