// Package repofake holds in-memory implementations of the repository
// interfaces for tests and local runs.
package repofake

import (
	"context"
	"sync"
	"time"

	"github.com/oksasatya/client-powered/internal/domain/entity"
	"github.com/oksasatya/client-powered/internal/domain/repository"
)

var _ repository.ProfileRepository = (*Profiles)(nil)

type Profiles struct {
	mu      sync.Mutex
	public  map[string]entity.PublicProfile
	private map[string]entity.PrivateProfile

	// UpsertErr and CreateErr, when set, are returned by the matching call.
	UpsertErr error
	CreateErr error
}

func NewProfiles() *Profiles {
	return &Profiles{public: map[string]entity.PublicProfile{}, private: map[string]entity.PrivateProfile{}}
}

// SetPublic and SetPrivate seed rows directly.
func (m *Profiles) SetPublic(p entity.PublicProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.public[p.ID] = p
}

func (m *Profiles) SetPrivate(p entity.PrivateProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.private[p.ID] = p
}

func (m *Profiles) GetPublic(_ context.Context, id string) (*entity.PublicProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.public[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (m *Profiles) GetPrivate(_ context.Context, id string) (*entity.PrivateProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.private[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (m *Profiles) GetPrivateByEmail(_ context.Context, email string) (*entity.PrivateProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []entity.PrivateProfile
	for _, p := range m.private {
		if p.Email == email {
			found = append(found, p)
		}
	}
	switch len(found) {
	case 0:
		return nil, repository.ErrNotFound
	case 1:
		return &found[0], nil
	}
	return nil, repository.ErrTooManyRows
}

func (m *Profiles) UpsertPublic(_ context.Context, p *entity.PublicProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	p.UpdatedAt = time.Now()
	m.public[p.ID] = *p
	return nil
}

func (m *Profiles) CreateUser(_ context.Context, priv *entity.PrivateProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.private[priv.ID] = *priv
	m.public[priv.ID] = entity.PublicProfile{ID: priv.ID}
	return nil
}
