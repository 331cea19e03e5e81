package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oksasatya/client-powered/internal/domain/entity"
	"github.com/oksasatya/client-powered/internal/domain/repository"
)

type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

func scanPublic(row pgx.CollectableRow) (entity.PublicProfile, error) {
	var p entity.PublicProfile
	err := row.Scan(&p.ID, &p.Name, &p.Avatar, &p.UpdatedAt)
	return p, err
}

func scanPrivate(row pgx.CollectableRow) (entity.PrivateProfile, error) {
	var p entity.PrivateProfile
	err := row.Scan(&p.ID, &p.Admin, &p.Email, &p.Phone)
	return p, err
}

// exactlyOne maps pgx's row-count errors onto the repository sentinels.
func exactlyOne[T any](rows pgx.Rows, fn pgx.RowToFunc[T]) (*T, error) {
	v, err := pgx.CollectExactlyOneRow(rows, fn)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, repository.ErrNotFound
	case errors.Is(err, pgx.ErrTooManyRows):
		return nil, repository.ErrTooManyRows
	case err != nil:
		return nil, err
	}
	return &v, nil
}

func (r *ProfileRepository) GetPublic(ctx context.Context, id string) (*entity.PublicProfile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, avatar, updated_at
		FROM profiles
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	return exactlyOne(rows, scanPublic)
}

func (r *ProfileRepository) GetPrivate(ctx context.Context, id string) (*entity.PrivateProfile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, admin, email, phone
		FROM profiles_private
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	return exactlyOne(rows, scanPrivate)
}

func (r *ProfileRepository) GetPrivateByEmail(ctx context.Context, email string) (*entity.PrivateProfile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, admin, email, phone
		FROM profiles_private
		WHERE email = $1
	`, email)
	if err != nil {
		return nil, err
	}
	return exactlyOne(rows, scanPrivate)
}

func (r *ProfileRepository) UpsertPublic(ctx context.Context, p *entity.PublicProfile) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO profiles (id, name, avatar, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, avatar = EXCLUDED.avatar, updated_at = EXCLUDED.updated_at
		RETURNING updated_at
	`, p.ID, p.Name, p.Avatar)
	return row.Scan(&p.UpdatedAt)
}

func (r *ProfileRepository) CreateUser(ctx context.Context, priv *entity.PrivateProfile) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO profiles_private (id, admin, email, phone)
		VALUES ($1, $2, $3, $4)
	`, priv.ID, priv.Admin, priv.Email, priv.Phone); err != nil {
		return fmt.Errorf("insert profiles_private: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO profiles (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`, priv.ID); err != nil {
		return fmt.Errorf("insert profiles: %w", err)
	}
	return tx.Commit(ctx)
}

var _ repository.ProfileRepository = (*ProfileRepository)(nil)
