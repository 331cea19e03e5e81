package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/client-powered/internal/domain/entity"
	"github.com/oksasatya/client-powered/internal/domain/repository"
	"github.com/oksasatya/client-powered/pkg/helpers"
)

// Migrates and runs against TEST_DATABASE_URL when it is set.
func newTestRepo(t *testing.T) *ProfileRepository {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, Migrate(dsn, "../../../db/migrations", helpers.NopLogger()))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := NewPool(ctx, dsn, 4, 1, time.Minute)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewProfileRepository(pool)
}

func TestNewProfileRepository_Initializes(t *testing.T) {
	require.NotNil(t, NewProfileRepository(nil))
}

func TestProfileRepository_CreateAndFetch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	priv := &entity.PrivateProfile{ID: uuid.NewString(), Email: uuid.NewString() + "@example.com"}
	require.NoError(t, repo.CreateUser(ctx, priv))

	gotPriv, err := repo.GetPrivate(ctx, priv.ID)
	require.NoError(t, err)
	assert.Equal(t, priv.Email, gotPriv.Email)
	assert.False(t, gotPriv.Admin)

	byEmail, err := repo.GetPrivateByEmail(ctx, priv.Email)
	require.NoError(t, err)
	assert.Equal(t, priv.ID, byEmail.ID)

	pub, err := repo.GetPublic(ctx, priv.ID)
	require.NoError(t, err)
	assert.Nil(t, pub.Name)
	assert.Nil(t, pub.Avatar)
}

func TestProfileRepository_UpsertRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	id := uuid.NewString()

	// first upsert inserts
	require.NoError(t, repo.UpsertPublic(ctx, &entity.PublicProfile{ID: id, Name: entity.StringPtr("Ada")}))
	// second updates
	in := &entity.PublicProfile{ID: id, Name: entity.StringPtr("Grace"), Avatar: entity.StringPtr("g.png")}
	require.NoError(t, repo.UpsertPublic(ctx, in))
	assert.False(t, in.UpdatedAt.IsZero())

	got, err := repo.GetPublic(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Grace", *got.Name)
	assert.Equal(t, "g.png", *got.Avatar)
}

func TestProfileRepository_MissingRow(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetPrivate(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
