package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/oksasatya/client-powered/config"
	"github.com/oksasatya/client-powered/internal/domain/entity"
	"github.com/oksasatya/client-powered/internal/domain/repository"
	pginfra "github.com/oksasatya/client-powered/internal/infrastructure/postgres"
	"github.com/oksasatya/client-powered/pkg/helpers"
)

// seed creates (or promotes) a demo admin account. Sign in as it with a
// magic link sent to -email.
func main() {
	email := flag.String("email", "admin@example.com", "admin e-mail address")
	name := flag.String("name", "Demo Admin", "display name")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), 2, 1, time.Minute)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to postgres")
	}
	defer pool.Close()
	if err := pginfra.Migrate(cfg.PostgresDSN(), cfg.MigrationsDir, logger); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}

	repo := pginfra.NewProfileRepository(pool)
	priv, err := repo.GetPrivateByEmail(ctx, *email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		priv = &entity.PrivateProfile{ID: uuid.NewString(), Email: *email, Admin: true}
		if err := repo.CreateUser(ctx, priv); err != nil {
			logger.WithError(err).Fatal("failed to create admin")
		}
	case err != nil:
		logger.WithError(err).Fatal("failed to look up admin")
	}

	// the private row has no write path in the app itself
	if _, err := pool.Exec(ctx, `UPDATE profiles_private SET admin = TRUE WHERE id = $1`, priv.ID); err != nil {
		logger.WithError(err).Fatal("failed to grant admin")
	}
	if err := repo.UpsertPublic(ctx, &entity.PublicProfile{ID: priv.ID, Name: entity.StringPtr(*name)}); err != nil {
		logger.WithError(err).Fatal("failed to upsert public profile")
	}
	logger.WithField("user_id", priv.ID).WithField("email", priv.Email).Info("seeded admin user")
}
