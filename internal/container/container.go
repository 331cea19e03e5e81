// Package container holds the process-wide components built at startup and
// the services derived from them. cmd/main fills the infrastructure fields;
// the services are built on first use.
package container

import (
	"sync"

	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/client-powered/config"
	"github.com/oksasatya/client-powered/internal/application"
	"github.com/oksasatya/client-powered/internal/application/profilestate"
	"github.com/oksasatya/client-powered/internal/domain/repository"
	"github.com/oksasatya/client-powered/internal/infrastructure/elastic"
	"github.com/oksasatya/client-powered/internal/infrastructure/gcs"
	pginfra "github.com/oksasatya/client-powered/internal/infrastructure/postgres"
	"github.com/oksasatya/client-powered/internal/infrastructure/redisstore"
	"github.com/oksasatya/client-powered/internal/metrics"
	"github.com/oksasatya/client-powered/pkg/helpers"
	"github.com/oksasatya/client-powered/pkg/mailer/templates"
)

type Container struct {
	Config *config.Config
	Logger *logrus.Logger

	PG    *pgxpool.Pool
	Redis *redis.Client
	GCS   *storage.Client
	ES    *elasticsearch.Client // nil disables search indexing

	// Mail is nil when sending is disabled.
	Mail      application.MailQueue
	Providers []application.OAuthProvider

	JWT     *helpers.JWTManager
	Metrics *prometheus.Registry

	once     sync.Once
	sessions repository.SessionStore
	profiles *application.ProfileService
	auth     *application.AuthService
	trackers *profilestate.Registry
}

// build wires the services together. The tracker registry fetches through
// the profile service, and both services hand it work.
func (c *Container) build() {
	cfg := c.Config
	c.sessions = redisstore.NewSessionStore(c.Redis)
	sessions := c.sessions
	repo := pginfra.NewProfileRepository(c.PG)

	var index repository.ProfileIndex
	if c.ES != nil {
		index = elastic.NewProfileIndex(c.ES, cfg.ESProfilesIndex)
	}
	c.profiles = application.NewProfileService(
		repo,
		sessions,
		gcs.NewAvatarStore(c.GCS, cfg.GCSBucket, cfg.AvatarPrefix),
		index,
		redisstore.NewLock(c.Redis),
		c.Logger,
		cfg.AvatarMaxBytes,
	)

	var rec metrics.FetchRecorder = metrics.Nop{}
	if c.Metrics != nil {
		rec = metrics.NewCollector(c.Metrics)
	}
	c.trackers = profilestate.NewRegistry(c.profiles,
		profilestate.WithRecorder(rec),
		profilestate.WithLogger(c.Logger),
		profilestate.WithTimeout(cfg.ProfileFetchTimeout),
	)
	c.profiles.Trackers = c.trackers

	c.auth = application.NewAuthService(
		repo,
		sessions,
		redisstore.NewAuthStateStore(c.Redis),
		c.JWT,
		c.Mail,
		c.Providers,
		c.trackers,
		c.Logger,
		cfg.BaseURL,
		templates.Brand{AppName: cfg.AppName, CompanyName: cfg.CompanyName, SupportURL: cfg.SupportURL},
		cfg.MagicLinkTTL,
		cfg.SessionTTL,
	)
}

func (c *Container) ProfileService() *application.ProfileService {
	c.once.Do(c.build)
	return c.profiles
}

func (c *Container) AuthService() *application.AuthService {
	c.once.Do(c.build)
	return c.auth
}

func (c *Container) Trackers() *profilestate.Registry {
	c.once.Do(c.build)
	return c.trackers
}

// Sessions is the server-side session store shared by the auth service and
// the session middleware.
func (c *Container) Sessions() repository.SessionStore {
	c.once.Do(c.build)
	return c.sessions
}

// Cookies builds the cookie writer for the configured domain.
func (c *Container) Cookies() *helpers.Manager {
	return helpers.NewCookie(c.Config.CookieDomain, c.Config.CookieSecure)
}
