package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/client-powered/config"
	"github.com/oksasatya/client-powered/internal/application"
	"github.com/oksasatya/client-powered/internal/container"
	"github.com/oksasatya/client-powered/internal/infrastructure/elastic"
	"github.com/oksasatya/client-powered/internal/infrastructure/oauth"
	pginfra "github.com/oksasatya/client-powered/internal/infrastructure/postgres"
	"github.com/oksasatya/client-powered/internal/interface/middleware"
	"github.com/oksasatya/client-powered/internal/router"
	"github.com/oksasatya/client-powered/pkg/helpers"
	"github.com/oksasatya/client-powered/pkg/mailer"
	"github.com/oksasatya/client-powered/pkg/validation"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := helpers.NewLogger(cfg.AppName, cfg.Env)
	gin.SetMode(cfg.GinMode)
	validation.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres
	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), cfg.DBMaxConns, cfg.DBMinConns, cfg.DBMaxConnLife)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to postgres")
	}
	defer pool.Close()
	if err := pginfra.Migrate(cfg.PostgresDSN(), cfg.MigrationsDir, logger); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}

	// Redis
	rdb := helpers.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}

	// GCS (avatars)
	gcsClient, err := helpers.NewGCSClient(ctx, cfg.GCSCredentialsJSONPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to init GCS client")
	}
	defer func() { _ = gcsClient.Close() }()

	// Elasticsearch is optional
	es, err := elastic.NewClient(cfg.ESAddrs(), cfg.ElasticsearchUser, cfg.ElasticsearchPass)
	if err != nil {
		logger.WithError(err).Fatal("failed to init elasticsearch client")
	}
	if es == nil {
		logger.Info("ELASTICSEARCH_ADDRS empty; profile search disabled")
	}

	c := &container.Container{
		Config:    cfg,
		Logger:    logger,
		PG:        pool,
		Redis:     rdb,
		GCS:       gcsClient,
		ES:        es,
		Providers: oauthProviders(ctx, cfg, logger),
		JWT:       helpers.NewJWTManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTTL, cfg.RefreshTTL),
	}

	// RabbitMQ email queue
	if cfg.MailSendEnabled {
		q, err := mailer.Dial(cfg.RabbitMQURL, cfg.RabbitMQEmailQueue)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to rabbitmq")
		}
		defer q.Close()
		c.Mail = q
	} else {
		logger.Warn("MAIL_SEND_ENABLED=false; magic links are only logged")
	}

	if cfg.DebugMetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		c.Metrics = reg
	}

	// Gin engine and global middleware
	r := gin.New()
	if !cfg.TrustProxyHeaders {
		if err := r.SetTrustedProxies(nil); err != nil {
			logger.WithError(err).Fatal("set trusted proxies")
		}
	}
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RealIP(cfg.TrustProxyHeaders))
	corsCfg := cors.Config{
		AllowOrigins:     cfg.CORSOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsCfg.AllowOrigins) > 0 {
		r.Use(cors.New(corsCfg))
	}
	if cfg.HTTPLogEnabled {
		r.Use(middleware.AccessLog(logger))
	}

	reg := router.NewRegistry(r)
	if err := router.InitModules(reg, c); err != nil {
		logger.WithError(err).Fatal("failed to init modules")
	}
	reg.RegisterAll()

	go sweepTrackers(ctx, c, logger)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Infof("server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %s", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	c.Trackers().Close()
	logger.Info("server exited properly")
}

// oauthProviders runs discovery for every configured provider. A provider
// whose discovery fails is left out so magic links keep working.
func oauthProviders(ctx context.Context, cfg *config.Config, logger *logrus.Logger) []application.OAuthProvider {
	var out []application.OAuthProvider
	for _, name := range cfg.OAuthProviders() {
		var issuer, id, secret string
		switch name {
		case "google":
			issuer, id, secret = cfg.GoogleIssuer, cfg.GoogleClientID, cfg.GoogleClientSecret
		default:
			continue
		}
		dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		p, err := oauth.NewProvider(dctx, name, issuer, id, secret, cfg.OAuthRedirectURL(name))
		cancel()
		if err != nil {
			logger.WithError(err).WithField("provider", name).Warn("oauth discovery failed; provider disabled")
			continue
		}
		out = append(out, p)
	}
	return out
}

// sweepTrackers drops profile trackers of sessions that went quiet.
func sweepTrackers(ctx context.Context, c *container.Container, logger *logrus.Logger) {
	idle := c.Config.TrackerIdleTTL
	if idle <= 0 {
		return
	}
	t := time.NewTicker(idle / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := c.Trackers().Sweep(idle); n > 0 {
				logger.WithField("dropped", n).Debug("swept idle profile trackers")
			}
		}
	}
}
