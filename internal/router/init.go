package router

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oksasatya/client-powered/internal/container"
	handlers "github.com/oksasatya/client-powered/internal/interface/http"
	"github.com/oksasatya/client-powered/internal/interface/middleware"
	"github.com/oksasatya/client-powered/internal/router/modules"
)

// InitModules builds the handlers from the container and registers every
// feature module. It also installs the page templates on the engine.
func InitModules(r *Registry, c *container.Container) error {
	tpl, err := handlers.Templates()
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}
	r.Engine.SetHTMLTemplate(tpl)

	cfg := c.Config
	sessions := middleware.NewSessionAccessor(c.JWT, c.Sessions(), c.Logger)

	authHandler := handlers.NewAuthHandler(c.AuthService(), c.Cookies(), c.Logger, cfg.AppName)
	profileHandler := handlers.NewProfileHandler(c.ProfileService(), c.Trackers(), cfg.ProfileWaitTimeout, c.Logger)
	avatarHandler := handlers.NewAvatarHandler(c.ProfileService(), c.Logger)
	pageHandler := handlers.NewPageHandler(authHandler.Pages, profileHandler.Tracker, c.Logger)

	r.Add(modules.NewPageModule(pageHandler, sessions, c.Logger))
	r.Add(modules.NewAuthModule(authHandler, sessions, c.Redis))
	r.Add(modules.NewProfileModule(profileHandler, avatarHandler, sessions, c.Redis))
	if cfg.DebugMetricsEnabled {
		var gatherer prometheus.Gatherer
		if c.Metrics != nil {
			gatherer = c.Metrics
		}
		r.Add(modules.NewDebugModule(c.Redis, gatherer))
	}
	return nil
}
