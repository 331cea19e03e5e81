package modules

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	handlers "github.com/oksasatya/client-powered/internal/interface/http"
	"github.com/oksasatya/client-powered/internal/interface/middleware"
)

// PageModule serves the landing and profile pages.
type PageModule struct {
	Handler  *handlers.PageHandler
	Sessions *middleware.SessionAccessor
	Logger   *logrus.Logger
}

func NewPageModule(h *handlers.PageHandler, sessions *middleware.SessionAccessor, logger *logrus.Logger) *PageModule {
	return &PageModule{Handler: h, Sessions: sessions, Logger: logger}
}

func (m *PageModule) Register(root, _ *gin.RouterGroup) {
	root.GET("/", m.Sessions.Optional(), middleware.RedirectIfSession("/profile", m.Logger), m.Handler.Landing)
	root.GET("/profile", m.Sessions.RequirePage("/"), m.Handler.Profile)
	root.POST("/profile/retry", m.Sessions.RequirePage("/"), m.Handler.Retry)
}
