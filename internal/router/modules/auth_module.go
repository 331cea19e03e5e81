package modules

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	handlers "github.com/oksasatya/client-powered/internal/interface/http"
	"github.com/oksasatya/client-powered/internal/interface/middleware"
)

// AuthModule routes sign-in, refresh and sign-out.
// Pages: POST /auth/magic-link, POST /auth/otp, GET /verify,
// GET /auth/oauth/:provider, GET /auth/callback/:provider, POST /auth/signout
// API: POST /api/auth/{magic-link,otp,refresh,signout}
type AuthModule struct {
	Handler  *handlers.AuthHandler
	Sessions *middleware.SessionAccessor
	Redis    *redis.Client
}

func NewAuthModule(h *handlers.AuthHandler, sessions *middleware.SessionAccessor, rdb *redis.Client) *AuthModule {
	return &AuthModule{Handler: h, Sessions: sessions, Redis: rdb}
}

func (m *AuthModule) Register(root, api *gin.RouterGroup) {
	// form and API share one budget for sending mail
	magicLimiter := middleware.RateLimit(m.Redis, 5, time.Minute, middleware.KeyByIP("magic"), nil)
	verifyLimiter := middleware.RateLimit(m.Redis, 30, time.Minute, middleware.KeyByIPAndPath(), nil)
	refreshLimiter := middleware.RateLimit(m.Redis, 60, time.Minute, middleware.KeyByIP("refresh"), nil)

	root.POST("/auth/magic-link", magicLimiter, m.Handler.RequestMagicLinkForm)
	root.POST("/auth/otp", verifyLimiter, m.Handler.VerifyOTPForm)
	root.GET("/verify", verifyLimiter, m.Sessions.Optional(), m.Handler.Verify)
	root.GET("/auth/oauth/:provider", m.Handler.OAuthStart)
	root.GET("/auth/callback/:provider", verifyLimiter, m.Handler.OAuthCallback)
	root.POST("/auth/signout", m.Sessions.Optional(), m.Handler.SignOutForm)

	api.POST("/auth/magic-link", magicLimiter, m.Handler.RequestMagicLink)
	api.POST("/auth/otp", verifyLimiter, m.Handler.VerifyOTP)
	api.POST("/auth/refresh", refreshLimiter, m.Handler.Refresh)
	api.POST("/auth/signout", m.Sessions.Require(), m.Handler.SignOut)
}
