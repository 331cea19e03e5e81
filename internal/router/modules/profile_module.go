package modules

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	handlers "github.com/oksasatya/client-powered/internal/interface/http"
	"github.com/oksasatya/client-powered/internal/interface/middleware"
)

// ProfileModule routes profile reads, edits, avatar transfer and search.
type ProfileModule struct {
	Profile  *handlers.ProfileHandler
	Avatar   *handlers.AvatarHandler
	Sessions *middleware.SessionAccessor
	Redis    *redis.Client
}

func NewProfileModule(p *handlers.ProfileHandler, a *handlers.AvatarHandler, sessions *middleware.SessionAccessor, rdb *redis.Client) *ProfileModule {
	return &ProfileModule{Profile: p, Avatar: a, Sessions: sessions, Redis: rdb}
}

func (m *ProfileModule) Register(root, api *gin.RouterGroup) {
	root.GET("/assets/placeholder.svg", m.Avatar.Placeholder)

	pages := root.Group("/")
	pages.Use(m.Sessions.RequirePage("/"))
	{
		pages.POST("/profile", m.Profile.UpdateProfileForm)
		pages.POST("/profile/avatar", m.Avatar.UploadForm)
	}

	auth := api.Group("/")
	auth.Use(m.Sessions.Require())
	auth.Use(
		middleware.RateLimit(m.Redis, 300, time.Minute, middleware.KeyByIP("api"), nil),
		middleware.RateLimit(m.Redis, 120, time.Minute, middleware.KeyByUserID(), nil),
	)
	{
		auth.GET("/profile", m.Profile.GetProfile)
		auth.PUT("/profile", m.Profile.UpdateProfile)
		auth.POST("/profile/avatar", m.Avatar.Upload)
		auth.GET("/profiles/search", m.Profile.Search)
		auth.GET("/avatars/*path", m.Avatar.Download)
	}
}
