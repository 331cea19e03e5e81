package modules

import (
	"expvar"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/client-powered/internal/interface/middleware"
	"github.com/oksasatya/client-powered/internal/metrics"
)

// DebugModule exposes expvar and Prometheus metrics to private networks.
type DebugModule struct {
	Redis    *redis.Client
	Gatherer prometheus.Gatherer // nil skips /metrics
}

func NewDebugModule(rdb *redis.Client, gatherer prometheus.Gatherer) *DebugModule {
	return &DebugModule{Redis: rdb, Gatherer: gatherer}
}

func (m *DebugModule) Register(root, api *gin.RouterGroup) {
	private := middleware.OnlyIf(middleware.AllowPrivateIP())
	rl := middleware.RateLimit(m.Redis, 120, time.Minute, middleware.KeyByIP("debug"), nil)
	api.GET("/debug/vars", private, rl, gin.WrapH(expvar.Handler()))
	if m.Gatherer != nil {
		root.GET("/metrics", private, gin.WrapH(metrics.Handler(m.Gatherer)))
	}
}
