package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RedirectIfSession forwards requests that carry a session to target with a
// single 302. Requests without one pass through. Run it after Optional.
func RedirectIfSession(target string, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if SessionFrom(c) == nil {
			c.Next()
			return
		}
		if c.Writer.Written() {
			if logger != nil {
				logger.WithField("path", c.Request.URL.Path).Warn("redirect skipped: response already written")
			}
			c.Abort()
			return
		}
		c.Redirect(http.StatusFound, target)
		c.Abort()
	}
}
