package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/client-powered/internal/domain/entity"
	"github.com/oksasatya/client-powered/internal/domain/repository"
	"github.com/oksasatya/client-powered/pkg/helpers"
	"github.com/oksasatya/client-powered/pkg/response"
)

const ctxSessionKey = "session"

var (
	errNoSession    = errors.New("missing access token")
	errBadToken     = errors.New("invalid access token")
	errSessionEnded = errors.New("session not found")
)

// SessionAccessor resolves the access cookie into the live session stored
// server side. A token whose sid no longer matches the stored session is
// treated as signed out.
type SessionAccessor struct {
	JWT      *helpers.JWTManager
	Sessions repository.SessionStore
	Logger   *logrus.Logger
}

func NewSessionAccessor(jwt *helpers.JWTManager, sessions repository.SessionStore, logger *logrus.Logger) *SessionAccessor {
	if logger == nil {
		logger = helpers.NopLogger()
	}
	return &SessionAccessor{JWT: jwt, Sessions: sessions, Logger: logger}
}

func (a *SessionAccessor) load(c *gin.Context) (*entity.Session, error) {
	token, err := c.Cookie(helpers.AccessCookie)
	if err != nil || token == "" {
		return nil, errNoSession
	}
	claims, err := a.JWT.ParseAccessToken(token)
	if err != nil {
		return nil, errBadToken
	}
	sess, err := a.Sessions.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			a.Logger.WithError(err).WithField("user_id", claims.UserID).Warn("session lookup failed")
		}
		return nil, errSessionEnded
	}
	if sess.ID != claims.SessionID {
		return nil, errSessionEnded
	}
	return sess, nil
}

// Optional stores the session when there is one and never aborts.
func (a *SessionAccessor) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sess, err := a.load(c); err == nil {
			c.Set(ctxSessionKey, sess)
		}
		c.Next()
	}
}

// Require aborts API requests without a session with 401.
func (a *SessionAccessor) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := a.load(c)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		c.Set(ctxSessionKey, sess)
		c.Next()
	}
}

// RequirePage sends anonymous page visits back to the landing page.
func (a *SessionAccessor) RequirePage(landing string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := a.load(c)
		if err != nil {
			c.Redirect(http.StatusFound, landing)
			c.Abort()
			return
		}
		c.Set(ctxSessionKey, sess)
		c.Next()
	}
}

// SessionFrom returns the session stored by one of the accessors, or nil.
func SessionFrom(c *gin.Context) *entity.Session {
	v, ok := c.Get(ctxSessionKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*entity.Session)
	return sess
}

// UserID is the session's user id or "".
func UserID(c *gin.Context) string {
	if sess := SessionFrom(c); sess != nil {
		return sess.Identity.UserID
	}
	return ""
}
