package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/client-powered/internal/application"
	"github.com/oksasatya/client-powered/internal/interface/middleware"
	"github.com/oksasatya/client-powered/pkg/response"
)

// NoImageMessage is shown when an avatar upload carries no file.
const NoImageMessage = "You must select an image to upload."

var statusByErr = []struct {
	err    error
	status int
	msg    string
}{
	{application.ErrInvalidEmail, http.StatusBadRequest, "invalid email address"},
	{application.ErrNoImage, http.StatusBadRequest, NoImageMessage},
	{application.ErrInvalidAvatarPath, http.StatusBadRequest, "invalid avatar path"},
	{application.ErrInvalidToken, http.StatusUnauthorized, "this sign-in link or code is invalid or has expired"},
	{application.ErrInvalidSession, http.StatusUnauthorized, "session expired, please sign in again"},
	{application.ErrOAuthFailed, http.StatusUnauthorized, "sign-in with the provider failed"},
	{application.ErrForbidden, http.StatusForbidden, "forbidden"},
	{application.ErrUnsupportedProvider, http.StatusNotFound, "unsupported sign-in provider"},
	{application.ErrAvatarNotFound, http.StatusNotFound, "avatar not found"},
	{application.ErrProfileNotFound, http.StatusNotFound, "profile not found"},
	{application.ErrUpdateInFlight, http.StatusConflict, "a profile update is already in progress"},
	{application.ErrAvatarTooLarge, http.StatusRequestEntityTooLarge, "image is too large"},
	{application.ErrNotImage, http.StatusUnsupportedMediaType, "file is not an image"},
}

// statusFor maps an application error to an HTTP status and a message safe to
// show the user. Unknown errors, ErrMultipleRows included, are 500.
func statusFor(err error) (int, string) {
	for _, e := range statusByErr {
		if errors.Is(err, e.err) {
			return e.status, e.msg
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

// writeError sends the error envelope for err, logging server-side failures.
func writeError(c *gin.Context, logger *logrus.Logger, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logFailure(c, logger, err)
	}
	response.Error[any](c, status, msg, nil)
}

func logFailure(c *gin.Context, logger *logrus.Logger, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"request_id": c.GetString("request_id"),
		"path":       c.Request.URL.Path,
		"user_id":    middleware.UserID(c),
	}).Error("request failed")
}

func requestMeta(c *gin.Context) application.RequestMeta {
	ip := c.GetString("real_ip")
	if ip == "" {
		ip = c.ClientIP()
	}
	return application.RequestMeta{IP: ip, UserAgent: c.GetHeader("User-Agent")}
}
