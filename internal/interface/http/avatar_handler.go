package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/client-powered/internal/application"
	"github.com/oksasatya/client-powered/internal/interface/middleware"
	"github.com/oksasatya/client-powered/pkg/response"
)

// multipart framing allowed on top of the image itself
const formOverhead = 1 << 20

type AvatarHandler struct {
	Svc    *application.ProfileService
	Logger *logrus.Logger
}

func NewAvatarHandler(svc *application.ProfileService, logger *logrus.Logger) *AvatarHandler {
	return &AvatarHandler{Svc: svc, Logger: logger}
}

type uploadResponse struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// upload reads the "avatar" form file and hands it to the service.
func (h *AvatarHandler) upload(c *gin.Context) (string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.Svc.AvatarMaxBytes+formOverhead)
	fh, err := c.FormFile("avatar")
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig), strings.Contains(err.Error(), "request body too large"):
			return "", application.ErrAvatarTooLarge
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			return "", application.ErrNoImage
		}
		return "", err
	}
	if fh.Size == 0 {
		return "", application.ErrNoImage
	}
	if fh.Size > h.Svc.AvatarMaxBytes {
		return "", application.ErrAvatarTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	ct, r, err := sniffContentType(f)
	if err != nil {
		return "", err
	}
	return h.Svc.UploadAvatar(c.Request.Context(), middleware.SessionFrom(c), fh.Filename, ct, r)
}

// sniffContentType detects the type from the first 512 bytes; the declared
// part header is ignored. The returned reader yields the whole file.
func sniffContentType(f io.Reader) (string, io.Reader, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, err
	}
	head = head[:n]
	return http.DetectContentType(head), io.MultiReader(bytes.NewReader(head), f), nil
}

// Upload POST /api/profile/avatar
func (h *AvatarHandler) Upload(c *gin.Context) {
	path, err := h.upload(c)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusCreated, uploadResponse{Path: path, URL: application.AvatarURL(path)}, "avatar uploaded", nil)
}

// UploadForm POST /profile/avatar
func (h *AvatarHandler) UploadForm(c *gin.Context) {
	if _, err := h.upload(c); err != nil {
		status, msg := statusFor(err)
		if status >= http.StatusInternalServerError {
			logFailure(c, h.Logger, err)
		}
		redirectWithFlash(c, "/profile", "error", msg, nil)
		return
	}
	redirectWithFlash(c, "/profile", "notice", "Avatar updated.", nil)
}

// Download GET /api/avatars/*path
// Any failure serves the placeholder with 404 so the image stays in its
// empty state.
func (h *AvatarHandler) Download(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("path"), "/")
	c.Header("Cache-Control", "no-cache")

	b, ct, err := h.Svc.DownloadAvatar(c.Request.Context(), path)
	if err != nil {
		h.Logger.WithError(err).WithFields(logrus.Fields{
			"path":    path,
			"user_id": middleware.UserID(c),
		}).Warn("error downloading image")
		c.Data(http.StatusNotFound, "image/svg+xml", placeholderSVG)
		return
	}
	if !application.AvatarType(ct) {
		ct = http.DetectContentType(b)
	}
	if !application.AvatarType(ct) {
		ct = "application/octet-stream"
	}
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Content-Security-Policy", "default-src 'none'; sandbox")
	c.Data(http.StatusOK, ct, b)
}

// Placeholder GET /assets/placeholder.svg
func (h *AvatarHandler) Placeholder(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, "image/svg+xml", placeholderSVG)
}
