package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/client-powered/internal/application"
	"github.com/oksasatya/client-powered/internal/interface/middleware"
	"github.com/oksasatya/client-powered/pkg/helpers"
	"github.com/oksasatya/client-powered/pkg/response"
	"github.com/oksasatya/client-powered/pkg/validation"
)

// AuthHandler serves sign-in, token refresh and sign-out for both the JSON
// API and the HTML forms.
type AuthHandler struct {
	Svc     *application.AuthService
	Cookies *helpers.Manager
	Logger  *logrus.Logger
	Pages   Pages
	// AfterSignIn is where page flows land once a session exists.
	AfterSignIn string
}

func NewAuthHandler(svc *application.AuthService, cookies *helpers.Manager, logger *logrus.Logger, appName string) *AuthHandler {
	return &AuthHandler{
		Svc:         svc,
		Cookies:     cookies,
		Logger:      logger,
		Pages:       Pages{AppName: appName, Providers: svc.ProviderNames()},
		AfterSignIn: "/profile",
	}
}

type magicLinkRequest struct {
	Email string `json:"email" form:"email" binding:"required,email"`
}

type otpRequest struct {
	Email string `json:"email" form:"email" binding:"required,email"`
	Code  string `json:"code" form:"code" binding:"required,otp"`
}

type signInResponse struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Created bool   `json:"created"`
}

func (h *AuthHandler) signedIn(c *gin.Context, res *application.SignIn, message string) {
	h.Cookies.SetPair(c, res.Tokens)
	response.Success(c, http.StatusOK, signInResponse{
		UserID:  res.Session.Identity.UserID,
		Email:   res.Session.Identity.Email,
		Created: res.Created,
	}, message, map[string]any{
		"access_expires_at":  res.Tokens.AccessTokenExpiry,
		"refresh_expires_at": res.Tokens.RefreshTokenExpiry,
	})
}

// pageSignedIn sets the cookies and sends the browser on to the profile.
func (h *AuthHandler) pageSignedIn(c *gin.Context, res *application.SignIn) {
	h.Cookies.SetPair(c, res.Tokens)
	c.Redirect(http.StatusFound, h.AfterSignIn)
}

// pageFailed re-renders the sign-in form with the error.
func (h *AuthHandler) pageFailed(c *gin.Context, err error, email string) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logFailure(c, h.Logger, err)
	}
	h.Pages.landing(c, status, pageData{Error: msg, Email: email})
}

// RequestMagicLink POST /api/auth/magic-link
func (h *AuthHandler) RequestMagicLink(c *gin.Context) {
	var req magicLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	if err := h.Svc.SendMagicLink(c.Request.Context(), req.Email, requestMeta(c)); err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success[any](c, http.StatusAccepted, gin.H{"sent": true}, MagicLinkSentNotice, nil)
}

// RequestMagicLinkForm POST /auth/magic-link
func (h *AuthHandler) RequestMagicLinkForm(c *gin.Context) {
	var req magicLinkRequest
	if err := c.ShouldBind(&req); err != nil {
		redirectWithFlash(c, "/", "error", "Please enter a valid e-mail address.", nil)
		return
	}
	if err := h.Svc.SendMagicLink(c.Request.Context(), req.Email, requestMeta(c)); err != nil {
		status, msg := statusFor(err)
		if status >= http.StatusInternalServerError {
			logFailure(c, h.Logger, err)
		}
		redirectWithFlash(c, "/", "error", msg, nil)
		return
	}
	redirectWithFlash(c, "/", "notice", MagicLinkSentNotice, url.Values{"email": {req.Email}})
}

// VerifyOTP POST /api/auth/otp
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	res, err := h.Svc.VerifyOTP(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	h.signedIn(c, res, "signed in")
}

// VerifyOTPForm POST /auth/otp
func (h *AuthHandler) VerifyOTPForm(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBind(&req); err != nil {
		h.Pages.landing(c, http.StatusBadRequest, pageData{Error: "Enter the 6 digit code from the e-mail.", Email: req.Email})
		return
	}
	res, err := h.Svc.VerifyOTP(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		h.pageFailed(c, err, req.Email)
		return
	}
	h.pageSignedIn(c, res)
}

// Verify GET /verify?token=
// The magic link lands here. Without a token the page only says so.
func (h *AuthHandler) Verify(c *gin.Context) {
	token := c.Query("token")
	h.Logger.WithFields(logrus.Fields{
		"request_id": c.GetString("request_id"),
		"has_token":  token != "",
		"session":    middleware.SessionFrom(c) != nil,
	}).Info("verify page")

	if token == "" {
		h.Pages.render(c, http.StatusOK, "verify.html", pageData{})
		return
	}
	res, err := h.Svc.VerifyMagicLink(c.Request.Context(), token)
	if err != nil {
		h.pageFailed(c, err, "")
		return
	}
	h.pageSignedIn(c, res)
}

// OAuthStart GET /auth/oauth/:provider
func (h *AuthHandler) OAuthStart(c *gin.Context) {
	target, err := h.Svc.OAuthLoginURL(c.Request.Context(), c.Param("provider"))
	if err != nil {
		h.pageFailed(c, err, "")
		return
	}
	c.Redirect(http.StatusFound, target)
}

// OAuthCallback GET /auth/callback/:provider
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	if e := c.Query("error"); e != "" {
		h.Logger.WithFields(logrus.Fields{"provider": c.Param("provider"), "error": e}).Info("oauth sign-in declined")
		h.pageFailed(c, application.ErrOAuthFailed, "")
		return
	}
	res, err := h.Svc.OAuthCallback(c.Request.Context(), c.Param("provider"), c.Query("state"), c.Query("code"))
	if err != nil {
		if errors.Is(err, application.ErrOAuthFailed) {
			h.Logger.WithError(err).WithField("provider", c.Param("provider")).Warn("oauth exchange failed")
		}
		h.pageFailed(c, err, "")
		return
	}
	h.pageSignedIn(c, res)
}

// Refresh POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	refresh, err := c.Cookie(helpers.RefreshCookie)
	if err != nil || refresh == "" {
		response.Error[any](c, http.StatusUnauthorized, "missing refresh token", nil)
		return
	}
	res, err := h.Svc.Refresh(c.Request.Context(), refresh)
	if err != nil {
		h.Cookies.Clear(c)
		writeError(c, h.Logger, err)
		return
	}
	h.signedIn(c, res, "token refreshed")
}

// SignOut POST /api/auth/signout
func (h *AuthHandler) SignOut(c *gin.Context) {
	if err := h.Svc.SignOut(c.Request.Context(), middleware.SessionFrom(c)); err != nil {
		writeError(c, h.Logger, err)
		return
	}
	h.Cookies.Clear(c)
	response.Success[any](c, http.StatusOK, gin.H{"signed_out": true}, "signed out", nil)
}

// SignOutForm POST /auth/signout
func (h *AuthHandler) SignOutForm(c *gin.Context) {
	if err := h.Svc.SignOut(c.Request.Context(), middleware.SessionFrom(c)); err != nil {
		logFailure(c, h.Logger, err)
	}
	h.Cookies.Clear(c)
	c.Redirect(http.StatusSeeOther, "/")
}
