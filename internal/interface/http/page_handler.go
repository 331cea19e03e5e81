package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/client-powered/internal/application"
	"github.com/oksasatya/client-powered/internal/application/profilestate"
	"github.com/oksasatya/client-powered/internal/interface/middleware"
)

// PageHandler renders the landing and profile pages.
type PageHandler struct {
	Pages   Pages
	Tracker ProfileTracker
	Logger  *logrus.Logger
}

func NewPageHandler(pages Pages, tracker ProfileTracker, logger *logrus.Logger) *PageHandler {
	return &PageHandler{Pages: pages, Tracker: tracker, Logger: logger}
}

// Landing GET /
func (h *PageHandler) Landing(c *gin.Context) {
	h.Pages.landing(c, http.StatusOK, pageData{})
}

// Profile GET /profile
// A profile already on screen stays visible while a refresh runs.
func (h *PageHandler) Profile(c *gin.Context) {
	st := h.Tracker.snapshot(c)
	d := pageData{Notice: c.Query("notice"), Error: c.Query("error")}

	switch {
	case st.Profile != nil:
		d.Profile = st.Profile
		d.AvatarURL = application.AvatarURL(st.Profile.AvatarPath())
		h.Pages.render(c, http.StatusOK, "profile.html", d)
	case st.Fetching:
		h.Pages.render(c, http.StatusOK, "loading.html", pageData{Refresh: true})
	case st.Phase == profilestate.Failed:
		h.Logger.WithFields(logrus.Fields{
			"user_id": st.Auth.UserID,
			"errors":  len(st.Errors),
		}).Warn("profile page rendered without profile")
		h.Pages.render(c, http.StatusInternalServerError, "error.html", pageData{Error: ProfileErrorMessage})
	default:
		// Idle: the session disappeared between the guard and here
		c.Redirect(http.StatusFound, "/")
	}
}

// Retry POST /profile/retry re-runs the profile fetch for the session.
func (h *PageHandler) Retry(c *gin.Context) {
	if sess := middleware.SessionFrom(c); sess != nil {
		h.Tracker.Registry.For(sess.ID).Refresh()
	}
	c.Redirect(http.StatusSeeOther, "/profile")
}
