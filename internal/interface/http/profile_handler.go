package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/client-powered/internal/application"
	"github.com/oksasatya/client-powered/internal/application/profilestate"
	"github.com/oksasatya/client-powered/internal/domain/entity"
	"github.com/oksasatya/client-powered/internal/interface/middleware"
	"github.com/oksasatya/client-powered/pkg/response"
	"github.com/oksasatya/client-powered/pkg/validation"
)

// ProfileTracker feeds the request's session into its tracker and waits up
// to Wait for a running fetch before returning the snapshot.
type ProfileTracker struct {
	Registry *profilestate.Registry
	Wait     time.Duration
}

func (t ProfileTracker) snapshot(c *gin.Context) profilestate.State {
	sess := middleware.SessionFrom(c)
	if sess == nil {
		return profilestate.State{Phase: profilestate.Idle}
	}
	tr := t.Registry.For(sess.ID)
	tr.Observe(&sess.Identity)

	ctx, cancel := context.WithTimeout(c.Request.Context(), t.Wait)
	defer cancel()
	// on timeout the snapshot is still Fetching
	_ = tr.Wait(ctx)
	return tr.Snapshot()
}

type ProfileHandler struct {
	Svc     *application.ProfileService
	Tracker ProfileTracker
	Logger  *logrus.Logger
}

func NewProfileHandler(svc *application.ProfileService, trackers *profilestate.Registry, wait time.Duration, logger *logrus.Logger) *ProfileHandler {
	return &ProfileHandler{Svc: svc, Tracker: ProfileTracker{Registry: trackers, Wait: wait}, Logger: logger}
}

type fetchErrorView struct {
	Context string `json:"context"`
	Error   string `json:"error"`
}

type authView struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type profileView struct {
	entity.Profile
	AvatarURL string `json:"avatar_url,omitempty"`
}

// snapshotView is the JSON shape of a tracker state. Error is null until a
// fetch has failed for the current identity.
type snapshotView struct {
	Profile  *profileView     `json:"profile"`
	Fetching bool             `json:"fetching"`
	Error    []fetchErrorView `json:"error"`
	Auth     *authView        `json:"auth"`
	Phase    string           `json:"phase"`
}

func toSnapshotView(st profilestate.State) snapshotView {
	v := snapshotView{Fetching: st.Fetching, Phase: st.Phase.String()}
	if st.Profile != nil {
		v.Profile = &profileView{Profile: *st.Profile, AvatarURL: application.AvatarURL(st.Profile.AvatarPath())}
	}
	if st.Auth != nil {
		v.Auth = &authView{UserID: st.Auth.UserID, Email: st.Auth.Email}
	}
	for _, e := range st.Errors {
		v.Error = append(v.Error, fetchErrorView{Context: e.Context, Error: e.Err.Error()})
	}
	return v
}

type updateProfileRequest struct {
	Name   string `json:"name" form:"name" binding:"omitempty,displayname"`
	Avatar string `json:"avatar" form:"avatar" binding:"omitempty,objectpath"`
}

type publicProfileView struct {
	ID        string  `json:"id"`
	Name      *string `json:"name"`
	Avatar    *string `json:"avatar"`
	AvatarURL string  `json:"avatar_url,omitempty"`
}

// GetProfile GET /api/profile
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	st := h.Tracker.snapshot(c)
	response.Success(c, http.StatusOK, toSnapshotView(st), "profile", nil)
}

// UpdateProfile PUT /api/profile
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	p, err := h.Svc.UpdateProfile(c.Request.Context(), middleware.SessionFrom(c), application.UpdateProfileInput{Name: req.Name, Avatar: req.Avatar})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, publicProfileView{
		ID:        p.ID,
		Name:      p.Name,
		Avatar:    p.Avatar,
		AvatarURL: application.AvatarURL(valueOf(p.Avatar)),
	}, "profile updated", nil)
}

// UpdateProfileForm POST /profile
func (h *ProfileHandler) UpdateProfileForm(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBind(&req); err != nil {
		redirectWithFlash(c, "/profile", "error", "Name must be at most 120 characters long.", nil)
		return
	}
	_, err := h.Svc.UpdateProfile(c.Request.Context(), middleware.SessionFrom(c), application.UpdateProfileInput{Name: req.Name, Avatar: req.Avatar})
	if err != nil {
		status, msg := statusFor(err)
		if status >= http.StatusInternalServerError {
			logFailure(c, h.Logger, err)
		}
		redirectWithFlash(c, "/profile", "error", msg, nil)
		return
	}
	redirectWithFlash(c, "/profile", "notice", "Profile updated.", nil)
}

// Search GET /api/profiles/search?q=&size=
func (h *ProfileHandler) Search(c *gin.Context) {
	size, _ := strconv.Atoi(c.Query("size"))
	hits, err := h.Svc.SearchProfiles(c.Request.Context(), middleware.SessionFrom(c), c.Query("q"), size)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, hits, "search results", map[string]any{"count": len(hits)})
}

func valueOf(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
