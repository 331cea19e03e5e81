package handlers

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/client-powered/internal/domain/entity"
)

//go:embed views/*.html
var viewsFS embed.FS

//go:embed assets/placeholder.svg
var placeholderSVG []byte

// ProfileErrorMessage is rendered when the aggregated profile cannot be
// loaded.
const ProfileErrorMessage = "An error occurred when fetching your profile information."

// MagicLinkSentNotice is shown on the landing page after a link was queued.
const MagicLinkSentNotice = "Check your email for the login link!"

// Templates parses the embedded page templates. The result is meant for
// gin.Engine.SetHTMLTemplate.
func Templates() (*template.Template, error) {
	return template.New("").ParseFS(viewsFS, "views/*.html")
}

// pageData is shared by every page template.
type pageData struct {
	AppName   string
	Notice    string
	Error     string
	Email     string
	Providers []string
	Profile   *entity.Profile
	AvatarURL string
	Refresh   bool
}

// redirectWithFlash sends a 303 to path carrying a one-shot notice or error.
func redirectWithFlash(c *gin.Context, path, key, msg string, extra url.Values) {
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	if msg != "" {
		q.Set(key, msg)
	}
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	c.Redirect(http.StatusSeeOther, path)
}

// Pages renders the HTML views with the fields every page shares.
type Pages struct {
	AppName   string
	Providers []string
}

func (p Pages) render(c *gin.Context, status int, name string, d pageData) {
	d.AppName = p.AppName
	c.HTML(status, name, d)
}

// landing renders the sign-in form. Flash values come from the query string
// unless d already carries them.
func (p Pages) landing(c *gin.Context, status int, d pageData) {
	if d.Notice == "" {
		d.Notice = c.Query("notice")
	}
	if d.Error == "" {
		d.Error = c.Query("error")
	}
	if d.Email == "" {
		d.Email = c.Query("email")
	}
	d.Providers = p.Providers
	p.render(c, status, "landing.html", d)
}
