package templates

import (
	"context"
	"strings"
	"time"
)

// Option pattern
type Option func(*EmailData)

func WithIP(ip string) Option        { return func(d *EmailData) { d.IP = ip } }
func WithUserAgent(ua string) Option { return func(d *EmailData) { d.UserAgent = ua } }
func WithTime(t time.Time) Option {
	return func(d *EmailData) { d.Time = t.UTC().Format("02 January 2006, 15:04") }
}

func WithExpiresIn(dur time.Duration) Option {
	return func(d *EmailData) {
		utc := time.Now().Add(dur).UTC()
		d.ExpiresAt = utc
		d.ExpiresAtText = utc.Format("02 January 2006, 15:04")
	}
}

func WithGeoFromIP(ctx context.Context, r GeoResolver, ip string) Option {
	return func(d *EmailData) {
		if r == nil || strings.TrimSpace(ip) == "" {
			return
		}
		if g, err := r.Lookup(ctx, ip); err == nil {
			if loc := FormatGeo(g); loc != "" {
				d.Location = loc
			}
		}
	}
}

// Brand carries the sender-side fields every email shows.
type Brand struct {
	AppName     string
	CompanyName string
	SupportURL  string
}

// NewMagicLinkData builds the data for a sign-in email carrying both the
// link and the one-time code.
func NewMagicLinkData(b Brand, email, link, code string, opts ...Option) map[string]any {
	d := EmailData{
		Email:       email,
		AppName:     b.AppName,
		CompanyName: b.CompanyName,
		SupportURL:  b.SupportURL,
		LinkURL:     link,
		Code:        code,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return ToMap(d)
}
