package entity

import "time"

// Identity is the authenticated user as seen by the rest of the app.
type Identity struct {
	UserID string
	Email  string
}

// Session is an issued sign-in. ID rotates on every refresh; tokens bound to
// an older ID are rejected.
type Session struct {
	ID        string
	Identity  Identity
	Name      string
	Avatar    string
	CreatedAt time.Time
}

// TokenPair is the cookie payload handed to the browser after sign-in.
type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}
