package entity

import "time"

// PublicProfile is the user-editable row of the profiles table.
// Name and Avatar are nil until the user sets them.
type PublicProfile struct {
	ID        string    `json:"id"`
	Name      *string   `json:"name,omitempty"`
	Avatar    *string   `json:"avatar,omitempty"`
	UpdatedAt time.Time `json:"-"`
}

// PrivateProfile is the profiles_private row. It is written only when the
// account is created.
type PrivateProfile struct {
	ID    string  `json:"id"`
	Admin bool    `json:"admin"`
	Email string  `json:"email"`
	Phone *string `json:"phone,omitempty"`
}

// Profile is the field union of a user's public and private rows.
type Profile struct {
	ID     string  `json:"id"`
	Name   *string `json:"name,omitempty"`
	Avatar *string `json:"avatar,omitempty"`
	Admin  bool    `json:"admin"`
	Email  string  `json:"email"`
	Phone  *string `json:"phone,omitempty"`
}

// MergeProfile combines both halves of a profile. Private fields win where the
// two overlap, which today is only the id.
func MergeProfile(pub PublicProfile, priv PrivateProfile) Profile {
	p := Profile{
		ID:     pub.ID,
		Name:   pub.Name,
		Avatar: pub.Avatar,
	}
	p.ID = priv.ID
	p.Admin = priv.Admin
	p.Email = priv.Email
	p.Phone = priv.Phone
	return p
}

// DisplayName returns the name or an empty string.
func (p Profile) DisplayName() string {
	if p.Name == nil {
		return ""
	}
	return *p.Name
}

// AvatarPath returns the stored avatar path or an empty string.
func (p Profile) AvatarPath() string {
	if p.Avatar == nil {
		return ""
	}
	return *p.Avatar
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
