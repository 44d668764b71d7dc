package user

import (
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("user not found")

// Profile is what inboxes and job pages show about a user. Email is only
// returned to its owner.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	PhotoURL  string    `json:"photo_url,omitempty"`
	Rating    *float64  `json:"rating,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Public strips fields other users must not see.
func (p Profile) Public() Profile {
	p.Email = ""
	return p
}

// UpdateRequest is a partial profile update; empty fields are left as they are.
type UpdateRequest struct {
	Name     string `json:"name" validate:"max=80"`
	Email    string `json:"email" validate:"omitempty,email"`
	PhotoURL string `json:"photo_url" validate:"omitempty,http_url"`
}

// Normalize trims every field and lowercases the email. Call it before
// validating.
func (r *UpdateRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.PhotoURL = strings.TrimSpace(r.PhotoURL)
}

// apply merges r into p, keeping p's values for empty fields.
func (r UpdateRequest) apply(p Profile) Profile {
	if r.Name != "" {
		p.Name = r.Name
	}
	if r.Email != "" {
		p.Email = r.Email
	}
	if r.PhotoURL != "" {
		p.PhotoURL = r.PhotoURL
	}
	return p
}
