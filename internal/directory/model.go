package directory

import (
	"errors"
	"time"

	"civreg.org/internal/auth"
)

var (
	ErrNotFound          = errors.New("directory: subject not found")
	ErrDuplicate         = errors.New("directory: username, email or SSN already in use")
	ErrDuplicateInactive = errors.New("directory: an inactive account already uses this username, email or SSN")
)

// Address is the postal address block carried by every subject.
type Address struct {
	City     string `json:"city"`
	Street   string `json:"street"`
	Number   string `json:"number"`
	Postcode string `json:"postcode"`
}

// Subject is a user record in the directory. The password hash never
// serializes; SSN is stripped from list responses via Redacted.
type Subject struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         auth.Role `json:"role"`
	Firstname    string    `json:"firstname"`
	Lastname     string    `json:"lastname"`
	PhoneNumber  string    `json:"phoneNumber"`
	Address      Address   `json:"address"`
	SSN          string    `json:"ssn,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity derives the ephemeral token identity from the stored record.
func (s *Subject) Identity() auth.Identity {
	return auth.Identity{
		ID:       s.ID,
		Username: s.Username,
		Email:    s.Email,
		Role:     s.Role,
	}
}

// Redacted returns a copy safe for listings: no SSN.
func (s *Subject) Redacted() *Subject {
	out := *s
	out.SSN = ""
	return &out
}
