package directory

import (
	"context"

	"civreg.org/internal/auth"
)

// ListOptions narrows and pages a directory listing.
type ListOptions struct {
	Roles     []auth.Role
	Active    *bool
	Search    string
	SortBy    string
	SortOrder string
	Page      int
	Limit     int
}

// Pagination describes the page a listing returned.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// Store describes persistence operations required by the directory.
type Store interface {
	Create(ctx context.Context, s *Subject) error
	FindByID(ctx context.Context, id string) (*Subject, error)
	// FindByIdentifier matches either username or email exactly.
	FindByIdentifier(ctx context.Context, usernameOrEmail string) (*Subject, error)
	// FindByUnique returns any subject holding one of the given unique
	// fields; empty arguments are skipped.
	FindByUnique(ctx context.Context, username, email, ssn string) (*Subject, error)
	List(ctx context.Context, opts ListOptions) ([]*Subject, Pagination, error)
	Update(ctx context.Context, s *Subject) error
	Delete(ctx context.Context, id string) error
}
