package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"civreg.org/internal/auth"
	"civreg.org/internal/ids"
)

// Service owns directory business rules: uniqueness across username,
// email and SSN, credential handling, and record lifecycle.
type Service struct {
	store      Store
	bcryptCost int
	now        func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) {
		if cost > 0 {
			s.bcryptCost = cost
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service over the given store.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("directory store is required")
	}
	svc := &Service{
		store:      store,
		bcryptCost: 12,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register creates an active citizen subject from public registration.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Subject, error) {
	return s.create(ctx, in, auth.RoleCitizen)
}

// Create creates a subject with an explicit role. Whether the caller may
// assign that role is the authorization policy's decision, made upstream.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Subject, error) {
	role, err := auth.ParseRole(in.Role)
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "role", Message: "role must be one of admin, employee, citizen"}}}
	}
	return s.create(ctx, in.RegisterInput, role)
}

func (s *Service) create(ctx context.Context, in RegisterInput, role auth.Role) (*Subject, error) {
	if fields := in.Validate(); len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	existing, err := s.store.FindByUnique(ctx, in.Username, in.Email, in.SSN)
	if err != nil && err != ErrNotFound {
		return nil, err
	}
	if existing != nil {
		if !existing.Active {
			return nil, ErrDuplicateInactive
		}
		return nil, ErrDuplicate
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	subject := &Subject{
		ID:           ids.New(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
		Firstname:    in.Firstname,
		Lastname:     in.Lastname,
		PhoneNumber:  in.PhoneNumber,
		Address:      Address(in.Address),
		SSN:          in.SSN,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, subject); err != nil {
		return nil, err
	}
	return subject, nil
}

// Authenticate resolves the subject for a login attempt. Every failure
// path collapses to ErrInvalidCredentials so responses never reveal which
// part was wrong.
func (s *Service) Authenticate(ctx context.Context, usernameOrEmail, password string) (*Subject, error) {
	usernameOrEmail = strings.TrimSpace(usernameOrEmail)
	if usernameOrEmail == "" || password == "" {
		return nil, auth.ErrInvalidCredentials
	}
	subject, err := s.store.FindByIdentifier(ctx, usernameOrEmail)
	if err != nil {
		if err == ErrNotFound {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, err
	}
	if !subject.Active {
		return nil, auth.ErrInvalidCredentials
	}
	if !auth.VerifyPassword(subject.PasswordHash, password) {
		return nil, auth.ErrInvalidCredentials
	}
	return subject, nil
}

// Get returns one subject by id.
func (s *Service) Get(ctx context.Context, id string) (*Subject, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	return s.store.FindByID(ctx, id)
}

// List returns a page of subjects.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]*Subject, Pagination, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 || opts.Limit > 100 {
		opts.Limit = 10
	}
	return s.store.List(ctx, opts)
}

// UpdateProfile applies a partial update, enforcing uniqueness for any
// changed unique field.
func (s *Service) UpdateProfile(ctx context.Context, id string, in UpdateInput) (*Subject, error) {
	if in.Empty() {
		return nil, &ValidationError{Fields: []FieldError{{Field: "body", Message: "no updatable fields provided"}}}
	}
	if fields := in.Validate(); len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	subject, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Username != nil || in.Email != nil || in.SSN != nil {
		existing, err := s.store.FindByUnique(ctx, deref(in.Username), deref(in.Email), deref(in.SSN))
		if err != nil && err != ErrNotFound {
			return nil, err
		}
		if existing != nil && existing.ID != subject.ID {
			return nil, ErrDuplicate
		}
	}

	if in.Username != nil {
		subject.Username = *in.Username
	}
	if in.Email != nil {
		subject.Email = *in.Email
	}
	if in.Firstname != nil {
		subject.Firstname = *in.Firstname
	}
	if in.Lastname != nil {
		subject.Lastname = *in.Lastname
	}
	if in.PhoneNumber != nil {
		subject.PhoneNumber = *in.PhoneNumber
	}
	if in.Address != nil {
		subject.Address = Address(*in.Address)
	}
	if in.SSN != nil {
		subject.SSN = *in.SSN
	}
	subject.UpdatedAt = s.now().UTC()

	if err := s.store.Update(ctx, subject); err != nil {
		return nil, err
	}
	return subject, nil
}

// ChangePassword rotates a subject's credential after verifying the old one.
func (s *Service) ChangePassword(ctx context.Context, id string, in ChangePasswordInput) error {
	if fields := in.Validate(); len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	subject, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !auth.VerifyPassword(subject.PasswordHash, in.OldPassword) {
		return auth.ErrInvalidCredentials
	}
	hash, err := auth.HashPassword(in.NewPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	subject.PasswordHash = hash
	subject.UpdatedAt = s.now().UTC()
	return s.store.Update(ctx, subject)
}

// ToggleActive flips the subject's active flag.
func (s *Service) ToggleActive(ctx context.Context, id string) (*Subject, error) {
	subject, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	subject.Active = !subject.Active
	subject.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, subject); err != nil {
		return nil, err
	}
	return subject, nil
}

// ChangeRole assigns a new role to the subject.
func (s *Service) ChangeRole(ctx context.Context, id string, rawRole string) (*Subject, error) {
	role, err := auth.ParseRole(rawRole)
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "role", Message: "role must be one of admin, employee, citizen"}}}
	}
	subject, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	subject.Role = role
	subject.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, subject); err != nil {
		return nil, err
	}
	return subject, nil
}

// Delete removes the subject and its credential together.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNotFound
	}
	return s.store.Delete(ctx, id)
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
