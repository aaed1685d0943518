package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"civreg.org/internal/auth"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc, err := NewService(store, WithBcryptCost(4))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func registerSubject(t *testing.T, svc *Service, username, email, ssn string) *Subject {
	t.Helper()
	in := validRegisterInput()
	in.Username = username
	in.Email = email
	in.SSN = ssn
	sub, err := svc.Register(context.Background(), in)
	if err != nil {
		t.Fatalf("Register(%s): %v", username, err)
	}
	return sub
}

func TestRegisterCreatesActiveCitizen(t *testing.T) {
	svc, _ := newTestService(t)
	sub := registerSubject(t, svc, "alice", "alice@example.com", "111111111")

	if sub.ID == "" {
		t.Fatal("expected generated id")
	}
	if sub.Role != auth.RoleCitizen {
		t.Fatalf("expected citizen role, got %s", sub.Role)
	}
	if !sub.Active {
		t.Fatal("expected new subject to be active")
	}
	if sub.PasswordHash == "" || sub.PasswordHash == validRegisterInput().Password {
		t.Fatal("expected hashed password")
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	svc, _ := newTestService(t)
	registerSubject(t, svc, "alice", "alice@example.com", "111111111")

	cases := []struct {
		name     string
		username string
		email    string
		ssn      string
	}{
		{"username taken", "alice", "other@example.com", "222222222"},
		{"email taken", "bob", "alice@example.com", "222222222"},
		{"ssn taken", "bob", "other@example.com", "111111111"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), registerInputFor(tc.username, tc.email, tc.ssn))
			if !errors.Is(err, ErrDuplicate) {
				t.Fatalf("expected ErrDuplicate, got %v", err)
			}
		})
	}
}

func registerInputFor(username, email, ssn string) RegisterInput {
	in := validRegisterInput()
	in.Username = username
	in.Email = email
	in.SSN = ssn
	return in
}

func TestRegisterDetectsInactiveDuplicate(t *testing.T) {
	svc, _ := newTestService(t)
	sub := registerSubject(t, svc, "alice", "alice@example.com", "111111111")
	if _, err := svc.ToggleActive(context.Background(), sub.ID); err != nil {
		t.Fatalf("ToggleActive: %v", err)
	}

	_, err := svc.Register(context.Background(), registerInputFor("alice", "alice@example.com", "111111111"))
	if !errors.Is(err, ErrDuplicateInactive) {
		t.Fatalf("expected ErrDuplicateInactive, got %v", err)
	}
}

func TestRegisterValidationFailure(t *testing.T) {
	svc, _ := newTestService(t)
	in := validRegisterInput()
	in.Email = "nope"
	_, err := svc.Register(context.Background(), in)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreateWithExplicitRole(t *testing.T) {
	svc, _ := newTestService(t)
	in := CreateInput{RegisterInput: validRegisterInput(), Role: "Employee"}
	sub, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sub.Role != auth.RoleEmployee {
		t.Fatalf("expected employee role, got %s", sub.Role)
	}

	in.Role = "superuser"
	in.Username = "other"
	in.Email = "other@example.com"
	in.SSN = "999999999"
	_, err = svc.Create(context.Background(), in)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for bad role, got %v", err)
	}
}

func TestAuthenticateFailuresAreIndistinguishable(t *testing.T) {
	svc, _ := newTestService(t)
	sub := registerSubject(t, svc, "alice", "alice@example.com", "111111111")

	cases := []struct {
		name       string
		identifier string
		password   string
		setup      func(t *testing.T)
	}{
		{"unknown identifier", "nobody", "passw0rd!", nil},
		{"wrong password", "alice", "wrongpass1!", nil},
		{"empty password", "alice", "", nil},
		{"inactive subject", "alice", "passw0rd!", func(t *testing.T) {
			if _, err := svc.ToggleActive(context.Background(), sub.ID); err != nil {
				t.Fatalf("ToggleActive: %v", err)
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setup != nil {
				tc.setup(t)
			}
			_, err := svc.Authenticate(context.Background(), tc.identifier, tc.password)
			if !errors.Is(err, auth.ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestAuthenticateByUsernameAndEmail(t *testing.T) {
	svc, _ := newTestService(t)
	registerSubject(t, svc, "alice", "alice@example.com", "111111111")

	for _, id := range []string{"alice", "alice@example.com"} {
		got, err := svc.Authenticate(context.Background(), id, "passw0rd!")
		if err != nil {
			t.Fatalf("Authenticate(%s): %v", id, err)
		}
		if got.Username != "alice" {
			t.Fatalf("unexpected subject %q", got.Username)
		}
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newTestService(t)
	sub := registerSubject(t, svc, "alice", "alice@example.com", "111111111")
	registerSubject(t, svc, "bob", "bob@example.com", "222222222")

	newName := "alicia"
	updated, err := svc.UpdateProfile(context.Background(), sub.ID, UpdateInput{Username: &newName})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.Username != "alicia" {
		t.Fatalf("username not updated: %q", updated.Username)
	}
	if updated.Email != "alice@example.com" {
		t.Fatalf("untouched field changed: %q", updated.Email)
	}

	taken := "bob"
	if _, err := svc.UpdateProfile(context.Background(), sub.ID, UpdateInput{Username: &taken}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Re-submitting an unchanged unique field is not a conflict.
	same := "alice@example.com"
	if _, err := svc.UpdateProfile(context.Background(), sub.ID, UpdateInput{Email: &same}); err != nil {
		t.Fatalf("self-referential unique field: %v", err)
	}

	if _, err := svc.UpdateProfile(context.Background(), sub.ID, UpdateInput{}); err == nil {
		t.Fatal("expected error for empty update")
	}

	if _, err := svc.UpdateProfile(context.Background(), "missing", UpdateInput{Username: &newName}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService(t)
	sub := registerSubject(t, svc, "alice", "alice@example.com", "111111111")

	in := ChangePasswordInput{OldPassword: "passw0rd!", NewPassword: "n3wpass!x"}
	if err := svc.ChangePassword(context.Background(), sub.ID, in); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "alice", "n3wpass!x"); err != nil {
		t.Fatalf("authenticate with new password: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "alice", "passw0rd!"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}

	in = ChangePasswordInput{OldPassword: "wrongpass1!", NewPassword: "an0ther!x"}
	if err := svc.ChangePassword(context.Background(), sub.ID, in); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestToggleActiveAndChangeRole(t *testing.T) {
	svc, _ := newTestService(t)
	sub := registerSubject(t, svc, "alice", "alice@example.com", "111111111")

	off, err := svc.ToggleActive(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("ToggleActive: %v", err)
	}
	if off.Active {
		t.Fatal("expected subject deactivated")
	}
	on, err := svc.ToggleActive(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("ToggleActive: %v", err)
	}
	if !on.Active {
		t.Fatal("expected subject reactivated")
	}

	promoted, err := svc.ChangeRole(context.Background(), sub.ID, "employee")
	if err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	if promoted.Role != auth.RoleEmployee {
		t.Fatalf("expected employee, got %s", promoted.Role)
	}
	if _, err := svc.ChangeRole(context.Background(), sub.ID, "wizard"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestDelete(t *testing.T) {
	svc, _ := newTestService(t)
	sub := registerSubject(t, svc, "alice", "alice@example.com", "111111111")

	if err := svc.Delete(context.Background(), sub.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), sub.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := svc.Delete(context.Background(), sub.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListFilterSortPaginate(t *testing.T) {
	store := NewMemoryStore()
	svc, err := NewService(store, WithBcryptCost(4))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := []struct {
		username string
		role     auth.Role
		active   bool
	}{
		{"carol", auth.RoleCitizen, true},
		{"alice", auth.RoleCitizen, true},
		{"bob", auth.RoleEmployee, true},
		{"dave", auth.RoleCitizen, false},
	}
	for i, s := range seed {
		sub := &Subject{
			ID:        s.username,
			Username:  s.username,
			Email:     s.username + "@example.com",
			Role:      s.role,
			Active:    s.active,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			UpdatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.Create(context.Background(), sub); err != nil {
			t.Fatalf("seed %s: %v", s.username, err)
		}
	}

	subs, page, err := svc.List(context.Background(), ListOptions{
		Roles:     []auth.Role{auth.RoleCitizen},
		SortBy:    "username",
		SortOrder: "asc",
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("expected 3 citizens, got %d", page.Total)
	}
	got := make([]string, 0, len(subs))
	for _, s := range subs {
		got = append(got, s.Username)
	}
	want := []string{"alice", "carol", "dave"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sort order mismatch: got %v want %v", got, want)
		}
	}

	active := true
	subs, page, err = svc.List(context.Background(), ListOptions{Active: &active, Limit: 2, Page: 2, SortBy: "username", SortOrder: "asc"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 3 || page.Pages != 2 {
		t.Fatalf("unexpected pagination: %+v", page)
	}
	if len(subs) != 1 || subs[0].Username != "carol" {
		t.Fatalf("unexpected second page: %+v", subs)
	}

	subs, _, err = svc.List(context.Background(), ListOptions{Search: "ALI"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(subs) != 1 || subs[0].Username != "alice" {
		t.Fatalf("search mismatch: %+v", subs)
	}
}
