package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func testIdentity() Identity {
	return Identity{
		ID:       "01J0TESTSUBJECT",
		Username: "alice",
		Email:    "a@b.com",
		Role:     RoleCitizen,
	}
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	iss, err := NewIssuer("test-secret", WithTTL(time.Hour))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	want := testIdentity()
	token, expiresAt, err := iss.Issue(want)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", expiresAt)
	}

	got, err := iss.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != want {
		t.Fatalf("identity not preserved: got %+v want %+v", got, want)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	now := time.Now()
	clock := now
	iss, err := NewIssuer("test-secret", WithTTL(time.Minute), WithClock(func() time.Time { return clock }))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	token, _, err := iss.Issue(testIdentity())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock = now.Add(2 * time.Minute)
	if _, err := iss.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	iss, _ := NewIssuer("secret-one")
	other, _ := NewIssuer("secret-two")

	token, _, err := iss.Issue(testIdentity())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := other.Verify(token); !errors.Is(err, ErrTokenSignature) {
		t.Fatalf("expected ErrTokenSignature, got %v", err)
	}
}

func TestVerifyTamperedToken(t *testing.T) {
	iss, _ := NewIssuer("test-secret")
	token, _, err := iss.Issue(testIdentity())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Flip one character in the payload segment.
	parts := strings.Split(token, ".")
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, err := iss.Verify(tampered); err == nil {
		t.Fatal("expected tampered token to fail verification")
	}
}

func TestVerifyMalformedInput(t *testing.T) {
	iss, _ := NewIssuer("test-secret")
	for _, token := range []string{"", "   ", "not-a-token", "a.b"} {
		if _, err := iss.Verify(token); !errors.Is(err, ErrTokenMalformed) {
			t.Fatalf("token %q: expected ErrTokenMalformed, got %v", token, err)
		}
	}
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	iss, _ := NewIssuer("test-secret")
	token, _, err := iss.Issue(Identity{ID: "x", Role: Role("superuser")})
	if err == nil {
		if _, verr := iss.Verify(token); verr == nil {
			t.Fatal("expected issue or verify to reject unknown role")
		}
		return
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	iss, _ := NewIssuer("test-secret")
	if _, _, err := iss.Issue(Identity{Role: RoleCitizen}); err == nil {
		t.Fatal("expected error for identity without id")
	}
}
