package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"civreg.org/internal/auth"
)

func TestSessionMissingToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get("/api/users/me", nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate challenge")
	}
}

func TestSessionInvalidToken(t *testing.T) {
	env := newTestEnv(t)

	for _, token := range []string{"garbage", "a.b.c"} {
		resp := env.get("/api/users/me", nil, token)
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("token %q: expected 403, got %d", token, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestSessionTamperedToken(t *testing.T) {
	env := newTestEnv(t)
	sub := env.seed("alice", auth.RoleCitizen)

	other, err := auth.NewIssuer("different-secret")
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	forged, _, err := other.Issue(sub.Identity())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	resp := env.get("/api/users/me", nil, forged)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong signature, got %d", resp.StatusCode)
	}
}

func TestSessionExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	sub := env.seed("alice", auth.RoleCitizen)

	past := time.Now().Add(-2 * time.Hour)
	backdated, err := auth.NewIssuer("test-secret",
		auth.WithTTL(time.Hour),
		auth.WithClock(func() time.Time { return past }))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	expired, _, err := backdated.Issue(sub.Identity())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	resp := env.get("/api/users/me", nil, expired)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for expired token, got %d", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["error"] != "token expired" {
		t.Fatalf("unexpected error: %v", body["error"])
	}
}

func TestSessionDeactivatedSubject(t *testing.T) {
	env := newTestEnv(t)
	sub := env.seed("alice", auth.RoleCitizen)
	token := env.tokenFor(sub)

	resp := env.get("/api/users/me", nil, token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 before deactivation, got %d", resp.StatusCode)
	}

	if _, err := env.svc.ToggleActive(context.Background(), sub.ID); err != nil {
		t.Fatalf("ToggleActive: %v", err)
	}

	// The token is still cryptographically valid but the subject is not.
	resp = env.get("/api/users/me", nil, token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after deactivation, got %d", resp.StatusCode)
	}
}

func TestSessionDeletedSubject(t *testing.T) {
	env := newTestEnv(t)
	sub := env.seed("alice", auth.RoleCitizen)
	token := env.tokenFor(sub)

	if err := env.svc.Delete(context.Background(), sub.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	resp := env.get("/api/users/me", nil, token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after delete, got %d", resp.StatusCode)
	}
}

func TestSessionCookiePreferredOverHeader(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seed("alice", auth.RoleCitizen)
	cookieToken := env.tokenFor(alice)

	req, err := http.NewRequest(http.MethodGet, env.base+"/api/users/me", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: "token", Value: cookieToken})
	req.Header.Set("Authorization", "Bearer not-a-valid-token")

	resp, err := env.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cookie should win over header, got %d", resp.StatusCode)
	}

	var body map[string]any
	decodeBody(t, resp, &body)
	if body["username"] != "alice" {
		t.Fatalf("unexpected identity: %v", body["username"])
	}
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	gate := RequireRole(auth.RoleAdmin, auth.RoleEmployee)(next)

	cases := []struct {
		name     string
		identity *auth.Identity
		status   int
	}{
		{"no identity", nil, http.StatusUnauthorized},
		{"admin", &auth.Identity{ID: "a", Role: auth.RoleAdmin}, http.StatusOK},
		{"employee", &auth.Identity{ID: "e", Role: auth.RoleEmployee}, http.StatusOK},
		{"citizen", &auth.Identity{ID: "c", Role: auth.RoleCitizen}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/gated", nil)
			if tc.identity != nil {
				req = req.WithContext(auth.ContextWithIdentity(req.Context(), *tc.identity))
			}
			rr := httptest.NewRecorder()
			gate.ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestSessionRoleChangeTakesEffectImmediately(t *testing.T) {
	env := newTestEnv(t)
	sub := env.seed("eve", auth.RoleEmployee)
	token := env.tokenFor(sub)

	resp := env.get("/api/users", nil, token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("employee list: expected 200, got %d", resp.StatusCode)
	}

	// Demote while the token still claims employee.
	if _, err := env.svc.ChangeRole(context.Background(), sub.ID, "citizen"); err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}

	resp = env.get("/api/users", nil, token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 after demotion, got %d", resp.StatusCode)
	}
}
