package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"civreg.org/internal/auth"
	"civreg.org/internal/directory"
)

type testEnv struct {
	t      *testing.T
	svc    *directory.Service
	issuer *auth.Issuer
	base   string
	client *http.Client
	seq    int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := directory.NewMemoryStore()
	svc, err := directory.NewService(store, directory.WithBcryptCost(4))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	issuer, err := auth.NewIssuer("test-secret", auth.WithTTL(time.Hour))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	api := New(svc, issuer, ReadyProbe{}, Options{
		Version:    "test",
		RateBurst:  1000,
		RatePerSec: 1000,
	})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{
		t:      t,
		svc:    svc,
		issuer: issuer,
		base:   srv.URL,
		client: srv.Client(),
	}
}

// seed creates an active subject with the given role directly through the
// service, bypassing HTTP. The password is always "passw0rd!".
func (e *testEnv) seed(username string, role auth.Role) *directory.Subject {
	e.t.Helper()
	e.seq++
	in := directory.CreateInput{
		RegisterInput: directory.RegisterInput{
			Username:    username,
			Email:       username + "@example.com",
			Password:    "passw0rd!",
			Firstname:   "Test",
			Lastname:    "Subject",
			PhoneNumber: "6900000000",
			Address: directory.AddressInput{
				City:     "Athens",
				Street:   "Stadiou",
				Number:   "12",
				Postcode: "10561",
			},
			SSN: fmt.Sprintf("%09d", e.seq),
		},
		Role: string(role),
	}
	sub, err := e.svc.Create(context.Background(), in)
	if err != nil {
		e.t.Fatalf("seed %s: %v", username, err)
	}
	return sub
}

func (e *testEnv) tokenFor(sub *directory.Subject) string {
	e.t.Helper()
	token, _, err := e.issuer.Issue(sub.Identity())
	if err != nil {
		e.t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) do(method, path string, body any, token string) *http.Response {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, e.base+path, reader)
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		e.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (e *testEnv) get(path string, params url.Values, token string) *http.Response {
	e.t.Helper()
	u, err := url.Parse(e.base + path)
	if err != nil {
		e.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		e.t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func registerPayload(username, email, ssn string) map[string]any {
	return map[string]any{
		"username":    username,
		"email":       email,
		"password":    "passw0rd!",
		"firstname":   "Test",
		"lastname":    "Subject",
		"phoneNumber": "6900000000",
		"address": map[string]any{
			"city":     "Athens",
			"street":   "Stadiou",
			"number":   "12",
			"postcode": "10561",
		},
		"ssn": ssn,
	}
}
