package obs

import "testing"

func TestMetricPathCollapsesSubjectIDs(t *testing.T) {
	cases := map[string]string{
		"/api/users":                   "/api/users",
		"/api/users/me":                "/api/users/me",
		"/api/users/me/password":       "/api/users/me/password",
		"/api/users/01J0ABCDEF":        "/api/users/{id}",
		"/api/users/01J0ABCDEF/role":   "/api/users/{id}/role",
		"/api/users/01J0ABCDEF/active": "/api/users/{id}/active",
		"/api/login":                   "/api/login",
		"/healthz":                     "/healthz",
	}
	for in, want := range cases {
		if got := metricPath(in); got != want {
			t.Fatalf("metricPath(%q) = %q, want %q", in, got, want)
		}
	}
}
