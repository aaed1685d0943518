package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"civreg.org/internal/auth"
	"civreg.org/internal/directory"
	"civreg.org/internal/obs"
)

// ReadyProbe reports whether downstream dependencies are reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options configures the HTTP layer.
type Options struct {
	Version      string
	CORSOrigin   string
	RateBurst    int
	RatePerSec   int
	SecureCookie bool
}

// API is the HTTP layer over the directory service and token issuer.
type API struct {
	mux        *http.ServeMux
	svc        *directory.Service
	issuer     *auth.Issuer
	readyProbe ReadyProbe
	opts       Options
}

func New(svc *directory.Service, issuer *auth.Issuer, rp ReadyProbe, opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		issuer:     issuer,
		readyProbe: rp,
		opts:       opts,
	}

	// health/ready
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// session lifecycle
	a.mux.HandleFunc("/api/register", a.handleRegister)
	a.mux.HandleFunc("/api/login", a.handleLogin)
	a.mux.HandleFunc("/api/logout", a.handleLogout)

	// directory
	a.mux.HandleFunc("/api/users", a.handleUsers)
	a.mux.HandleFunc("/api/users/", a.handleUserScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := a.withSession(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	if a.opts.RateBurst > 0 && a.opts.RatePerSec > 0 {
		h = RateLimit(h, a.opts.RateBurst, a.opts.RatePerSec)
	}
	h = CORS(h, a.opts.CORSOrigin)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- health handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "civreg-api",
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func writeValidationError(w http.ResponseWriter, r *http.Request, verr *directory.ValidationError) {
	payload := map[string]any{
		"error":  "validation failed",
		"fields": verr.Fields,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, http.StatusBadRequest, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDirectoryError maps service failures onto the response taxonomy.
// Unexpected errors log their detail server-side and return a generic body.
func handleDirectoryError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *directory.ValidationError
	switch {
	case errors.As(err, &verr):
		writeValidationError(w, r, verr)
	case errors.Is(err, directory.ErrDuplicateInactive):
		writeError(w, r, http.StatusConflict, "an inactive account already uses this username, email or SSN")
	case errors.Is(err, directory.ErrDuplicate):
		writeError(w, r, http.StatusConflict, "username, email or SSN already in use")
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "user not found")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	default:
		obs.LogError("directory operation failed", map[string]any{
			"error":      err.Error(),
			"path":       r.URL.Path,
			"request_id": RequestIDFromContext(r.Context()),
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
