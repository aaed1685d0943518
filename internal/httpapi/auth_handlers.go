package httpapi

import (
	"net/http"
	"time"

	"civreg.org/internal/audit"
	"civreg.org/internal/auth"
	"civreg.org/internal/directory"
	"civreg.org/internal/obs"
)

type loginResponse struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expires_at"`
	User      *directory.Subject `json:"user"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if d := auth.CanAccess(nil, auth.ActionRegister, nil); !d.Allow {
		writeError(w, r, http.StatusForbidden, d.Reason)
		return
	}

	var req directory.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	subject, err := a.svc.Register(r.Context(), req)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "directory.subject.register", map[string]any{
		"subject_id": subject.ID,
		"username":   subject.Username,
	})
	writeJSON(w, http.StatusCreated, subject)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if d := auth.CanAccess(nil, auth.ActionLogin, nil); !d.Allow {
		writeError(w, r, http.StatusForbidden, d.Reason)
		return
	}

	var req directory.LoginInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		writeValidationError(w, r, &directory.ValidationError{Fields: fields})
		return
	}

	subject, err := a.svc.Authenticate(r.Context(), req.UsernameOrEmail, req.Password)
	if err != nil {
		obs.ObserveLogin(false)
		handleDirectoryError(w, r, err)
		return
	}

	token, expiresAt, err := a.issuer.Issue(subject.Identity())
	if err != nil {
		obs.LogError("token issue failed", map[string]any{
			"error":      err.Error(),
			"request_id": RequestIDFromContext(r.Context()),
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   a.opts.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	})

	obs.ObserveLogin(true)
	_ = audit.LogEvent(r.Context(), "session.login", map[string]any{
		"subject_id": subject.ID,
		"username":   subject.Username,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      subject,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.opts.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	})

	_ = audit.LogEvent(r.Context(), "session.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}
