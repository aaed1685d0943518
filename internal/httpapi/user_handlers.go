package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"civreg.org/internal/audit"
	"civreg.org/internal/auth"
	"civreg.org/internal/directory"
)

type changeRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.handleListUsers(w, r)
	case http.MethodPost:
		a.handleCreateUser(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if d := auth.CanAccess(&actor, auth.ActionListSubjects, nil); !d.Allow {
		writeError(w, r, http.StatusForbidden, d.Reason)
		return
	}

	opts, err := listOptionsFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Employees only ever see citizen records; a filter asking for more
	// intersects down to what they are allowed to see.
	if actor.Role == auth.RoleEmployee {
		opts.Roles = intersectRoles(opts.Roles, []auth.Role{auth.RoleCitizen})
		if len(opts.Roles) == 0 {
			writeJSON(w, http.StatusOK, map[string]any{
				"users":      []*directory.Subject{},
				"pagination": directory.Pagination{Page: 1, Limit: 10},
			})
			return
		}
	}

	subjects, page, err := a.svc.List(r.Context(), opts)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}

	redacted := make([]*directory.Subject, 0, len(subjects))
	for _, s := range subjects {
		redacted = append(redacted, s.Redacted())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users":      redacted,
		"pagination": page,
	})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req directory.CreateInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		writeValidationError(w, r, &directory.ValidationError{Fields: []directory.FieldError{
			{Field: "role", Message: "role must be one of admin, employee, citizen"},
		}})
		return
	}

	// Role elevation is refused before any record is written.
	if d := auth.CanAccess(&actor, auth.ActionCreateSubject, &auth.Target{Role: role}); !d.Allow {
		writeError(w, r, http.StatusForbidden, d.Reason)
		return
	}

	subject, err := a.svc.Create(r.Context(), req)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "directory.subject.create", map[string]any{
		"subject_id": subject.ID,
		"username":   subject.Username,
		"role":       string(subject.Role),
	})
	writeJSON(w, http.StatusCreated, subject)
}

func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/users/")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(rest, "/")

	if parts[0] == "me" {
		switch {
		case len(parts) == 1:
			a.handleMe(w, r, actor)
		case len(parts) == 2 && parts[1] == "password":
			a.handleMePassword(w, r, actor)
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
		return
	}

	id := parts[0]
	switch {
	case len(parts) == 1:
		a.handleUserByID(w, r, actor, id)
	case len(parts) == 2 && parts[1] == "active":
		a.handleToggleActive(w, r, actor, id)
	case len(parts) == 2 && parts[1] == "role":
		a.handleChangeRole(w, r, actor, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// authorizeTarget fetches the target record and evaluates policy against
// it. Absent records authorize as citizen records so a 404 never reveals
// more than an allowed request would.
func (a *API) authorizeTarget(w http.ResponseWriter, r *http.Request, actor auth.Identity, action auth.Action, id string) (*directory.Subject, bool) {
	subject, err := a.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			if d := auth.CanAccess(&actor, action, &auth.Target{ID: id, Role: auth.RoleCitizen}); !d.Allow {
				writeError(w, r, http.StatusForbidden, d.Reason)
				return nil, false
			}
			writeError(w, r, http.StatusNotFound, "user not found")
			return nil, false
		}
		handleDirectoryError(w, r, err)
		return nil, false
	}
	if d := auth.CanAccess(&actor, action, &auth.Target{ID: subject.ID, Role: subject.Role}); !d.Allow {
		writeError(w, r, http.StatusForbidden, d.Reason)
		return nil, false
	}
	return subject, true
}

func (a *API) handleUserByID(w http.ResponseWriter, r *http.Request, actor auth.Identity, id string) {
	switch r.Method {
	case http.MethodGet:
		subject, ok := a.authorizeTarget(w, r, actor, auth.ActionReadSubject, id)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, subject)

	case http.MethodPut:
		if _, ok := a.authorizeTarget(w, r, actor, auth.ActionUpdateSubject, id); !ok {
			return
		}
		var req directory.UpdateInput
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		subject, err := a.svc.UpdateProfile(r.Context(), id, req)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.subject.update", map[string]any{
			"subject_id": subject.ID,
		})
		writeJSON(w, http.StatusOK, subject)

	case http.MethodDelete:
		if _, ok := a.authorizeTarget(w, r, actor, auth.ActionDeleteSubject, id); !ok {
			return
		}
		if err := a.svc.Delete(r.Context(), id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.subject.delete", map[string]any{
			"subject_id": id,
		})
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	switch r.Method {
	case http.MethodGet:
		subject, ok := a.authorizeTarget(w, r, actor, auth.ActionReadSubject, actor.ID)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, subject)

	case http.MethodPut:
		if _, ok := a.authorizeTarget(w, r, actor, auth.ActionUpdateSubject, actor.ID); !ok {
			return
		}
		var req directory.UpdateInput
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		subject, err := a.svc.UpdateProfile(r.Context(), actor.ID, req)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.subject.update", map[string]any{
			"subject_id": subject.ID,
		})
		writeJSON(w, http.StatusOK, subject)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) handleMePassword(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if d := auth.CanAccess(&actor, auth.ActionChangePassword, &auth.Target{ID: actor.ID, Role: actor.Role}); !d.Allow {
		writeError(w, r, http.StatusForbidden, d.Reason)
		return
	}

	var req directory.ChangePasswordInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.ChangePassword(r.Context(), actor.ID, req); err != nil {
		handleDirectoryError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "directory.subject.change_password", map[string]any{
		"subject_id": actor.ID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleToggleActive(w http.ResponseWriter, r *http.Request, actor auth.Identity, id string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	if _, ok := a.authorizeTarget(w, r, actor, auth.ActionToggleActive, id); !ok {
		return
	}

	subject, err := a.svc.ToggleActive(r.Context(), id)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "directory.subject.toggle_active", map[string]any{
		"subject_id": subject.ID,
		"active":     subject.Active,
	})
	writeJSON(w, http.StatusOK, subject)
}

func (a *API) handleChangeRole(w http.ResponseWriter, r *http.Request, actor auth.Identity, id string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	if _, ok := a.authorizeTarget(w, r, actor, auth.ActionChangeRole, id); !ok {
		return
	}

	var req changeRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	subject, err := a.svc.ChangeRole(r.Context(), id, req.Role)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "directory.subject.change_role", map[string]any{
		"subject_id": subject.ID,
		"role":       string(subject.Role),
	})
	writeJSON(w, http.StatusOK, subject)
}

func listOptionsFromQuery(r *http.Request) (directory.ListOptions, error) {
	q := r.URL.Query()

	page, err := parsePositiveInt(q.Get("page"), 1, 1, 1<<30)
	if err != nil {
		return directory.ListOptions{}, errors.New("page must be a positive integer")
	}
	limit, err := parsePositiveInt(q.Get("limit"), 10, 1, 100)
	if err != nil {
		return directory.ListOptions{}, errors.New("limit must be between 1 and 100")
	}

	opts := directory.ListOptions{
		Search:    strings.TrimSpace(q.Get("search")),
		SortBy:    strings.TrimSpace(q.Get("sortBy")),
		SortOrder: strings.TrimSpace(q.Get("sortOrder")),
		Page:      page,
		Limit:     limit,
	}

	if raw := strings.TrimSpace(q.Get("role")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			role, err := auth.ParseRole(part)
			if err != nil {
				return directory.ListOptions{}, errors.New("role filter must list valid roles")
			}
			opts.Roles = append(opts.Roles, role)
		}
	}
	if raw := strings.TrimSpace(q.Get("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return directory.ListOptions{}, errors.New("active must be true or false")
		}
		opts.Active = &active
	}
	return opts, nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < min || val > max {
		return 0, errors.New("out of range")
	}
	return val, nil
}

func intersectRoles(requested, allowed []auth.Role) []auth.Role {
	if len(requested) == 0 {
		return allowed
	}
	var out []auth.Role
	for _, want := range requested {
		for _, have := range allowed {
			if want == have {
				out = append(out, want)
			}
		}
	}
	return out
}
