package directory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"civreg.org/internal/auth"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store used by tests and seed tooling.
type MemoryStore struct {
	mu       sync.RWMutex
	subjects map[string]*Subject
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subjects: make(map[string]*Subject)}
}

func (m *MemoryStore) Create(_ context.Context, s *Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.subjects[s.ID] = &cp
	return nil
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (*Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subjects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) FindByIdentifier(_ context.Context, usernameOrEmail string) (*Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(usernameOrEmail)
	for _, s := range m.subjects {
		if strings.ToLower(s.Username) == needle || strings.ToLower(s.Email) == needle {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) FindByUnique(_ context.Context, username, email, ssn string) (*Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subjects {
		if username != "" && strings.EqualFold(s.Username, username) {
			cp := *s
			return &cp, nil
		}
		if email != "" && strings.EqualFold(s.Email, email) {
			cp := *s
			return &cp, nil
		}
		if ssn != "" && s.SSN == ssn {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Subject, Pagination, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*Subject
	for _, s := range m.subjects {
		if !matchesRoles(s.Role, opts.Roles) {
			continue
		}
		if opts.Active != nil && s.Active != *opts.Active {
			continue
		}
		if opts.Search != "" && !matchesSearch(s, opts.Search) {
			continue
		}
		cp := *s
		matched = append(matched, &cp)
	}

	sortSubjects(matched, opts.SortBy, opts.SortOrder)

	total := len(matched)
	page := Pagination{
		Total: total,
		Page:  opts.Page,
		Limit: opts.Limit,
		Pages: (total + opts.Limit - 1) / opts.Limit,
	}
	start := (opts.Page - 1) * opts.Limit
	if start >= total {
		return nil, page, nil
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}
	return matched[start:end], page, nil
}

func (m *MemoryStore) Update(_ context.Context, s *Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subjects[s.ID]; !ok {
		return ErrNotFound
	}
	cp := *s
	m.subjects[s.ID] = &cp
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subjects[id]; !ok {
		return ErrNotFound
	}
	delete(m.subjects, id)
	return nil
}

func matchesRoles(role auth.Role, roles []auth.Role) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func matchesSearch(s *Subject, search string) bool {
	needle := strings.ToLower(search)
	for _, field := range []string{s.Username, s.Firstname, s.Lastname, s.Email} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func sortSubjects(subjects []*Subject, sortBy, order string) {
	asc := order == "asc"
	less := func(a, b *Subject) bool {
		var cmp int
		switch sortBy {
		case "username":
			cmp = strings.Compare(a.Username, b.Username)
		case "email":
			cmp = strings.Compare(a.Email, b.Email)
		case "firstname":
			cmp = strings.Compare(a.Firstname, b.Firstname)
		case "lastname":
			cmp = strings.Compare(a.Lastname, b.Lastname)
		default:
			switch {
			case a.CreatedAt.Before(b.CreatedAt):
				cmp = -1
			case a.CreatedAt.After(b.CreatedAt):
				cmp = 1
			}
		}
		if asc {
			return cmp < 0
		}
		return cmp > 0
	}
	sort.SliceStable(subjects, func(i, j int) bool { return less(subjects[i], subjects[j]) })
}
