package directory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"civreg.org/internal/auth"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const subjectColumns = `id, username, email, password_hash, role, firstname, lastname,
	phone_number, city, street, street_number, postcode, ssn, active, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, sub *Subject) error {
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, username, email, password_hash, role, firstname, lastname,
			phone_number, city, street, street_number, postcode, ssn, active, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		sub.ID, sub.Username, sub.Email, sub.PasswordHash, string(sub.Role),
		sub.Firstname, sub.Lastname, sub.PhoneNumber,
		sub.Address.City, sub.Address.Street, sub.Address.Number, sub.Address.Postcode,
		sub.SSN, sub.Active, sub.CreatedAt, sub.UpdatedAt,
	)
	return err
}

func (s *PGStore) FindByID(ctx context.Context, id string) (*Subject, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+subjectColumns+` from users where id=$1`, id)
	return scanSubject(row)
}

func (s *PGStore) FindByIdentifier(ctx context.Context, usernameOrEmail string) (*Subject, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+subjectColumns+` from users where username=$1 or email=lower($1)`, usernameOrEmail)
	return scanSubject(row)
}

func (s *PGStore) FindByUnique(ctx context.Context, username, email, ssn string) (*Subject, error) {
	var (
		conds []string
		args  []any
	)
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		conds = append(conds, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	add("username", username)
	add("email", email)
	add("ssn", ssn)
	if len(conds) == 0 {
		return nil, ErrNotFound
	}

	row := s.db.QueryRowContext(ctx,
		`select `+subjectColumns+` from users where `+strings.Join(conds, " or ")+` limit 1`,
		args...)
	return scanSubject(row)
}

// sortColumns whitelists client-supplied sort fields.
var sortColumns = map[string]string{
	"created_at": "created_at",
	"username":   "username",
	"email":      "email",
	"firstname":  "firstname",
	"lastname":   "lastname",
}

func (s *PGStore) List(ctx context.Context, opts ListOptions) ([]*Subject, Pagination, error) {
	var (
		conds []string
		args  []any
	)

	if len(opts.Roles) > 0 {
		placeholders := make([]string, 0, len(opts.Roles))
		for _, role := range opts.Roles {
			args = append(args, string(role))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		conds = append(conds, "role in ("+strings.Join(placeholders, ",")+")")
	}
	if opts.Active != nil {
		args = append(args, *opts.Active)
		conds = append(conds, fmt.Sprintf("active=$%d", len(args)))
	}
	if opts.Search != "" {
		args = append(args, "%"+opts.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(username ilike $%d or firstname ilike $%d or lastname ilike $%d or email ilike $%d)", n, n, n, n))
	}

	where := ""
	if len(conds) > 0 {
		where = " where " + strings.Join(conds, " and ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from users`+where, args...).Scan(&total); err != nil {
		return nil, Pagination{}, err
	}

	sortCol, ok := sortColumns[opts.SortBy]
	if !ok {
		sortCol = "created_at"
	}
	dir := "desc"
	if opts.SortOrder == "asc" {
		dir = "asc"
	}

	args = append(args, opts.Limit, (opts.Page-1)*opts.Limit)
	query := fmt.Sprintf(`select `+subjectColumns+` from users%s order by %s %s limit $%d offset $%d`,
		where, sortCol, dir, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Pagination{}, err
	}
	defer rows.Close()

	var subjects []*Subject
	for rows.Next() {
		sub, err := scanSubject(rows)
		if err != nil {
			return nil, Pagination{}, err
		}
		subjects = append(subjects, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, Pagination{}, err
	}

	page := Pagination{
		Total: total,
		Page:  opts.Page,
		Limit: opts.Limit,
		Pages: (total + opts.Limit - 1) / opts.Limit,
	}
	return subjects, page, nil
}

func (s *PGStore) Update(ctx context.Context, sub *Subject) error {
	res, err := s.db.ExecContext(ctx,
		`update users set username=$2, email=$3, password_hash=$4, role=$5, firstname=$6,
			lastname=$7, phone_number=$8, city=$9, street=$10, street_number=$11, postcode=$12,
			ssn=$13, active=$14, updated_at=$15
		 where id=$1`,
		sub.ID, sub.Username, sub.Email, sub.PasswordHash, string(sub.Role),
		sub.Firstname, sub.Lastname, sub.PhoneNumber,
		sub.Address.City, sub.Address.Street, sub.Address.Number, sub.Address.Postcode,
		sub.SSN, sub.Active, sub.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubject(row rowScanner) (*Subject, error) {
	var (
		sub  Subject
		role string
	)
	err := row.Scan(
		&sub.ID, &sub.Username, &sub.Email, &sub.PasswordHash, &role,
		&sub.Firstname, &sub.Lastname, &sub.PhoneNumber,
		&sub.Address.City, &sub.Address.Street, &sub.Address.Number, &sub.Address.Postcode,
		&sub.SSN, &sub.Active, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sub.Role = auth.Role(role)
	return &sub, nil
}
