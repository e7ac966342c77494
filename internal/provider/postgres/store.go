// Package postgres reads and writes the security model directly in
// PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/security-console/internal/platform/db"
	"github.com/odyssey-erp/security-console/internal/provider"
)

// Store implements provider.Backend on the console schema.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ provider.Backend       = (*Store)(nil)
	_ provider.Authenticator = (*Store)(nil)
)

// NewStore constructs a Store backed by pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const selectRole = `SELECT id, name, COALESCE(description, ''), status FROM roles`

const selectFunction = `SELECT f.id, f.name, COALESCE(f.description, ''), f.status, m.id, m.name
FROM functions f LEFT JOIN modules m ON m.id = f.module_id`

const selectUser = `SELECT id, username, COALESCE(email, ''), status FROM users`

// ListRoles returns all roles ordered by name.
func (s *Store) ListRoles(ctx context.Context) ([]provider.Role, error) {
	rows, err := s.pool.Query(ctx, selectRole+` ORDER BY name`)
	if err != nil {
		return nil, wrap("list roles", err)
	}
	roles, err := pgx.CollectRows(rows, scanRole)
	return roles, wrap("list roles", err)
}

// GetRole fetches a role by ID.
func (s *Store) GetRole(ctx context.Context, id int64) (provider.Role, error) {
	rows, err := s.pool.Query(ctx, selectRole+` WHERE id = $1`, id)
	if err != nil {
		return provider.Role{}, wrap("get role", err)
	}
	role, err := pgx.CollectExactlyOneRow(rows, scanRole)
	return role, wrap("get role", err)
}

// ListFunctions returns all functions with their module.
func (s *Store) ListFunctions(ctx context.Context) ([]provider.Function, error) {
	rows, err := s.pool.Query(ctx, selectFunction+` ORDER BY m.id NULLS LAST, f.name`)
	if err != nil {
		return nil, wrap("list functions", err)
	}
	fns, err := pgx.CollectRows(rows, scanFunction)
	return fns, wrap("list functions", err)
}

// RoleFunctions returns the functions granted to a role.
func (s *Store) RoleFunctions(ctx context.Context, roleID int64) ([]provider.Function, error) {
	rows, err := s.pool.Query(ctx, selectFunction+`
JOIN role_functions rf ON rf.function_id = f.id
WHERE rf.role_id = $1
ORDER BY m.id NULLS LAST, f.name`, roleID)
	if err != nil {
		return nil, wrap("role functions", err)
	}
	fns, err := pgx.CollectRows(rows, scanFunction)
	return fns, wrap("role functions", err)
}

// ReplaceRoleFunctions makes functionIDs the exact grant set of the role.
func (s *Store) ReplaceRoleFunctions(ctx context.Context, roleID int64, functionIDs []int64) error {
	return s.replace(ctx, relation{
		table:  "role_functions",
		parent: "role_id",
		child:  "function_id",
		owner:  "roles",
		target: "functions",
	}, roleID, functionIDs)
}

// ListUsers returns all users ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]provider.User, error) {
	rows, err := s.pool.Query(ctx, selectUser+` ORDER BY username`)
	if err != nil {
		return nil, wrap("list users", err)
	}
	users, err := pgx.CollectRows(rows, scanUser)
	return users, wrap("list users", err)
}

// CreateUser stores a new active user with a bcrypt password hash.
func (s *Store) CreateUser(ctx context.Context, u provider.NewUser) (provider.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return provider.User{}, fmt.Errorf("postgres: hash password: %w", err)
	}
	rows, err := s.pool.Query(ctx, `INSERT INTO users (username, email, password_hash, status)
VALUES ($1, NULLIF($2, ''), $3, TRUE)
RETURNING id, username, COALESCE(email, ''), status`,
		strings.TrimSpace(u.Username), strings.TrimSpace(u.Email), string(hash))
	if err != nil {
		return provider.User{}, wrap("create user", err)
	}
	user, err := pgx.CollectExactlyOneRow(rows, scanUser)
	return user, wrap("create user", duplicateUser(err))
}

// DeleteUser deactivates a user. Role assignments are kept so a reactivated
// account comes back with its access.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET status = FALSE WHERE id = $1 AND status`, id)
	if err != nil {
		return wrap("delete user", err)
	}
	if tag.RowsAffected() == 0 {
		return &provider.APIError{Status: http.StatusNotFound, Kind: "NotFound", Message: fmt.Sprintf("user %d not found", id)}
	}
	return nil
}

// duplicateUser turns unique violations on username or email into a field
// error the operator can fix.
func duplicateUser(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	field := "username"
	if strings.Contains(pgErr.ConstraintName, "email") {
		field = "email"
	}
	return &provider.APIError{
		Status:      http.StatusConflict,
		Kind:        "ValidationException",
		Message:     field + " already in use",
		FieldErrors: map[string]string{field: "already in use"},
	}
}

// UserRoles returns the roles held by a user.
func (s *Store) UserRoles(ctx context.Context, userID int64) ([]provider.Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT r.id, r.name, COALESCE(r.description, ''), r.status
FROM roles r JOIN user_roles ur ON ur.role_id = r.id
WHERE ur.user_id = $1 ORDER BY r.name`, userID)
	if err != nil {
		return nil, wrap("user roles", err)
	}
	roles, err := pgx.CollectRows(rows, scanRole)
	return roles, wrap("user roles", err)
}

// ReplaceUserRoles makes roleIDs the exact role set of the user.
func (s *Store) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	return s.replace(ctx, relation{
		table:  "user_roles",
		parent: "user_id",
		child:  "role_id",
		owner:  "users",
		target: "roles",
	}, userID, roleIDs)
}

// Login checks the password hash and returns the user's effective function
// codes. Inactive users cannot sign in.
func (s *Store) Login(ctx context.Context, username, password string) (provider.LoginResult, error) {
	var (
		id     int64
		name   string
		hash   string
		active bool
	)
	err := s.pool.QueryRow(ctx, `SELECT id, username, password_hash, status FROM users WHERE lower(username) = lower($1) OR lower(email) = lower($1)`,
		strings.TrimSpace(username)).Scan(&id, &name, &hash, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return provider.LoginResult{}, invalidCredentials()
	}
	if err != nil {
		return provider.LoginResult{}, wrap("login", err)
	}
	if !active || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return provider.LoginResult{}, invalidCredentials()
	}

	rows, err := s.pool.Query(ctx, `SELECT DISTINCT f.name
FROM user_roles ur
JOIN roles r ON r.id = ur.role_id AND r.status
JOIN role_functions rf ON rf.role_id = r.id
JOIN functions f ON f.id = rf.function_id AND f.status
WHERE ur.user_id = $1
ORDER BY f.name`, id)
	if err != nil {
		return provider.LoginResult{}, wrap("login functions", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return provider.LoginResult{}, wrap("login functions", err)
	}
	return provider.LoginResult{UserID: id, Username: name, Functions: codes}, nil
}

type relation struct {
	table  string
	parent string
	child  string
	owner  string
	target string
}

// replace diffs the stored membership against ids inside one transaction,
// inserting what is new and deleting what was dropped.
func (s *Store) replace(ctx context.Context, rel relation, parentID int64, ids []int64) error {
	return wrap("replace "+rel.table, db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, rel.owner), parentID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return &provider.APIError{Status: http.StatusNotFound, Kind: "NotFound", Message: fmt.Sprintf("%s %d not found", strings.TrimSuffix(rel.owner, "s"), parentID)}
		}

		rows, err := tx.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, rel.child, rel.table, rel.parent), parentID)
		if err != nil {
			return err
		}
		current, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return err
		}
		existing := make(map[int64]struct{}, len(current))
		for _, id := range current {
			existing[id] = struct{}{}
		}
		keep := make(map[int64]struct{}, len(ids))
		var add []int64
		for _, id := range ids {
			if _, dup := keep[id]; dup {
				continue
			}
			keep[id] = struct{}{}
			if _, ok := existing[id]; !ok {
				add = append(add, id)
			}
		}
		var drop []int64
		for id := range existing {
			if _, ok := keep[id]; !ok {
				drop = append(drop, id)
			}
		}

		if len(add) > 0 {
			var known int
			if err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE id = ANY($1)`, rel.target), add).Scan(&known); err != nil {
				return err
			}
			if known != len(add) {
				return &provider.APIError{Status: http.StatusUnprocessableEntity, Kind: "ValidationException", Message: "unknown " + rel.target + " in request",
					FieldErrors: map[string]string{rel.child + "s": "contains unknown ids"}}
			}
			if _, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (%s, %s) SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`, rel.table, rel.parent, rel.child), parentID, add); err != nil {
				return err
			}
		}
		if len(drop) > 0 {
			if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = ANY($2)`, rel.table, rel.parent, rel.child), parentID, drop); err != nil {
				return err
			}
		}
		return nil
	}))
}

func scanRole(row pgx.CollectableRow) (provider.Role, error) {
	var r provider.Role
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Status)
	return r, err
}

func scanFunction(row pgx.CollectableRow) (provider.Function, error) {
	var (
		f          provider.Function
		moduleID   *int64
		moduleName *string
	)
	if err := row.Scan(&f.ID, &f.Name, &f.Description, &f.Status, &moduleID, &moduleName); err != nil {
		return f, err
	}
	if moduleID != nil {
		f.Module = &provider.Module{ID: *moduleID}
		if moduleName != nil {
			f.Module.Name = *moduleName
		}
	}
	return f, nil
}

func scanUser(row pgx.CollectableRow) (provider.User, error) {
	var u provider.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Status)
	return u, err
}

func invalidCredentials() error {
	return &provider.APIError{Status: http.StatusUnauthorized, Kind: "Unauthorized", Message: "Invalid username or password"}
}

// wrap classifies database failures: missing rows become not-found, API
// errors pass through, everything else is a transport failure.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *provider.APIError
	switch {
	case errors.As(err, &apiErr):
		return err
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("postgres: %s: %w", op, provider.ErrNotFound)
	default:
		return fmt.Errorf("postgres: %s: %w: %v", op, provider.ErrTransport, err)
	}
}
