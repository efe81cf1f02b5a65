package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ingeweb/contactws/internal/apperror"
	"github.com/ingeweb/contactws/internal/model"
	"github.com/ingeweb/contactws/internal/repository"
)

var (
	_ repository.UserRepository = (*UserDB)(nil)
	_ repository.Transactor     = (*DB)(nil)
)

// PasswordNotCached is stored in place of a password for accounts whose
// credentials live in the remote directory.
const PasswordNotCached = "not cached"

// UserDB implements repository.UserRepository.
type UserDB struct {
	q querier
}

// updatableColumns are the standard columns UpdateFields may write.
var updatableColumns = map[string]bool{
	"username":  true,
	"firstname": true,
	"lastname":  true,
	"email":     true,
	"idnumber":  true,
}

const userColumns = `id, auth, username, idnumber, firstname, lastname, email,
	confirmed, suspended, deleted, timecreated, timemodified, lastaccess, lastlogin`

func scanAccount(scan func(dest ...any) error) (*model.Account, error) {
	var a model.Account
	var created, modified, access, lastLogin int64
	err := scan(&a.ID, &a.Auth, &a.Username, &a.IDNumber, &a.FirstName, &a.LastName, &a.Email,
		&a.Confirmed, &a.Suspended, &a.Deleted, &created, &modified, &access, &lastLogin)
	if err != nil {
		return nil, err
	}
	a.TimeCreated = fromUnix(created)
	a.TimeModified = fromUnix(modified)
	a.LastAccess = fromUnix(access)
	a.LastLogin = fromUnix(lastLogin)
	return &a, nil
}

func (u *UserDB) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	row := u.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ? AND deleted = 0`, id)
	a, err := scanAccount(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", fmt.Sprint(id))
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return a, nil
}

func (u *UserDB) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	row := u.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? AND deleted = 0`, username)
	a, err := scanAccount(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqlite: getting user %q: %w", username, err)
	}
	return a, nil
}

// GetByIDs returns the accounts among ids that exist, ordered by id.
func (u *UserDB) GetByIDs(ctx context.Context, ids []int64) ([]model.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return u.list(ctx,
		`SELECT `+userColumns+` FROM users WHERE deleted = 0 AND id IN (`+placeholders+`) ORDER BY id`,
		args...)
}

// Create inserts account and fills in its ID and timestamps. A taken
// username yields apperror.ErrConflict.
func (u *UserDB) Create(ctx context.Context, a *model.Account) error {
	now := time.Now().Truncate(time.Second)
	if a.TimeCreated.IsZero() {
		a.TimeCreated = now
	}
	a.TimeModified = now

	res, err := u.q.ExecContext(ctx,
		`INSERT INTO users (auth, username, password, idnumber, firstname, lastname, email,
			confirmed, suspended, timecreated, timemodified, lastaccess, lastlogin)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Auth, a.Username, PasswordNotCached, a.IDNumber, a.FirstName, a.LastName, a.Email,
		a.Confirmed, a.Suspended, toUnix(a.TimeCreated), toUnix(a.TimeModified),
		toUnix(a.LastAccess), toUnix(a.LastLogin),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", a.Username)
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", a.Username, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading id of user %q: %w", a.Username, err)
	}
	a.ID = id
	return nil
}

func (u *UserDB) UpdateFields(ctx context.Context, id int64, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}

	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+2)
	for col, v := range fields {
		if !updatableColumns[col] {
			return apperror.ValidationFailed(col, fmt.Sprintf("column %q cannot be updated", col))
		}
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	sets = append(sets, "timemodified = ?")
	args = append(args, time.Now().Unix(), id)

	res, err := u.q.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ? AND deleted = 0`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", fields["username"])
		}
		return fmt.Errorf("sqlite: updating user %d: %w", id, err)
	}
	return requireAffected(res, id)
}

func (u *UserDB) SetSuspended(ctx context.Context, id int64, suspended bool) error {
	res, err := u.q.ExecContext(ctx,
		`UPDATE users SET suspended = ?, timemodified = ? WHERE id = ? AND deleted = 0`,
		suspended, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("sqlite: setting suspended=%t on user %d: %w", suspended, id, err)
	}
	return requireAffected(res, id)
}

// RecordLogin stamps a successful login on both lastlogin and lastaccess.
func (u *UserDB) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	res, err := u.q.ExecContext(ctx,
		`UPDATE users SET lastlogin = ?, lastaccess = ? WHERE id = ? AND deleted = 0`,
		at.Unix(), at.Unix(), id)
	if err != nil {
		return fmt.Errorf("sqlite: recording login of user %d: %w", id, err)
	}
	return requireAffected(res, id)
}

func (u *UserDB) ListByAuth(ctx context.Context, auth string) ([]model.Account, error) {
	return u.list(ctx,
		`SELECT `+userColumns+` FROM users WHERE auth = ? AND deleted = 0 ORDER BY id`, auth)
}

func (u *UserDB) IdentifierSet(ctx context.Context) (map[string]struct{}, error) {
	rows, err := u.q.QueryContext(ctx,
		`SELECT DISTINCT idnumber FROM users WHERE deleted = 0 AND idnumber <> ''`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing identifiers: %w", err)
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning identifier: %w", err)
		}
		set[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating identifiers: %w", err)
	}
	return set, nil
}

func (u *UserDB) CountByAuth(ctx context.Context, auth string) (active, suspended int, err error) {
	err = u.q.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN suspended = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN suspended = 1 THEN 1 ELSE 0 END), 0)
		 FROM users WHERE auth = ? AND deleted = 0`, auth,
	).Scan(&active, &suspended)
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite: counting %s users: %w", auth, err)
	}
	return active, suspended, nil
}

// ResetPasswords replaces stored passwords of auth's accounts with
// PasswordNotCached. It runs once when the plugin is installed.
func (u *UserDB) ResetPasswords(ctx context.Context, auth string) (int64, error) {
	res, err := u.q.ExecContext(ctx,
		`UPDATE users SET password = ? WHERE auth = ? AND password <> ?`,
		PasswordNotCached, auth, PasswordNotCached)
	if err != nil {
		return 0, fmt.Errorf("sqlite: resetting %s passwords: %w", auth, err)
	}
	return res.RowsAffected()
}

func (u *UserDB) list(ctx context.Context, query string, args ...any) ([]model.Account, error) {
	rows, err := u.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		a, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return out, nil
}

// WithinTx implements repository.Transactor.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, users repository.UserRepository) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	if err := fn(ctx, &UserDB{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("sqlite: rolling back: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: reading affected rows: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", fmt.Sprint(id))
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(s int64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(s, 0)
}
