package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/ingeweb/contactws/internal/apperror"
	"github.com/ingeweb/contactws/internal/model"
	"github.com/ingeweb/contactws/internal/repository"
)

var _ repository.LinkedLoginRepository = (*LinkedLoginDB)(nil)

// LinkedLoginDB implements repository.LinkedLoginRepository.
type LinkedLoginDB struct {
	q querier
}

// Link stores l with a fresh xid. A remote username can be linked once;
// a second link yields apperror.ErrConflict.
func (l *LinkedLoginDB) Link(ctx context.Context, login *model.LinkedLogin) error {
	login.ID = xid.New().String()
	login.CreatedAt = time.Now().Truncate(time.Second)

	_, err := l.q.ExecContext(ctx,
		`INSERT INTO linked_logins (id, userid, username, email, created_at) VALUES (?, ?, ?, ?, ?)`,
		login.ID, login.UserID, login.Username, login.Email, login.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("linked login", login.Username)
		}
		return fmt.Errorf("sqlite: linking %q to user %d: %w", login.Username, login.UserID, err)
	}
	return nil
}

func (l *LinkedLoginDB) GetByUsername(ctx context.Context, username string) (*model.LinkedLogin, error) {
	var (
		ll      model.LinkedLogin
		created int64
	)
	err := l.q.QueryRowContext(ctx,
		`SELECT id, userid, username, email, created_at FROM linked_logins WHERE username = ?`,
		username,
	).Scan(&ll.ID, &ll.UserID, &ll.Username, &ll.Email, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("linked login", username)
		}
		return nil, fmt.Errorf("sqlite: getting linked login %q: %w", username, err)
	}
	ll.CreatedAt = fromUnix(created)
	return &ll, nil
}

func (l *LinkedLoginDB) ListByUser(ctx context.Context, userID int64) ([]model.LinkedLogin, error) {
	rows, err := l.q.QueryContext(ctx,
		`SELECT id, userid, username, email, created_at FROM linked_logins
		 WHERE userid = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing linked logins of user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []model.LinkedLogin
	for rows.Next() {
		var (
			ll      model.LinkedLogin
			created int64
		)
		if err := rows.Scan(&ll.ID, &ll.UserID, &ll.Username, &ll.Email, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scanning linked login: %w", err)
		}
		ll.CreatedAt = fromUnix(created)
		out = append(out, ll)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating linked logins: %w", err)
	}
	return out, nil
}

func (l *LinkedLoginDB) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	res, err := l.q.ExecContext(ctx, `DELETE FROM linked_logins WHERE userid = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting linked logins of user %d: %w", userID, err)
	}
	return res.RowsAffected()
}
