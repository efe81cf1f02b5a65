// Package repository declares the host storage the service depends on.
//
// Accounts are only ever mutated through these primitives. In particular the
// suspended flag is changed with SetSuspended and never by a generic update,
// so the implementation can keep its own invariants (modification time,
// audit) in one place.
package repository

import (
	"context"
	"time"

	"github.com/ingeweb/contactws/internal/model"
)

// UserRepository reads and mutates host user rows. Deleted rows are
// invisible to every method.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Account, error)
	GetByUsername(ctx context.Context, username string) (*model.Account, error)
	GetByIDs(ctx context.Context, ids []int64) ([]model.Account, error)
	Create(ctx context.Context, account *model.Account) error
	// UpdateFields writes the given standard columns (username, firstname,
	// lastname, email, idnumber). Unknown column names are rejected.
	UpdateFields(ctx context.Context, id int64, fields map[string]string) error
	SetSuspended(ctx context.Context, id int64, suspended bool) error
	RecordLogin(ctx context.Context, id int64, at time.Time) error
	ListByAuth(ctx context.Context, auth string) ([]model.Account, error)
	// IdentifierSet returns the non-empty idnumbers of every account,
	// whatever its auth method, in one query.
	IdentifierSet(ctx context.Context) (map[string]struct{}, error)
	CountByAuth(ctx context.Context, auth string) (active, suspended int, err error)
}

// ProfileRepository stores custom profile field definitions and values.
type ProfileRepository interface {
	ListFields(ctx context.Context) ([]model.ProfileField, error)
	// LoadProfile returns the user's values keyed by field shortname.
	LoadProfile(ctx context.Context, userID int64) (map[string]string, error)
	// SaveProfile upserts values keyed by shortname. Shortnames with no
	// field definition are ignored.
	SaveProfile(ctx context.Context, userID int64, values map[string]string) error
}

// LinkedLoginRepository records which remote username owns a local account.
type LinkedLoginRepository interface {
	Link(ctx context.Context, login *model.LinkedLogin) error
	GetByUsername(ctx context.Context, username string) (*model.LinkedLogin, error)
	ListByUser(ctx context.Context, userID int64) ([]model.LinkedLogin, error)
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
}

// ConfigStore is the plugin scoped key/value configuration store.
type ConfigStore interface {
	// Get returns ok=false when the key was never set.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// SetMany writes all pairs atomically where the backend allows it.
	SetMany(ctx context.Context, values map[string]string) error
}

// Transactor runs fn inside one transaction. The repository passed to fn is
// bound to that transaction; a non-nil error from fn rolls everything back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, users UserRepository) error) error
}
