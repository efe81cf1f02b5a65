// Package sqlite implements the repository interfaces on SQLite.
//
// The schema follows the host tables the plugin works against: users,
// user_info_field and user_info_data for custom profile fields, and
// config_plugins for plugin scoped settings. Times are stored as unix
// seconds, with 0 meaning "never".
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the same repository
// code runs inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB owns the connection pool and hands out the repositories.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// ":memory:" gives a private in-memory database, used by tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would see its own empty database.
	if strings.Contains(dbPath, ":memory:") {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	// Concurrent writers wait instead of failing with SQLITE_BUSY.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Users returns the user repository bound to the pool.
func (db *DB) Users() *UserDB {
	return &UserDB{q: db.conn}
}

// Profiles returns the custom profile field repository.
func (db *DB) Profiles() *ProfileDB {
	return &ProfileDB{q: db.conn}
}

// LinkedLogins returns the linked login repository.
func (db *DB) LinkedLogins() *LinkedLoginDB {
	return &LinkedLoginDB{q: db.conn}
}

// Config returns the configuration store scoped to plugin.
func (db *DB) Config(plugin string) *ConfigDB {
	return &ConfigDB{conn: db.conn, plugin: plugin}
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			auth         TEXT NOT NULL DEFAULT 'manual',
			username     TEXT NOT NULL UNIQUE,
			idnumber     TEXT NOT NULL DEFAULT '',
			firstname    TEXT NOT NULL DEFAULT '',
			lastname     TEXT NOT NULL DEFAULT '',
			email        TEXT NOT NULL DEFAULT '',
			confirmed    INTEGER NOT NULL DEFAULT 0,
			suspended    INTEGER NOT NULL DEFAULT 0,
			deleted      INTEGER NOT NULL DEFAULT 0,
			timecreated  INTEGER NOT NULL DEFAULT 0,
			timemodified INTEGER NOT NULL DEFAULT 0,
			lastaccess   INTEGER NOT NULL DEFAULT 0,
			lastlogin    INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_users_auth ON users(auth, deleted);
		CREATE INDEX IF NOT EXISTS idx_users_idnumber ON users(idnumber);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// Added after the first release. Accounts authenticated remotely keep
	// the marker "not cached" instead of a hash.
	if err := db.addColumnIfNotExists("users", "password",
		"TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding password to users: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS user_info_field (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			shortname TEXT NOT NULL UNIQUE,
			name      TEXT NOT NULL DEFAULT '',
			datatype  TEXT NOT NULL DEFAULT 'text',
			param1    TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS user_info_data (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			userid  INTEGER NOT NULL REFERENCES users(id),
			fieldid INTEGER NOT NULL REFERENCES user_info_field(id),
			data    TEXT NOT NULL DEFAULT '',
			UNIQUE (userid, fieldid)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating profile field tables: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS config_plugins (
			plugin TEXT NOT NULL,
			name   TEXT NOT NULL,
			value  TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (plugin, name)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating config_plugins table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS linked_logins (
			id         TEXT PRIMARY KEY,
			userid     INTEGER NOT NULL REFERENCES users(id),
			username   TEXT NOT NULL UNIQUE,
			email      TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_linked_logins_userid ON linked_logins(userid);
	`)
	if err != nil {
		return fmt.Errorf("creating linked_logins table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}
