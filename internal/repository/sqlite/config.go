package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ingeweb/contactws/internal/repository"
)

var _ repository.ConfigStore = (*ConfigDB)(nil)

// ConfigDB is the config_plugins store for one plugin.
type ConfigDB struct {
	conn   *sql.DB
	plugin string
}

func (c *ConfigDB) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := c.conn.QueryRowContext(ctx,
		`SELECT value FROM config_plugins WHERE plugin = ? AND name = ?`, c.plugin, key,
	).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("sqlite: reading config %s/%s: %w", c.plugin, key, err)
	}
	return v, true, nil
}

func (c *ConfigDB) Set(ctx context.Context, key, value string) error {
	return set(ctx, c.conn, c.plugin, key, value)
}

// SetMany writes every pair in one transaction.
func (c *ConfigDB) SetMany(ctx context.Context, values map[string]string) error {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning config transaction: %w", err)
	}
	defer tx.Rollback()

	for k, v := range values {
		if err := set(ctx, tx, c.plugin, k, v); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing config: %w", err)
	}
	return nil
}

func set(ctx context.Context, q querier, plugin, key, value string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO config_plugins (plugin, name, value) VALUES (?, ?, ?)
		 ON CONFLICT (plugin, name) DO UPDATE SET value = excluded.value`,
		plugin, key, value)
	if err != nil {
		return fmt.Errorf("sqlite: writing config %s/%s: %w", plugin, key, err)
	}
	return nil
}
