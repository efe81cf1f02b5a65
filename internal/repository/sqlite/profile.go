package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/ingeweb/contactws/internal/model"
	"github.com/ingeweb/contactws/internal/repository"
)

var _ repository.ProfileRepository = (*ProfileDB)(nil)

// ProfileDB implements repository.ProfileRepository.
type ProfileDB struct {
	q querier
}

func (p *ProfileDB) ListFields(ctx context.Context) ([]model.ProfileField, error) {
	rows, err := p.q.QueryContext(ctx,
		`SELECT id, shortname, name, datatype, param1 FROM user_info_field ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing profile fields: %w", err)
	}
	defer rows.Close()

	var fields []model.ProfileField
	for rows.Next() {
		var f model.ProfileField
		if err := rows.Scan(&f.ID, &f.Shortname, &f.Name, &f.Datatype, &f.Param1); err != nil {
			return nil, fmt.Errorf("sqlite: scanning profile field: %w", err)
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating profile fields: %w", err)
	}
	return fields, nil
}

// DefineField creates a profile field definition, or updates the existing
// one with the same shortname.
func (p *ProfileDB) DefineField(ctx context.Context, f *model.ProfileField) error {
	err := p.q.QueryRowContext(ctx,
		`INSERT INTO user_info_field (shortname, name, datatype, param1)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (shortname) DO UPDATE SET
			name = excluded.name, datatype = excluded.datatype, param1 = excluded.param1
		 RETURNING id`,
		f.Shortname, f.Name, f.Datatype, f.Param1,
	).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("sqlite: defining profile field %q: %w", f.Shortname, err)
	}
	return nil
}

func (p *ProfileDB) LoadProfile(ctx context.Context, userID int64) (map[string]string, error) {
	rows, err := p.q.QueryContext(ctx,
		`SELECT f.shortname, d.data
		 FROM user_info_data d JOIN user_info_field f ON f.id = d.fieldid
		 WHERE d.userid = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading profile of user %d: %w", userID, err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var name, data string
		if err := rows.Scan(&name, &data); err != nil {
			return nil, fmt.Errorf("sqlite: scanning profile value: %w", err)
		}
		values[name] = data
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating profile values: %w", err)
	}
	return values, nil
}

func (p *ProfileDB) SaveProfile(ctx context.Context, userID int64, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	fields, err := p.ListFields(ctx)
	if err != nil {
		return err
	}
	ids := make(map[string]int64, len(fields))
	for _, f := range fields {
		ids[strings.ToLower(f.Shortname)] = f.ID
	}

	for name, v := range values {
		fieldID, ok := ids[strings.ToLower(name)]
		if !ok {
			continue
		}
		_, err := p.q.ExecContext(ctx,
			`INSERT INTO user_info_data (userid, fieldid, data) VALUES (?, ?, ?)
			 ON CONFLICT (userid, fieldid) DO UPDATE SET data = excluded.data`,
			userID, fieldID, v)
		if err != nil {
			return fmt.Errorf("sqlite: saving profile field %q of user %d: %w", name, userID, err)
		}
	}
	return nil
}
