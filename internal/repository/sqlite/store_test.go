package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingeweb/contactws/internal/apperror"
	"github.com/ingeweb/contactws/internal/model"
)

// =========================================================================
// PROFILE TESTS
// =========================================================================

func TestProfile_SaveAndLoad(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := db.Profiles()
	a := createTestAccount(t, db.Users(), "ana", "1", "contactws")

	require.NoError(t, p.DefineField(ctx, &model.ProfileField{Shortname: "cargo", Datatype: "text"}))
	require.NoError(t, p.DefineField(ctx, &model.ProfileField{Shortname: "fechacontrato", Datatype: "datetime"}))

	require.NoError(t, p.SaveProfile(ctx, a.ID, map[string]string{
		"cargo":         "ASESOR",
		"fechacontrato": "2023-01-02",
		"undefined":     "ignored",
	}))
	require.NoError(t, p.SaveProfile(ctx, a.ID, map[string]string{"cargo": "LIDER"}))

	values, err := p.LoadProfile(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"cargo": "LIDER", "fechacontrato": "2023-01-02"}, values)
}

func TestProfile_DefineFieldIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := db.Profiles()

	first := &model.ProfileField{Shortname: "nombrecentro", Datatype: "menu", Param1: "A\nB"}
	require.NoError(t, p.DefineField(ctx, first))
	second := &model.ProfileField{Shortname: "nombrecentro", Datatype: "menu", Param1: "A\nB\nC"}
	require.NoError(t, p.DefineField(ctx, second))

	assert.Equal(t, first.ID, second.ID)
	fields, err := p.ListFields(ctx)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "A\nB\nC", fields[0].Param1)
}

// =========================================================================
// LINKED LOGIN TESTS
// =========================================================================

func TestLinkedLogins(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	l := db.LinkedLogins()
	a := createTestAccount(t, db.Users(), "ana", "1", "contactws")

	login := &model.LinkedLogin{UserID: a.ID, Username: "ana", Email: "ana@example.com"}
	require.NoError(t, l.Link(ctx, login))
	assert.NotEmpty(t, login.ID)

	err := l.Link(ctx, &model.LinkedLogin{UserID: a.ID, Username: "ana"})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	got, err := l.GetByUsername(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.UserID)

	list, err := l.ListByUser(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	n, err := l.DeleteByUser(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = l.GetByUsername(ctx, "ana")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// =========================================================================
// CONFIG TESTS
// =========================================================================

func TestConfig_GetSet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := db.Config("auth_contactws")

	_, ok, err := c.Get(ctx, "baseurl")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "baseurl", "https://sarh.example.com/api"))
	require.NoError(t, c.SetMany(ctx, map[string]string{"apiusername": "svc", "baseurl": "https://other"}))

	v, ok, err := c.Get(ctx, "baseurl")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://other", v)

	other := db.Config("auth_manual")
	_, ok, err = other.Get(ctx, "apiusername")
	require.NoError(t, err)
	assert.False(t, ok, "keys are scoped per plugin")
}
