package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingeweb/contactws/internal/apperror"
	"github.com/ingeweb/contactws/internal/model"
	"github.com/ingeweb/contactws/internal/repository"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestAccount creates an account and fails the test if it errors.
func createTestAccount(t *testing.T, u *UserDB, username, idnumber, auth string) *model.Account {
	t.Helper()
	a := &model.Account{
		Auth:      auth,
		Username:  username,
		IDNumber:  idnumber,
		FirstName: "ANA",
		LastName:  "ROJAS",
		Email:     username + "@example.com",
		Confirmed: true,
	}
	if err := u.Create(context.Background(), a); err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}
	return a
}

// =========================================================================
// CREATE / GET TESTS
// =========================================================================

func TestUserCreate(t *testing.T) {
	u := newTestDB(t).Users()
	ctx := context.Background()

	a := createTestAccount(t, u, "ana", "100", "contactws")

	assert.NotZero(t, a.ID)
	assert.False(t, a.TimeCreated.IsZero())

	got, err := u.GetByUsername(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "contactws", got.Auth)
	assert.Equal(t, "100", got.IDNumber)
	assert.True(t, got.Confirmed)
	assert.False(t, got.Suspended)
	assert.True(t, got.LastAccess.IsZero(), "zero timestamps round-trip as never")
}

func TestUserCreate_DuplicateUsername(t *testing.T) {
	u := newTestDB(t).Users()
	createTestAccount(t, u, "ana", "100", "contactws")

	err := u.Create(context.Background(), &model.Account{Auth: "manual", Username: "ana"})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestUserGet_NotFound(t *testing.T) {
	u := newTestDB(t).Users()

	_, err := u.GetByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = u.GetByID(context.Background(), 999)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUserCreate_StoresPasswordMarker(t *testing.T) {
	db := newTestDB(t)
	createTestAccount(t, db.Users(), "ana", "100", "contactws")

	var pw string
	require.NoError(t, db.conn.QueryRow(`SELECT password FROM users WHERE username = 'ana'`).Scan(&pw))
	assert.Equal(t, PasswordNotCached, pw)
}

func TestGetByIDs(t *testing.T) {
	u := newTestDB(t).Users()
	a := createTestAccount(t, u, "a", "1", "contactws")
	b := createTestAccount(t, u, "b", "2", "manual")

	got, err := u.GetByIDs(context.Background(), []int64{b.ID, 404, a.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, b.ID, got[1].ID)

	none, err := u.GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

// =========================================================================
// MUTATION TESTS
// =========================================================================

func TestUpdateFields(t *testing.T) {
	u := newTestDB(t).Users()
	ctx := context.Background()
	a := createTestAccount(t, u, "ana", "100", "contactws")

	err := u.UpdateFields(ctx, a.ID, map[string]string{"firstname": "ANA MARIA", "email": "am@example.com"})
	require.NoError(t, err)

	got, err := u.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "ANA MARIA", got.FirstName)
	assert.Equal(t, "am@example.com", got.Email)
	assert.Equal(t, "ROJAS", got.LastName)
}

func TestUpdateFields_RejectsOtherColumns(t *testing.T) {
	u := newTestDB(t).Users()
	a := createTestAccount(t, u, "ana", "100", "contactws")

	err := u.UpdateFields(context.Background(), a.ID, map[string]string{"suspended": "1"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestSetSuspended(t *testing.T) {
	u := newTestDB(t).Users()
	ctx := context.Background()
	a := createTestAccount(t, u, "ana", "100", "contactws")

	require.NoError(t, u.SetSuspended(ctx, a.ID, true))
	got, _ := u.GetByID(ctx, a.ID)
	assert.True(t, got.Suspended)

	require.NoError(t, u.SetSuspended(ctx, a.ID, false))
	got, _ = u.GetByID(ctx, a.ID)
	assert.False(t, got.Suspended)

	assert.ErrorIs(t, u.SetSuspended(ctx, 12345, true), apperror.ErrNotFound)
}

func TestRecordLogin(t *testing.T) {
	u := newTestDB(t).Users()
	ctx := context.Background()
	a := createTestAccount(t, u, "ana", "100", "contactws")
	at := time.Unix(1_700_000_000, 0)

	require.NoError(t, u.RecordLogin(ctx, a.ID, at))

	got, _ := u.GetByID(ctx, a.ID)
	assert.True(t, got.LastLogin.Equal(at))
	assert.True(t, got.LastAccess.Equal(at))
}

// =========================================================================
// QUERY TESTS
// =========================================================================

func TestListByAuthAndCount(t *testing.T) {
	db := newTestDB(t)
	u := db.Users()
	ctx := context.Background()

	createTestAccount(t, u, "a", "1", "contactws")
	b := createTestAccount(t, u, "b", "2", "contactws")
	createTestAccount(t, u, "c", "3", "manual")
	d := createTestAccount(t, u, "d", "4", "contactws")
	require.NoError(t, u.SetSuspended(ctx, b.ID, true))
	_, err := db.conn.Exec(`UPDATE users SET deleted = 1 WHERE id = ?`, d.ID)
	require.NoError(t, err)

	list, err := u.ListByAuth(ctx, "contactws")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Username)
	assert.Equal(t, "b", list[1].Username)

	active, suspended, err := u.CountByAuth(ctx, "contactws")
	require.NoError(t, err)
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, suspended)
}

func TestIdentifierSet_IncludesEveryAuthMethod(t *testing.T) {
	db := newTestDB(t)
	u := db.Users()
	createTestAccount(t, u, "a", "1", "contactws")
	createTestAccount(t, u, "b", "2", "manual")
	createTestAccount(t, u, "c", "", "contactws")
	gone := createTestAccount(t, u, "d", "4", "contactws")
	_, err := db.conn.Exec(`UPDATE users SET deleted = 1 WHERE id = ?`, gone.ID)
	require.NoError(t, err)

	set, err := u.IdentifierSet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"1": {}, "2": {}}, set)
}

func TestResetPasswords(t *testing.T) {
	db := newTestDB(t)
	createTestAccount(t, db.Users(), "a", "1", "contactws")
	_, err := db.conn.Exec(`UPDATE users SET password = 'hash' WHERE username = 'a'`)
	require.NoError(t, err)

	n, err := db.Users().ResetPasswords(context.Background(), "contactws")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// =========================================================================
// TRANSACTION TESTS
// =========================================================================

func TestWithinTx_CommitsOnSuccess(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createTestAccount(t, db.Users(), "a", "1", "contactws")

	err := db.WithinTx(ctx, func(ctx context.Context, users repository.UserRepository) error {
		return users.SetSuspended(ctx, a.ID, true)
	})
	require.NoError(t, err)

	got, _ := db.Users().GetByID(ctx, a.ID)
	assert.True(t, got.Suspended)
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createTestAccount(t, db.Users(), "a", "1", "contactws")
	boom := errors.New("boom")

	err := db.WithinTx(ctx, func(ctx context.Context, users repository.UserRepository) error {
		if err := users.SetSuspended(ctx, a.ID, true); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, _ := db.Users().GetByID(ctx, a.ID)
	assert.False(t, got.Suspended, "suspension must be rolled back")
}
