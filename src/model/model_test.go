package model

import (
	"database/sql"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/bondfolio/backend/src/database"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, db *sql.DB, name string) *User {
	t.Helper()
	u := &User{Username: name, Email: name + "@example.com"}
	require.NoError(t, u.HashPassword("password123"))
	require.NoError(t, u.CreateUser(db))
	return u
}

func createBond(t *testing.T, db *sql.DB, series string) *Bond {
	t.Helper()
	b := &Bond{
		Series:              series,
		NominalValue:        decimal.NewFromInt(100),
		MaturityPeriod:      12,
		InitialInterestRate: decimal.RequireFromString("4.75"),
		FirstInterestPeriod: 1,
		ReferenceRateMargin: decimal.RequireFromString("0.1"),
	}
	require.NoError(t, b.CreateBond(db))
	return b
}

func TestBondCRUD(t *testing.T) {
	db := newTestDB(t)
	b := createBond(t, db, "ROR0125")
	createBond(t, db, "DOS0126")
	assert.NotZero(t, b.ID)

	got, err := GetBondByID(db, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "ROR0125", got.Series)
	assert.True(t, got.InitialInterestRate.Equal(decimal.RequireFromString("4.75")))

	got, err = GetBondBySeries(db, "DOS0126")
	require.NoError(t, err)
	assert.Equal(t, 12, got.MaturityPeriod)

	_, err = GetBondByID(db, 999)
	assert.ErrorIs(t, err, ErrBondNotFound)

	all, err := ListBonds(db)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "DOS0126", all[0].Series)

	dup := *b
	assert.Error(t, dup.CreateBond(db), "series is unique")
}

func TestBondHolderCRUD(t *testing.T) {
	db := newTestDB(t)
	u := createUser(t, db, "alice")
	b := createBond(t, db, "ROR0125")

	later := &BondHolder{BondID: b.ID, UserID: u.ID, Quantity: 3, PurchaseDate: civil.Date{Year: 2024, Month: 5, Day: 1}}
	earlier := &BondHolder{BondID: b.ID, UserID: u.ID, Quantity: 10, PurchaseDate: civil.Date{Year: 2024, Month: 1, Day: 31}}
	require.NoError(t, later.CreateBondHolder(db))
	require.NoError(t, earlier.CreateBondHolder(db))

	list, err := ListBondHoldersByUser(db, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, earlier.ID, list[0].ID)
	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 31}, list[0].PurchaseDate)

	require.NoError(t, earlier.UpdateQuantity(db, 4))
	got, err := GetBondHolderByID(db, earlier.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Quantity)

	count, err := CountBondHoldersByUser(db, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, DeleteBondHolder(db, later.ID))
	assert.ErrorIs(t, DeleteBondHolder(db, later.ID), ErrBondHolderNotFound)
	_, err = GetBondHolderByID(db, later.ID)
	assert.ErrorIs(t, err, ErrBondHolderNotFound)

	zero := &BondHolder{BondID: b.ID, UserID: u.ID, Quantity: 0, PurchaseDate: civil.Date{Year: 2024, Month: 1, Day: 1}}
	assert.Error(t, zero.CreateBondHolder(db), "quantity check constraint")
}

func TestReferenceRates(t *testing.T) {
	db := newTestDB(t)
	first := &ReferenceRate{Value: decimal.RequireFromString("6.75"), StartDate: civil.Date{Year: 2023, Month: 1, Day: 1}}
	require.NoError(t, first.CreateReferenceRate(db))

	n, err := CloseOpenReferenceRate(db, civil.Date{Year: 2023, Month: 10, Day: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	second := &ReferenceRate{Value: decimal.RequireFromString("5.75"), StartDate: civil.Date{Year: 2023, Month: 10, Day: 5}}
	require.NoError(t, second.CreateReferenceRate(db))

	all, err := ListReferenceRates(db)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NotNil(t, all[0].EndDate)
	assert.Equal(t, civil.Date{Year: 2023, Month: 10, Day: 4}, *all[0].EndDate)
	assert.True(t, all[1].IsOpen())

	r, err := GetApplicableReferenceRate(db, civil.Date{Year: 2023, Month: 10, Day: 4})
	require.NoError(t, err)
	assert.Equal(t, "6.75", r.Value.String())
	r, err = GetApplicableReferenceRate(db, civil.Date{Year: 2024, Month: 2, Day: 15})
	require.NoError(t, err)
	assert.Equal(t, "5.75", r.Value.String())
	r, err = GetApplicableReferenceRate(db, civil.Date{Year: 2022, Month: 12, Day: 31})
	require.NoError(t, err)
	assert.Nil(t, r)

	upTo, err := ListReferenceRatesUpTo(db, civil.Date{Year: 2023, Month: 6, Day: 1})
	require.NoError(t, err)
	assert.Len(t, upTo, 1)

	require.NoError(t, DeleteAllReferenceRates(db))
	all, err = ListReferenceRates(db)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUserLifecycle(t *testing.T) {
	db := newTestDB(t)
	u := createUser(t, db, "bob")

	got, err := GetUserByEmail(db, "bob@example.com")
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword("password123"))
	assert.Error(t, got.CheckPassword("nope"))
	assert.Equal(t, "local", got.AuthProvider)

	require.NoError(t, RecordLogin(db, u.ID, "127.0.0.1", "test"))
	got, err = GetUserByID(db, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.LoginCount)

	require.NoError(t, got.UpdateMfaSecret(db, "SECRET"))
	require.NoError(t, got.UpdateMfaEnabled(db, true))
	got, err = GetUserByUsername(db, "bob")
	require.NoError(t, err)
	assert.True(t, got.MfaEnabled)
	assert.Equal(t, "SECRET", got.MfaSecret)

	b := createBond(t, db, "ROR0125")
	h := &BondHolder{BondID: b.ID, UserID: u.ID, Quantity: 1, PurchaseDate: civil.Date{Year: 2024, Month: 1, Day: 1}}
	require.NoError(t, h.CreateBondHolder(db))

	require.NoError(t, DeleteUserAccount(db, u.ID))
	_, err = GetUserByID(db, u.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	count, err := CountBondHoldersByUser(db, u.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	var deleted int
	require.NoError(t, db.QueryRow("SELECT metric_value FROM system_metrics WHERE metric_name = 'deleted_user_count'").Scan(&deleted))
	assert.Equal(t, 1, deleted)
}
