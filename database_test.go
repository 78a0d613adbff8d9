package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDatabases returns a store per available driver. PostgreSQL is only
// exercised when POSTGRES_TEST_DSN points at a disposable database.
func testDatabases(t *testing.T) map[string]*SQLDatabase {
	t.Helper()

	ctx := context.Background()
	dbs := map[string]*SQLDatabase{}

	lite, err := NewSQLDatabase(ctx, DatabaseConfig{
		Driver: DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "store.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { lite.Close() })
	dbs[DriverSQLite] = lite

	if dsn := os.Getenv("POSTGRES_TEST_DSN"); dsn != "" {
		pg, err := NewSQLDatabase(ctx, DatabaseConfig{Driver: DriverPostgres, URL: dsn})
		require.NoError(t, err)
		t.Cleanup(func() { pg.Close() })

		_, err = pg.db.ExecContext(ctx, `TRUNCATE subscriptions, users RESTART IDENTITY`)
		require.NoError(t, err)
		dbs[DriverPostgres] = pg
	}

	return dbs
}

func TestDialect_Rebind(t *testing.T) {
	const q = "UPDATE subscriptions SET amount = ?, end_date = ? WHERE id = ? AND user_id = ?"

	assert.Equal(t, q, sqliteDialect.rebind(q))
	assert.Equal(t,
		"UPDATE subscriptions SET amount = $1, end_date = $2 WHERE id = $3 AND user_id = $4",
		postgresDialect.rebind(q),
	)
}

func TestNewSQLDatabase_UnsupportedDriver(t *testing.T) {
	_, err := NewSQLDatabase(context.Background(), DatabaseConfig{Driver: "mysql"})
	assert.Error(t, err)
}

func TestSQLDatabase_Users(t *testing.T) {
	for driver, db := range testDatabases(t) {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()

			u, err := db.CreateUser(ctx, "Jane", "jane@example.com", "hash")
			require.NoError(t, err)
			assert.NotZero(t, u.ID)
			assert.Equal(t, "jane@example.com", u.Email)
			assert.WithinDuration(t, time.Now(), u.CreatedAt, time.Hour)

			_, err = db.CreateUser(ctx, "Other Jane", "jane@example.com", "hash")
			assert.ErrorIs(t, err, ErrEmailTaken)

			byEmail, err := db.GetUserByEmail(ctx, "jane@example.com")
			require.NoError(t, err)
			assert.Equal(t, u.ID, byEmail.ID)
			assert.Equal(t, "hash", byEmail.PasswordHash)

			_, err = db.GetUserByEmail(ctx, "missing@example.com")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = db.GetUserByID(ctx, u.ID+1000)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSQLDatabase_Subscriptions(t *testing.T) {
	for driver, db := range testDatabases(t) {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()

			owner, err := db.CreateUser(ctx, "Owner", "owner-"+driver+"@example.com", "hash")
			require.NoError(t, err)
			stranger, err := db.CreateUser(ctx, "Stranger", "stranger-"+driver+"@example.com", "hash")
			require.NoError(t, err)

			start := "2026-03-01"
			created, err := db.CreateSubscription(ctx, Subscription{
				UserID:        owner.ID,
				ServiceName:   "iCloud",
				Amount:        decimal.RequireFromString("2.99"),
				StartDate:     &start,
				ManualRenewal: true,
			})
			require.NoError(t, err)
			assert.Equal(t, owner.ID, created.UserID)
			assert.True(t, decimal.RequireFromString("2.99").Equal(created.Amount))
			require.NotNil(t, created.StartDate)
			assert.Equal(t, start, *created.StartDate)
			assert.Nil(t, created.EndDate)
			assert.True(t, created.ManualRenewal)
			assert.False(t, created.AutoRenewal)

			got, err := db.GetSubscription(ctx, owner.ID, created.ID)
			require.NoError(t, err)
			assert.Equal(t, created.ServiceName, got.ServiceName)

			_, err = db.GetSubscription(ctx, stranger.ID, created.ID)
			assert.ErrorIs(t, err, ErrNotFound)

			end := "2027-03-01"
			amount := decimal.RequireFromString("3.49")
			updated, err := db.UpdateSubscription(ctx, owner.ID, created.ID, SubscriptionPatch{
				Amount:    &amount,
				StartDate: optionalDate{Set: true},
				EndDate:   optionalDate{Set: true, Value: &end},
			})
			require.NoError(t, err)
			assert.Equal(t, "iCloud", updated.ServiceName)
			assert.True(t, amount.Equal(updated.Amount))
			assert.Nil(t, updated.StartDate)
			require.NotNil(t, updated.EndDate)
			assert.Equal(t, end, *updated.EndDate)
			assert.True(t, updated.ManualRenewal)

			_, err = db.UpdateSubscription(ctx, stranger.ID, created.ID, SubscriptionPatch{Amount: &amount})
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = db.UpdateSubscription(ctx, owner.ID, created.ID, SubscriptionPatch{})
			assert.ErrorIs(t, err, ErrEmptyPatch)

			items, err := db.ListSubscriptions(ctx, owner.ID)
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, created.ID, items[0].ID)

			items, err = db.ListSubscriptions(ctx, stranger.ID)
			require.NoError(t, err)
			assert.Empty(t, items)

			assert.ErrorIs(t, db.DeleteSubscription(ctx, stranger.ID, created.ID), ErrNotFound)
			assert.NoError(t, db.DeleteSubscription(ctx, owner.ID, created.ID))
			assert.ErrorIs(t, db.DeleteSubscription(ctx, owner.ID, created.ID), ErrNotFound)
		})
	}
}

func TestNullTime_Scan(t *testing.T) {
	var n nullTime

	require.NoError(t, n.Scan("2026-10-19 08:30:00"))
	assert.True(t, n.Valid)
	assert.Equal(t, time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC), n.Time)

	require.NoError(t, n.Scan([]byte("2026-10-19")))
	assert.Equal(t, "2026-10-19", n.Time.Format(time.DateOnly))

	require.NoError(t, n.Scan(nil))
	assert.False(t, n.Valid)

	assert.Error(t, n.Scan("yesterday"))
	assert.Error(t, n.Scan(42))
}
