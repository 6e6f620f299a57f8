package integration

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brasshelm/birdtext/internal/models"
	"github.com/brasshelm/birdtext/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginAttemptRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	defer testDB.Teardown(ctx)

	_, attemptRepo, _, _ := InitializeRepositories(testDB.DB)

	cleanup := func(t *testing.T) {
		t.Helper()
		require.NoError(t, testDB.CleanupTables(ctx))
	}

	t.Run("record attempt inserts then increments", func(t *testing.T) {
		cleanup(t)

		for i := 0; i < 5; i++ {
			require.NoError(t, attemptRepo.RecordAttempt(ctx, "alice", models.IdentifierUsername))
		}

		record, err := attemptRepo.Get(ctx, "alice", models.IdentifierUsername)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, 5, record.AttemptCount)
		assert.WithinDuration(t, time.Now(), record.WindowStart, 5*time.Second)
		assert.WithinDuration(t, time.Now(), record.LastAttempt, 5*time.Second)
	})

	t.Run("identifiers of different types do not collide", func(t *testing.T) {
		cleanup(t)

		require.NoError(t, attemptRepo.RecordAttempt(ctx, "alice", models.IdentifierUsername))
		require.NoError(t, attemptRepo.RecordAttempt(ctx, "alice", models.IdentifierIP))
		require.NoError(t, attemptRepo.RecordAttempt(ctx, "alice", models.IdentifierIP))

		byUsername, err := attemptRepo.Get(ctx, "alice", models.IdentifierUsername)
		require.NoError(t, err)
		byIP, err := attemptRepo.Get(ctx, "alice", models.IdentifierIP)
		require.NoError(t, err)

		assert.Equal(t, 1, byUsername.AttemptCount)
		assert.Equal(t, 2, byIP.AttemptCount)
	})

	t.Run("active lock is visible until it expires", func(t *testing.T) {
		cleanup(t)

		require.NoError(t, attemptRepo.RecordAttempt(ctx, "bob", models.IdentifierUsername))
		require.NoError(t, attemptRepo.SetLock(ctx, "bob", models.IdentifierUsername, time.Now().Add(15*time.Minute)))

		locked, err := attemptRepo.GetActiveLock(ctx, "bob", models.IdentifierUsername)
		require.NoError(t, err)
		require.NotNil(t, locked)
		require.NotNil(t, locked.LockedUntil)

		// Expire the lock directly
		_, err = testDB.Pool.Exec(ctx,
			`UPDATE login_attempts SET locked_until = NOW() - INTERVAL '1 minute' WHERE identifier = 'bob'`)
		require.NoError(t, err)

		locked, err = attemptRepo.GetActiveLock(ctx, "bob", models.IdentifierUsername)
		require.NoError(t, err)
		assert.Nil(t, locked)

		// History survives lock expiry
		record, err := attemptRepo.Get(ctx, "bob", models.IdentifierUsername)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, 1, record.AttemptCount)
	})

	t.Run("delete clears history and is idempotent", func(t *testing.T) {
		cleanup(t)

		require.NoError(t, attemptRepo.RecordAttempt(ctx, "carol", models.IdentifierUsername))
		require.NoError(t, attemptRepo.Delete(ctx, "carol", models.IdentifierUsername))

		record, err := attemptRepo.Get(ctx, "carol", models.IdentifierUsername)
		require.NoError(t, err)
		assert.Nil(t, record)

		require.NoError(t, attemptRepo.Delete(ctx, "carol", models.IdentifierUsername))
	})

	t.Run("delete stale keeps young windows and active locks", func(t *testing.T) {
		cleanup(t)

		require.NoError(t, attemptRepo.RecordAttempt(ctx, "young", models.IdentifierUsername))
		require.NoError(t, attemptRepo.RecordAttempt(ctx, "stale", models.IdentifierUsername))
		require.NoError(t, attemptRepo.RecordAttempt(ctx, "stale-locked", models.IdentifierUsername))

		_, err := testDB.Pool.Exec(ctx,
			`UPDATE login_attempts SET window_start = NOW() - INTERVAL '25 hours' WHERE identifier IN ('stale', 'stale-locked')`)
		require.NoError(t, err)
		require.NoError(t, attemptRepo.SetLock(ctx, "stale-locked", models.IdentifierUsername, time.Now().Add(12*time.Hour)))

		removed, err := attemptRepo.DeleteStale(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, removed)

		record, err := attemptRepo.Get(ctx, "stale", models.IdentifierUsername)
		require.NoError(t, err)
		assert.Nil(t, record, "stale unlocked row should be gone")

		record, err = attemptRepo.Get(ctx, "stale-locked", models.IdentifierUsername)
		require.NoError(t, err)
		assert.NotNil(t, record, "actively locked row must survive cleanup")

		record, err = attemptRepo.Get(ctx, "young", models.IdentifierUsername)
		require.NoError(t, err)
		assert.NotNil(t, record)
	})

	t.Run("guard locks after five recorded failures", func(t *testing.T) {
		cleanup(t)

		guard := services.NewLoginGuard(attemptRepo, nil, nil, slog.New(slog.NewJSONHandler(io.Discard, nil)))

		for i := 0; i < 5; i++ {
			check, err := guard.Check(ctx, "dave", models.IdentifierUsername)
			require.NoError(t, err)
			require.True(t, check.Allowed)
			require.NoError(t, guard.Record(ctx, "dave", models.IdentifierUsername))
		}

		check, err := guard.Check(ctx, "dave", models.IdentifierUsername)
		require.NoError(t, err)
		assert.False(t, check.Allowed)
		assert.Equal(t, models.ReasonRateLimitExceeded, check.Reason)
		assert.Equal(t, "5+ attempts in 15 minutes", check.LockReason)

		// Case variations hit the same counter
		check, err = guard.Check(ctx, "DAVE", models.IdentifierUsername)
		require.NoError(t, err)
		assert.False(t, check.Allowed)
		assert.Equal(t, models.ReasonAccountLocked, check.Reason)

		require.NoError(t, guard.Clear(ctx, "dave", models.IdentifierUsername))
		check, err = guard.Check(ctx, "dave", models.IdentifierUsername)
		require.NoError(t, err)
		assert.True(t, check.Allowed, "clear wipes the row, lock included")
	})
}
