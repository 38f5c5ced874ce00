package object

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabula/internal/core/apperror"
	"tabula/internal/core/basis"
	"tabula/internal/core/id"
	"tabula/internal/core/session"
)

func TestLockAcquireConflict(t *testing.T) {
	store := testStore()
	locks := NewLockManager(store)
	b := basis.New(basis.KindDirectory, "Counterparty", id.New())

	alice := session.WithSession(context.Background(), session.Session{UserID: "alice", SessionID: "a-1"})
	bob := session.WithSession(context.Background(), session.Session{UserID: "bob", SessionID: "b-1"})

	require.NoError(t, locks.Acquire(alice, b))

	err := locks.Acquire(bob, b)
	require.Error(t, err)
	assert.True(t, apperror.IsLocked(err))

	info, err := locks.Info(bob, b)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "alice", info.UserID)
}

func TestLockReacquireSameSession(t *testing.T) {
	store := testStore()
	locks := NewLockManager(store)
	b := basis.New(basis.KindDocument, "GoodsReceipt", id.New())
	ctx := testCtx()

	require.NoError(t, locks.Acquire(ctx, b))
	// Re-acquiring refreshes the hold instead of conflicting.
	require.NoError(t, locks.Acquire(ctx, b))

	require.NoError(t, locks.Release(ctx, b))
	held, err := locks.IsLocked(ctx, b)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestLockReleaseForeignIsNoop(t *testing.T) {
	store := testStore()
	locks := NewLockManager(store)
	b := basis.New(basis.KindDirectory, "Counterparty", id.New())

	alice := session.WithSession(context.Background(), session.Session{UserID: "alice", SessionID: "a-1"})
	bob := session.WithSession(context.Background(), session.Session{UserID: "bob", SessionID: "b-1"})

	require.NoError(t, locks.Acquire(alice, b))
	require.NoError(t, locks.Release(bob, b))

	held, err := locks.IsLocked(alice, b)
	require.NoError(t, err)
	assert.True(t, held)
}

func TestLockRequiresSession(t *testing.T) {
	store := testStore()
	locks := NewLockManager(store)
	b := basis.New(basis.KindDirectory, "Counterparty", id.New())

	err := locks.Acquire(context.Background(), b)
	require.Error(t, err)
	assert.True(t, apperror.IsPrecondition(err))
}

func TestLockSweep(t *testing.T) {
	store := testStore()
	locks := NewLockManager(store)
	ctx := testCtx()
	b := basis.New(basis.KindDirectory, "Counterparty", id.New())

	require.NoError(t, locks.Acquire(ctx, b))

	// Nothing is older than a generous TTL.
	removed, err := locks.Sweep(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)

	// A zero TTL expires everything held right now.
	removed, err = locks.Sweep(ctx, -time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	held, err := locks.IsLocked(ctx, b)
	require.NoError(t, err)
	assert.False(t, held)
}
