package register

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabula/internal/core/id"
	"tabula/internal/storage"
	"tabula/internal/storage/memory"
)

func enqueue(t *testing.T, store *memory.Store, period time.Time, owner id.ID, action storage.TriggerAction) {
	t.Helper()
	err := store.RegisterTriggerAdd(sessionCtx(), &storage.RegisterTrigger{
		ID:        id.New(),
		Register:  "Stock",
		Period:    period,
		OwnerID:   owner,
		Action:    action,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestRecalculatorComputesBalance(t *testing.T) {
	store := memory.NewStore()
	recalc := NewRecalculator(store, testRegistry(), 10)
	acc := NewAccumulation(store, stockDef())
	ctx := sessionCtx()
	period := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	owner := id.New()

	require.NoError(t, acc.Save(ctx, []storage.Movement{
		stockMovement(owner, period, true, 10),
		stockMovement(owner, period, true, 5),
		stockMovement(owner, period, false, 3),
	}))
	enqueue(t, store, period, owner, storage.TriggerAdd)

	n, err := recalc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	bal, err := acc.Balance(ctx, period)
	require.NoError(t, err)
	require.NotNil(t, bal)
	assert.True(t, decimal.NewFromInt(15).Equal(bal.Income["quantity"]))
	assert.True(t, decimal.NewFromInt(3).Equal(bal.Expense["quantity"]))
	assert.True(t, decimal.NewFromInt(150).Equal(bal.Income["amount"]))

	// The batch is consumed.
	depth, err := store.TriggerDepth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestRecalculatorDeletesEmptiedBalance(t *testing.T) {
	store := memory.NewStore()
	recalc := NewRecalculator(store, testRegistry(), 10)
	acc := NewAccumulation(store, stockDef())
	ctx := sessionCtx()
	period := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	owner := id.New()

	require.NoError(t, acc.Save(ctx, []storage.Movement{
		stockMovement(owner, period, true, 10),
	}))
	enqueue(t, store, period, owner, storage.TriggerAdd)
	_, err := recalc.RunOnce(ctx)
	require.NoError(t, err)

	// The document is un-posted; recomputing the now-empty period
	// drops the balance row instead of leaving a stale total.
	require.NoError(t, acc.Delete(ctx, owner))
	enqueue(t, store, period, owner, storage.TriggerClear)
	_, err = recalc.RunOnce(ctx)
	require.NoError(t, err)

	bal, err := acc.Balance(ctx, period)
	require.NoError(t, err)
	assert.Nil(t, bal)
}

func TestRecalculatorSkipsIgnoredOwners(t *testing.T) {
	store := memory.NewStore()
	recalc := NewRecalculator(store, testRegistry(), 10)
	acc := NewAccumulation(store, stockDef())
	ctx := sessionCtx()
	period := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	owner := id.New()

	require.NoError(t, acc.Save(ctx, []storage.Movement{
		stockMovement(owner, period, true, 10),
	}))
	require.NoError(t, store.IgnoreAdd(ctx, &storage.IgnoreEntry{
		UserID:     "tester",
		SessionID:  "sess-1",
		DocumentID: owner,
		CreatedAt:  time.Now().UTC(),
	}))
	enqueue(t, store, period, owner, storage.TriggerAdd)

	n, err := recalc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	bal, err := acc.Balance(ctx, period)
	require.NoError(t, err)
	assert.Nil(t, bal)

	// Consolidated triggers carry no owner and are never suppressed.
	enqueue(t, store, period, id.Nil(), storage.TriggerAdd)
	n, err = recalc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	bal, err = acc.Balance(ctx, period)
	require.NoError(t, err)
	require.NotNil(t, bal)
}

func TestRecalculatorIdempotent(t *testing.T) {
	store := memory.NewStore()
	recalc := NewRecalculator(store, testRegistry(), 10)
	acc := NewAccumulation(store, stockDef())
	ctx := sessionCtx()
	period := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	owner := id.New()

	require.NoError(t, acc.Save(ctx, []storage.Movement{
		stockMovement(owner, period, true, 4),
	}))

	// Duplicate triggers for the same period collapse into one
	// recomputation, and replaying later changes nothing.
	enqueue(t, store, period, owner, storage.TriggerAdd)
	enqueue(t, store, period, owner, storage.TriggerAdd)
	n, err := recalc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	enqueue(t, store, period, owner, storage.TriggerAdd)
	_, err = recalc.RunOnce(ctx)
	require.NoError(t, err)

	bal, err := acc.Balance(ctx, period)
	require.NoError(t, err)
	require.NotNil(t, bal)
	assert.True(t, decimal.NewFromInt(4).Equal(bal.Income["quantity"]))
}

func TestRecalculatorEmptyQueue(t *testing.T) {
	store := memory.NewStore()
	recalc := NewRecalculator(store, testRegistry(), 10)

	n, err := recalc.RunOnce(sessionCtx())
	require.NoError(t, err)
	assert.Zero(t, n)
}
