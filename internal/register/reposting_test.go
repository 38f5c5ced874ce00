package register

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabula/internal/core/apperror"
	"tabula/internal/core/id"
	"tabula/internal/object"
	"tabula/internal/storage"
	"tabula/internal/storage/memory"
)

const receiptType = "Documents.GoodsReceipt"

// singleStockSource emits one income movement per document, dated by
// the document itself.
func singleStockSource(t *testing.T) MovementSource {
	t.Helper()
	return func(ctx context.Context, doc *object.DocumentObject) (map[string][]storage.Movement, error) {
		return map[string][]storage.Movement{
			"Stock": {stockMovement(id.Nil(), time.Time{}, true, 1)},
		}, nil
	}
}

func newReceipt(t *testing.T, factory *object.Factory, ctx context.Context, date time.Time) *object.DocumentObject {
	t.Helper()
	doc, err := factory.Document(receiptType)
	require.NoError(t, err)
	doc.New()
	require.NoError(t, doc.Save(ctx))
	require.NoError(t, doc.Spend(ctx, true, date))
	return doc
}

func TestRepostRequiresSession(t *testing.T) {
	store := memory.NewStore()
	factory := object.NewFactory(store, testRegistry())
	reposter := NewReposter(store, factory, singleStockSource(t))

	_, err := reposter.Repost(context.Background(), receiptType, []id.ID{id.New()})
	require.Error(t, err)
	assert.True(t, apperror.IsPrecondition(err))
}

func TestRepostMissingDocument(t *testing.T) {
	store := memory.NewStore()
	factory := object.NewFactory(store, testRegistry())
	reposter := NewReposter(store, factory, singleStockSource(t))

	_, err := reposter.Repost(sessionCtx(), receiptType, []id.ID{id.New()})
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestRepostRegeneratesMovements(t *testing.T) {
	store := memory.NewStore()
	factory := object.NewFactory(store, testRegistry())
	reposter := NewReposter(store, factory, singleStockSource(t))
	ctx := sessionCtx()
	date := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)

	doc := newReceipt(t, factory, ctx, date)

	// Stale movements from a previous posting.
	acc := NewAccumulation(store, stockDef())
	require.NoError(t, acc.Save(ctx, []storage.Movement{
		stockMovement(doc.ID(), date, true, 99),
		stockMovement(doc.ID(), date, true, 98),
	}))

	result, err := reposter.Repost(ctx, receiptType, []id.ID{doc.ID()})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.False(t, result.Cancelled)

	rows, err := acc.Movements(ctx, doc.ID())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, doc.ID(), rows[0].OwnerID)
	assert.Equal(t, receiptType, rows[0].OwnerType)
	assert.True(t, date.Equal(rows[0].Period))

	// Ignore markers never outlive the run.
	live, err := store.IgnoreActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestRepostDateChangeTouchesBothPeriods(t *testing.T) {
	store := memory.NewStore()
	factory := object.NewFactory(store, testRegistry())
	reposter := NewReposter(store, factory, singleStockSource(t))
	ctx := sessionCtx()
	oldDate := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	newDate := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)

	doc := newReceipt(t, factory, ctx, oldDate)
	acc := NewAccumulation(store, stockDef())
	require.NoError(t, acc.Save(ctx, []storage.Movement{
		stockMovement(doc.ID(), oldDate, true, 5),
	}))

	// The document moves to a later date before the re-posting run.
	require.NoError(t, doc.Spend(ctx, true, newDate))

	result, err := reposter.Repost(ctx, receiptType, []id.ID{doc.ID()})
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)

	rows, err := acc.Movements(ctx, doc.ID())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, newDate.Equal(rows[0].Period))

	// Consolidated triggers cover both periods: the abandoned one as a
	// clear, the one the document landed on as an add.
	triggers, err := store.TriggersTake(ctx, 10)
	require.NoError(t, err)
	actions := map[time.Time]storage.TriggerAction{}
	for _, tr := range triggers {
		assert.Equal(t, "Stock", tr.Register)
		assert.True(t, id.IsNil(tr.OwnerID))
		actions[tr.Period] = tr.Action
	}
	assert.Equal(t, storage.TriggerClear, actions[oldDate])
	assert.Equal(t, storage.TriggerAdd, actions[newDate])
}

func TestRepostProcessesInDateOrder(t *testing.T) {
	store := memory.NewStore()
	factory := object.NewFactory(store, testRegistry())

	var order []time.Time
	source := func(ctx context.Context, doc *object.DocumentObject) (map[string][]storage.Movement, error) {
		order = append(order, doc.SpendDate())
		return map[string][]storage.Movement{
			"Stock": {stockMovement(id.Nil(), time.Time{}, true, 1)},
		}, nil
	}
	reposter := NewReposter(store, factory, source)
	ctx := sessionCtx()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	later := newReceipt(t, factory, ctx, base.AddDate(0, 0, 5))
	earlier := newReceipt(t, factory, ctx, base)

	// Passed latest-first; processed in spend-date order regardless.
	result, err := reposter.Repost(ctx, receiptType, []id.ID{later.ID(), earlier.ID()})
	require.NoError(t, err)
	require.Equal(t, 2, result.Processed)
	require.Len(t, order, 2)
	assert.True(t, order[0].Before(order[1]))
}

func TestRepostMidRunFailureStillEmitsTriggers(t *testing.T) {
	store := memory.NewStore()
	factory := object.NewFactory(store, testRegistry())
	ctx := sessionCtx()

	calls := 0
	source := func(ctx context.Context, doc *object.DocumentObject) (map[string][]storage.Movement, error) {
		calls++
		if calls == 2 {
			return nil, apperror.NewDatabase("movement source failed", nil)
		}
		return map[string][]storage.Movement{
			"Stock": {stockMovement(id.Nil(), time.Time{}, true, 1)},
		}, nil
	}
	reposter := NewReposter(store, factory, source)

	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	first := newReceipt(t, factory, ctx, base)
	second := newReceipt(t, factory, ctx, base.AddDate(0, 0, 1))
	third := newReceipt(t, factory, ctx, base.AddDate(0, 0, 2))

	result, err := reposter.Repost(ctx, receiptType, []id.ID{first.ID(), second.ID(), third.ID()})
	require.Error(t, err)
	assert.Equal(t, 1, result.Processed)

	// The first document's movements are durable.
	acc := NewAccumulation(store, stockDef())
	rows, err := acc.Movements(ctx, first.ID())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// And its period still gets the consolidated trigger even though
	// the run aborted before finishing.
	triggers, err := store.TriggersTake(ctx, 10)
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, "Stock", triggers[0].Register)
	assert.True(t, id.IsNil(triggers[0].OwnerID))
	assert.True(t, base.Equal(triggers[0].Period))

	// Markers never outlive the run, failed or not.
	live, err := store.IgnoreActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestRepostCancellationKeepsCommittedWork(t *testing.T) {
	store := memory.NewStore()
	factory := object.NewFactory(store, testRegistry())
	ctx, cancel := context.WithCancel(sessionCtx())
	defer cancel()

	const total = 50
	const stopAfter = 20

	calls := 0
	source := func(ctx context.Context, doc *object.DocumentObject) (map[string][]storage.Movement, error) {
		calls++
		if calls == stopAfter {
			cancel()
		}
		return map[string][]storage.Movement{
			"Stock": {stockMovement(id.Nil(), time.Time{}, true, 1)},
		}, nil
	}
	reposter := NewReposter(store, factory, source)

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	ids := make([]id.ID, 0, total)
	docs := make([]*object.DocumentObject, 0, total)
	for i := 0; i < total; i++ {
		doc := newReceipt(t, factory, ctx, base.AddDate(0, 0, i))
		ids = append(ids, doc.ID())
		docs = append(docs, doc)
	}

	result, err := reposter.Repost(ctx, receiptType, ids)
	require.NoError(t, err)
	assert.Equal(t, stopAfter, result.Processed)
	assert.True(t, result.Cancelled)

	// Committed documents keep their regenerated movements; the rest
	// were never touched.
	acc := NewAccumulation(store, stockDef())
	bg := sessionCtx()
	for i, doc := range docs {
		rows, err := acc.Movements(bg, doc.ID())
		require.NoError(t, err)
		if i < stopAfter {
			assert.Len(t, rows, 1, "doc %d should be re-posted", i)
		} else {
			assert.Empty(t, rows, "doc %d should be untouched", i)
		}
	}

	// Markers are cleared even on a cancelled run, and the touched
	// periods still got their consolidated triggers.
	live, err := store.IgnoreActive(bg)
	require.NoError(t, err)
	assert.Empty(t, live)
	depth, err := store.TriggerDepth(bg)
	require.NoError(t, err)
	assert.Equal(t, int64(stopAfter), depth)
}
