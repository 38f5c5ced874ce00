package object

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabula/internal/core/apperror"
	"tabula/internal/core/id"
)

func TestDocumentRoundTrip(t *testing.T) {
	store := testStore()
	ctx := testCtx()
	def := receiptDef()

	doc := NewDocumentObject(store, def)
	doc.New()
	require.NoError(t, doc.SetValue("number", "GR-0001"))
	require.NoError(t, doc.Save(ctx))

	loaded := NewDocumentObject(store, def)
	found, err := loaded.Read(ctx, doc.ID())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "GR-0001", loaded.Values().GetString("number"))
	assert.False(t, loaded.Spent())
	assert.True(t, loaded.SpendDate().IsZero())
}

func TestDocumentSpend(t *testing.T) {
	store := testStore()
	ctx := testCtx()
	def := receiptDef()
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	doc := NewDocumentObject(store, def)
	doc.New()
	require.NoError(t, doc.Save(ctx))
	require.NoError(t, doc.Spend(ctx, true, date))
	assert.True(t, doc.Spent())
	assert.Equal(t, date, doc.SpendDate())

	loaded := NewDocumentObject(store, def)
	found, err := loaded.Read(ctx, doc.ID())
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, loaded.Spent())
	assert.True(t, date.Equal(loaded.SpendDate()))
}

func TestDocumentSpendRequiresSaved(t *testing.T) {
	store := testStore()
	ctx := testCtx()

	doc := NewDocumentObject(store, receiptDef())
	doc.New()
	err := doc.Spend(ctx, true, time.Now())
	require.Error(t, err)
	assert.True(t, apperror.IsPrecondition(err))
}

func TestDocumentSpendClearsDeletionMark(t *testing.T) {
	store := testStore()
	ctx := testCtx()
	def := receiptDef()
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	doc := NewDocumentObject(store, def)
	doc.New()
	require.NoError(t, doc.Save(ctx))
	require.NoError(t, doc.SetDeletionMark(ctx, true))

	// Posting clears the mark.
	require.NoError(t, doc.Spend(ctx, true, date))
	loaded := NewDocumentObject(store, def)
	_, err := loaded.Read(ctx, doc.ID())
	require.NoError(t, err)
	assert.False(t, loaded.DeletionMark())

	// Unposting leaves whatever mark is present untouched.
	require.NoError(t, doc.SetDeletionMark(ctx, true))
	require.NoError(t, doc.Spend(ctx, false, date))
	loaded = NewDocumentObject(store, def)
	_, err = loaded.Read(ctx, doc.ID())
	require.NoError(t, err)
	assert.True(t, loaded.DeletionMark())
	assert.False(t, loaded.Spent())
}

func TestDocumentVersionStableAcrossUpdates(t *testing.T) {
	store := testStore()
	ctx := testCtx()
	def := receiptDef()

	doc := NewDocumentObject(store, def)
	doc.New()
	v1 := doc.VersionID()
	require.NoError(t, doc.Save(ctx))

	loaded := NewDocumentObject(store, def)
	_, err := loaded.Read(ctx, doc.ID())
	require.NoError(t, err)
	require.NoError(t, loaded.SetValue("comment", "amended"))
	require.NoError(t, loaded.Save(ctx))

	// Documents keep one version identity per logical document; only
	// New regenerates it, and a read restores it.
	assert.Equal(t, v1, doc.VersionID())
	assert.Equal(t, v1, loaded.VersionID())

	fresh := NewDocumentObject(store, def)
	fresh.New()
	assert.NotEqual(t, v1, fresh.VersionID())
}

func TestDocumentReadThenUpdateKeepsVersionKey(t *testing.T) {
	store := testStore()
	ctx := testCtx()
	def := receiptDef()

	doc := NewDocumentObject(store, def)
	doc.New()
	require.NoError(t, doc.SetValue("number", "GR-0002"))
	require.NoError(t, doc.Save(ctx))
	v1 := doc.VersionID()
	require.False(t, id.IsNil(v1))

	loaded := NewDocumentObject(store, def)
	found, err := loaded.Read(ctx, doc.ID())
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, loaded.SetValue("comment", "amended"))
	require.NoError(t, loaded.Save(ctx))

	// The update snapshot must carry the persisted version identity,
	// not a zero key from a freshly constructed instance.
	versions, err := store.VersionsList(ctx, def.Basis(doc.ID()), 10)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	for _, v := range versions {
		assert.Equal(t, v1, v.VersionID)
	}
}

func TestDocumentDeleteRemovesTableParts(t *testing.T) {
	store := testStore()
	ctx := testCtx()
	def := receiptDef()

	doc := NewDocumentObject(store, def)
	doc.New()
	require.NoError(t, doc.Save(ctx))

	part, err := doc.TablePart("goods")
	require.NoError(t, err)
	rec := part.Def().NewRecord()
	rec.MustSet("nomenclature", id.New())
	rec.MustSet("quantity", "5")
	_, err = part.Save(ctx, id.Nil(), doc.ID(), rec)
	require.NoError(t, err)

	oid := doc.ID()
	require.NoError(t, doc.Delete(ctx))

	partDef, _ := def.TablePart("goods")
	rows, err := store.SelectTableParts(ctx, partDef, oid)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDocumentUnknownTablePart(t *testing.T) {
	store := testStore()

	doc := NewDocumentObject(store, receiptDef())
	doc.New()
	_, err := doc.TablePart("bogus")
	require.Error(t, err)
}
