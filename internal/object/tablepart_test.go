package object

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabula/internal/core/id"
	"tabula/internal/core/schema"
)

func goodsRecord(t *testing.T, qty string) schema.Record {
	t.Helper()
	def := receiptDef()
	part, _ := def.TablePart("goods")
	rec := part.NewRecord()
	rec.MustSet("nomenclature", id.New())
	rec.MustSet("quantity", qty)
	return rec
}

func TestTablePartSaveAndRead(t *testing.T) {
	store := testStore()
	ctx := testCtx()
	owner := id.New()
	def := receiptDef()
	partDef, _ := def.TablePart("goods")

	part := NewTablePart(store, partDef)
	rowID, err := part.Save(ctx, id.Nil(), owner, goodsRecord(t, "3"))
	require.NoError(t, err)
	require.False(t, id.IsNil(rowID))
	_, err = part.Save(ctx, id.Nil(), owner, goodsRecord(t, "7"))
	require.NoError(t, err)

	require.NoError(t, part.Read(ctx, owner))
	rows := part.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, owner, part.OwnerID())
	assert.True(t, decimal.NewFromInt(3).Equal(rows[0].Values.GetDecimal("quantity")))
}

func TestTablePartRewriteReplaces(t *testing.T) {
	store := testStore()
	ctx := testCtx()
	owner := id.New()
	def := receiptDef()
	partDef, _ := def.TablePart("goods")

	part := NewTablePart(store, partDef)
	_, err := part.Save(ctx, id.Nil(), owner, goodsRecord(t, "1"))
	require.NoError(t, err)
	_, err = part.Save(ctx, id.Nil(), owner, goodsRecord(t, "2"))
	require.NoError(t, err)

	err = part.Rewrite(ctx, owner, []schema.Record{goodsRecord(t, "10")})
	require.NoError(t, err)

	require.NoError(t, part.Read(ctx, owner))
	require.Len(t, part.Rows(), 1)
	assert.True(t, decimal.NewFromInt(10).Equal(part.Rows()[0].Values.GetDecimal("quantity")))
}

func TestTablePartRewriteAtomic(t *testing.T) {
	store := testStore()
	ctx := testCtx()
	owner := id.New()
	def := receiptDef()
	partDef, _ := def.TablePart("goods")

	part := NewTablePart(store, partDef)
	_, err := part.Save(ctx, id.Nil(), owner, goodsRecord(t, "1"))
	require.NoError(t, err)

	// The reinsert fails mid-rewrite: the old rows must come back.
	store.FailOn("InsertTablePart", errors.New("constraint violated"))
	err = part.Rewrite(ctx, owner, []schema.Record{goodsRecord(t, "10"), goodsRecord(t, "20")})
	require.Error(t, err)

	require.NoError(t, part.Read(ctx, owner))
	require.Len(t, part.Rows(), 1)
	assert.True(t, decimal.NewFromInt(1).Equal(part.Rows()[0].Values.GetDecimal("quantity")))
}

func TestTablePartOwnerVersionSnapshots(t *testing.T) {
	store := testStore()
	ctx := testCtx()
	def := receiptDef()

	doc := NewDocumentObject(store, def)
	doc.New()
	require.NoError(t, doc.Save(ctx))

	part, err := doc.TablePart("goods")
	require.NoError(t, err)
	_, err = part.Save(ctx, id.Nil(), doc.ID(), goodsRecord(t, "4"))
	require.NoError(t, err)

	// The document's own save snapshot plus one per row save, all
	// keyed by the owner's basis.
	versions, err := store.VersionsList(ctx, doc.Basis(), 10)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestTablePartSnapshotThroughReadDocument(t *testing.T) {
	store := testStore()
	ctx := testCtx()
	def := receiptDef()

	doc := NewDocumentObject(store, def)
	doc.New()
	require.NoError(t, doc.Save(ctx))

	// Row saves through a document that was read back, not freshly
	// created, must still snapshot against the owner's version.
	loaded := NewDocumentObject(store, def)
	found, err := loaded.Read(ctx, doc.ID())
	require.NoError(t, err)
	require.True(t, found)

	part, err := loaded.TablePart("goods")
	require.NoError(t, err)
	_, err = part.Save(ctx, id.Nil(), loaded.ID(), goodsRecord(t, "9"))
	require.NoError(t, err)

	versions, err := store.VersionsList(ctx, loaded.Basis(), 10)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, loaded.VersionID(), versions[0].VersionID)
	assert.False(t, id.IsNil(versions[0].VersionID))
}

func TestTablePartRequiresOwner(t *testing.T) {
	store := testStore()
	ctx := testCtx()
	def := receiptDef()
	partDef, _ := def.TablePart("goods")

	part := NewTablePart(store, partDef)
	require.Error(t, part.Read(ctx, id.Nil()))
	_, err := part.Save(ctx, id.Nil(), id.Nil(), goodsRecord(t, "1"))
	require.Error(t, err)
	require.Error(t, part.Delete(ctx, id.Nil()))
	require.Error(t, part.Rewrite(ctx, id.Nil(), nil))
}
