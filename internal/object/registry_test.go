package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabula/internal/core/basis"
	"tabula/internal/core/id"
	"tabula/internal/core/schema"
)

func testFactory(t *testing.T) (*Factory, *schema.Registry) {
	t.Helper()
	reg := schema.NewRegistry()
	reg.Register(counterpartyDef())
	reg.Register(receiptDef())
	return NewFactory(testStore(), reg), reg
}

func TestFactoryConstructsByQualifiedName(t *testing.T) {
	factory, _ := testFactory(t)

	dir, err := factory.Directory("Directories.Counterparty")
	require.NoError(t, err)
	assert.Equal(t, "Counterparty", dir.Def().Name)

	doc, err := factory.Document("Documents.GoodsReceipt")
	require.NoError(t, err)
	assert.Equal(t, "GoodsReceipt", doc.Def().Name)
}

func TestFactoryRejectsKindMismatch(t *testing.T) {
	factory, _ := testFactory(t)

	_, err := factory.Directory("Documents.GoodsReceipt")
	require.Error(t, err)
	_, err = factory.Document("Directories.Counterparty")
	require.Error(t, err)
	_, err = factory.Directory("Directories.Nothing")
	require.Error(t, err)
}

func TestFactoryForBasis(t *testing.T) {
	factory, _ := testFactory(t)
	ctx := testCtx()

	dir, err := factory.Directory("Directories.Counterparty")
	require.NoError(t, err)
	dir.New()
	require.NoError(t, dir.SetValue("description", "resolved"))
	require.NoError(t, dir.Save(ctx))

	obj, err := factory.ForBasis(ctx, dir.Basis())
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.Equal(t, dir.ID(), obj.ID())
	assert.Equal(t, "resolved", obj.Values().GetString("description"))

	// Absent identity resolves to nothing, not an error.
	obj, err = factory.ForBasis(ctx, basis.Directory("Counterparty", id.New()))
	require.NoError(t, err)
	assert.Nil(t, obj)

	_, err = factory.ForBasis(ctx, basis.Directory("Nothing", id.New()))
	require.Error(t, err)
}
