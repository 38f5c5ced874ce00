package object

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabula/internal/core/apperror"
	"tabula/internal/core/id"
	"tabula/internal/storage"
)

func TestDirectoryRoundTrip(t *testing.T) {
	store := testStore()
	ctx := testCtx()
	def := counterpartyDef()

	obj := NewDirectoryObject(store, def)
	obj.New()
	require.NoError(t, obj.SetValue("code", "CP-001"))
	require.NoError(t, obj.SetValue("description", "Acme Ltd"))
	require.NoError(t, obj.Save(ctx))

	oid := obj.ID()
	require.False(t, id.IsNil(oid))

	// Save clears the field cache; values must come from a fresh Read.
	assert.Nil(t, obj.Values().Get("code"))

	loaded := NewDirectoryObject(store, def)
	found, err := loaded.Read(ctx, oid)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "CP-001", loaded.Values().GetString("code"))
	assert.Equal(t, "Acme Ltd", loaded.Values().GetString("description"))
	assert.False(t, loaded.DeletionMark())
}

func TestDirectoryReadAbsent(t *testing.T) {
	store := testStore()
	ctx := testCtx()

	obj := NewDirectoryObject(store, counterpartyDef())
	found, err := obj.Read(ctx, id.New())
	require.NoError(t, err)
	assert.False(t, found)

	found, err = obj.Read(ctx, id.Nil())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDirectoryUpdateRegeneratesVersion(t *testing.T) {
	store := testStore()
	ctx := testCtx()
	def := counterpartyDef()

	obj := NewDirectoryObject(store, def)
	obj.New()
	require.NoError(t, obj.SetValue("description", "first"))
	require.NoError(t, obj.Save(ctx))
	oid := obj.ID()

	loaded := NewDirectoryObject(store, def)
	_, err := loaded.Read(ctx, oid)
	require.NoError(t, err)
	v1 := loaded.VersionID()
	require.NoError(t, loaded.SetValue("description", "second"))
	require.NoError(t, loaded.Save(ctx))
	v2 := loaded.VersionID()
	assert.NotEqual(t, v1, v2)

	versions, err := store.VersionsList(ctx, def.Basis(oid), 10)
	require.NoError(t, err)
	// One snapshot for the insert, one for the update.
	require.Len(t, versions, 2)
	assert.Equal(t, storage.OpUpdate, versions[0].Op)
	assert.Equal(t, storage.OpAdd, versions[1].Op)
	assert.Equal(t, "tester", versions[0].UserID)
}

func TestDirectoryUpdateNonExistent(t *testing.T) {
	store := testStore()
	ctx := testCtx()
	def := counterpartyDef()

	obj := NewDirectoryObject(store, def)
	obj.New()
	require.NoError(t, obj.Save(ctx))
	oid := obj.ID()

	loaded := NewDirectoryObject(store, def)
	_, err := loaded.Read(ctx, oid)
	require.NoError(t, err)

	// Row vanishes underneath the loaded handle.
	require.NoError(t, store.DeleteObject(ctx, def, oid))

	err = loaded.Save(ctx)
	require.Error(t, err)
	assert.True(t, apperror.IsPrecondition(err))
}

func TestDirectoryDeletionMarkRequiresSaved(t *testing.T) {
	store := testStore()
	ctx := testCtx()

	obj := NewDirectoryObject(store, counterpartyDef())
	obj.New()
	err := obj.SetDeletionMark(ctx, true)
	require.Error(t, err)
	assert.True(t, apperror.IsPrecondition(err))
}

func TestDirectoryDeletionMark(t *testing.T) {
	store := testStore()
	ctx := testCtx()
	def := counterpartyDef()

	obj := NewDirectoryObject(store, def)
	obj.New()
	require.NoError(t, obj.Save(ctx))
	require.NoError(t, obj.SetDeletionMark(ctx, true))

	loaded := NewDirectoryObject(store, def)
	found, err := loaded.Read(ctx, obj.ID())
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, loaded.DeletionMark())
}

func TestDirectorySearchable(t *testing.T) {
	store := testStore()
	ctx := testCtx()
	def := counterpartyDef()

	obj := NewDirectoryObject(store, def)
	obj.New()
	require.NoError(t, obj.SetValue("code", "CP-042"))
	require.NoError(t, obj.SetValue("description", "Globex Corporation"))
	require.NoError(t, obj.Save(ctx))

	hits, err := store.FullTextSearch(ctx, "globex", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, obj.Basis(), hits[0])
}

func TestDirectoryDeleteAtomic(t *testing.T) {
	store := testStore()
	ctx := testCtx()
	def := counterpartyDef()

	obj := NewDirectoryObject(store, def)
	obj.New()
	require.NoError(t, obj.SetValue("description", "doomed"))
	require.NoError(t, obj.Save(ctx))
	oid := obj.ID()
	b := def.Basis(oid)

	// A failure on the last delete step must roll back every prior one.
	store.FailOn("VersionsDelete", errors.New("disk gone"))
	err := obj.Delete(ctx)
	require.Error(t, err)

	exists, err := store.ExistsID(ctx, def, oid)
	require.NoError(t, err)
	assert.True(t, exists, "primary row must survive the rollback")
	hits, err := store.FullTextSearch(ctx, "doomed", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1, "full-text row must survive the rollback")

	// The injected failure is one-shot; a retry completes the delete.
	require.NoError(t, obj.Delete(ctx))
	exists, err = store.ExistsID(ctx, def, oid)
	require.NoError(t, err)
	assert.False(t, exists)
	versions, err := store.VersionsList(ctx, b, 10)
	require.NoError(t, err)
	assert.Empty(t, versions)
	hits, err = store.FullTextSearch(ctx, "doomed", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDirectoryChangeEvents(t *testing.T) {
	store := testStore()
	ctx := testCtx()
	def := counterpartyDef()

	obj := NewDirectoryObject(store, def)
	obj.New()
	require.NoError(t, obj.Save(ctx))
	require.NoError(t, obj.Delete(ctx))

	changes := store.ObjectChanges()
	require.Len(t, changes, 2)
	assert.Equal(t, storage.OpAdd, changes[0].Op)
	assert.Equal(t, storage.OpDelete, changes[1].Op)
}
