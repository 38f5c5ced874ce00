package object

import (
	"context"

	"tabula/internal/core/apperror"
	"tabula/internal/core/id"
	"tabula/internal/core/schema"
	"tabula/internal/storage"
	"tabula/pkg/logger"
)

// DirectoryObject is the persistence handle for master-data entities
// (counterparties, items, warehouses). It follows the shared protocol
// and adds a soft-deletion mark that can only be toggled after the
// entity has been saved at least once.
type DirectoryObject struct {
	object
}

// NewDirectoryObject creates an unbound instance. Call New to prepare
// an insert or Read to load an existing entity.
func NewDirectoryObject(gw storage.Gateway, def *schema.EntityDef) *DirectoryObject {
	return &DirectoryObject{object: newObject(gw, def)}
}

// New marks the instance for insertion: identity dropped, fields
// cleared.
func (o *DirectoryObject) New() {
	o.markNew()
	o.versionID = id.New()
}

// Read loads the entity by identity. Returns false without touching
// the instance when the identity is empty, the instance is marked
// new, or no row exists.
func (o *DirectoryObject) Read(ctx context.Context, oid id.ID) (bool, error) {
	if id.IsNil(oid) || o.isNew {
		return false, nil
	}
	row, err := o.gw.SelectDirectory(ctx, o.def, oid)
	if err != nil {
		return false, err
	}
	if row == nil {
		return false, nil
	}
	o.id = row.ID
	o.deletionMark = row.DeletionMark
	o.values = row.Values
	o.isSaved = true
	return true, nil
}

// Save persists the instance: insert when marked new, update
// otherwise. Updating an identity that is no longer present is a
// precondition violation. The in-memory field cache is cleared
// afterward regardless of outcome, so a fresh Read is required before
// the next operation.
func (o *DirectoryObject) Save(ctx context.Context) error {
	defer o.values.Clear()

	if o.isNew {
		if id.IsNil(o.id) {
			o.id = id.New()
		}
		row := &storage.DirectoryRow{ID: o.id, DeletionMark: o.deletionMark, Values: o.values.Clone()}
		err := o.saveTx(ctx, func(ctx context.Context) error {
			return o.gw.InsertDirectory(ctx, o.def, row)
		}, storage.OpAdd)
		if err != nil {
			return err
		}
		o.isNew = false
		o.isSaved = true
		logger.Debug(ctx, "directory created", "basis", o.Basis().String())
		return nil
	}

	if id.IsNil(o.id) {
		return apperror.NewPrecondition("save requires identity or a new mark").
			WithDetail("entity", o.def.QualifiedName())
	}
	exists, err := o.gw.ExistsID(ctx, o.def, o.id)
	if err != nil {
		return err
	}
	if !exists {
		return apperror.NewPrecondition("attempt to update a non-existent record").
			WithDetail("entity", o.def.QualifiedName()).
			WithDetail("id", o.id.String())
	}
	if o.def.Versioning {
		// Fresh version per save so every snapshot has its own key.
		o.versionID = id.New()
	}
	row := &storage.DirectoryRow{ID: o.id, DeletionMark: o.deletionMark, Values: o.values.Clone()}
	err = o.saveTx(ctx, func(ctx context.Context) error {
		return o.gw.UpdateDirectory(ctx, o.def, row)
	}, storage.OpUpdate)
	if err != nil {
		return err
	}
	o.isSaved = true
	return nil
}

// SetDeletionMark toggles the soft-delete flag. Calling it on an
// instance that was never saved is caller misuse.
func (o *DirectoryObject) SetDeletionMark(ctx context.Context, marked bool) error {
	if !o.isSaved || id.IsNil(o.id) {
		return apperror.NewPrecondition("deletion mark requires a saved object").
			WithDetail("entity", o.def.QualifiedName())
	}
	if err := o.gw.SetDeletionMark(ctx, o.def, o.id, marked); err != nil {
		return err
	}
	o.deletionMark = marked
	o.emitChange(ctx, storage.OpUpdate)
	return nil
}

// Delete removes the entity, its table parts, its full-text row and
// its whole version history atomically.
func (o *DirectoryObject) Delete(ctx context.Context) error {
	return o.deleteTx(ctx)
}

// TablePart returns a handle for one of the entity's child-row
// collections.
func (o *DirectoryObject) TablePart(name string) (*TablePart, error) {
	def, ok := o.def.TablePart(name)
	if !ok {
		return nil, apperror.NewValidation("unknown table part").
			WithDetail("entity", o.def.QualifiedName()).
			WithDetail("table_part", name)
	}
	return NewTablePart(o.gw, def), nil
}
