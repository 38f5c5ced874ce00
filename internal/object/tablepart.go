package object

import (
	"context"
	"time"

	"tabula/internal/core/apperror"
	"tabula/internal/core/basis"
	"tabula/internal/core/id"
	"tabula/internal/core/schema"
	"tabula/internal/storage"
)

// TablePart is the handle for one owner-scoped child-row collection.
// Reads fully replace the in-memory row set; saves always insert — a
// logical replace is delete-then-reinsert at the caller level. Batches
// of row writes are made atomic with the owner by wrapping them in the
// gateway's transaction.
type TablePart struct {
	gw  storage.Gateway
	def *schema.TablePartDef

	ownerID id.ID
	rows    []storage.TablePartRow

	// owner versioning identity; zero until SetOwnerVersion. A table
	// part has no version identity of its own — snapshots are gated on
	// the owner's.
	ownerBasis   basis.Basis
	ownerVersion id.ID
}

// NewTablePart creates a handle for the given table part definition.
func NewTablePart(gw storage.Gateway, def *schema.TablePartDef) *TablePart {
	return &TablePart{gw: gw, def: def}
}

// Def returns the table part definition.
func (t *TablePart) Def() *schema.TablePartDef { return t.def }

// SetOwnerVersion enables per-row version snapshots keyed by the
// owner's version identifier and reference.
func (t *TablePart) SetOwnerVersion(owner basis.Basis, versionID id.ID) {
	t.ownerBasis = owner
	t.ownerVersion = versionID
}

// Read re-queries the rows for the owner, fully replacing any
// previously loaded set.
func (t *TablePart) Read(ctx context.Context, owner id.ID) error {
	if id.IsNil(owner) {
		return apperror.NewPrecondition("table part read requires an owner").
			WithDetail("table_part", t.def.Name)
	}
	rows, err := t.gw.SelectTableParts(ctx, t.def, owner)
	if err != nil {
		return err
	}
	t.ownerID = owner
	t.rows = rows
	return nil
}

// OwnerID returns the owner of the last Read.
func (t *TablePart) OwnerID() id.ID { return t.ownerID }

// Rows returns the in-memory row set from the last Read.
func (t *TablePart) Rows() []storage.TablePartRow { return t.rows }

// Save inserts one row for the owner, generating a row identifier
// when rowID is nil. When the owner's version identity is set, one
// snapshot of the row values is appended to the version history.
func (t *TablePart) Save(ctx context.Context, rowID id.ID, owner id.ID, values schema.Record) (id.ID, error) {
	if id.IsNil(owner) {
		return id.Nil(), apperror.NewPrecondition("table part save requires an owner").
			WithDetail("table_part", t.def.Name)
	}
	if id.IsNil(rowID) {
		rowID = id.New()
	}
	row := &storage.TablePartRow{ID: rowID, OwnerID: owner, Values: values.Clone()}
	if err := t.gw.InsertTablePart(ctx, t.def, row); err != nil {
		return id.Nil(), err
	}

	if !id.IsNil(t.ownerVersion) && !t.ownerBasis.IsEmpty() {
		snapshot, algo, err := encodeSnapshot(values)
		if err != nil {
			return id.Nil(), err
		}
		err = t.gw.VersionAdd(ctx, &storage.VersionEntry{
			VersionID:   t.ownerVersion,
			UserID:      userFrom(ctx),
			Basis:       t.ownerBasis,
			Op:          storage.OpUpdate,
			Snapshot:    snapshot,
			Compression: algo,
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			return id.Nil(), err
		}
	}

	return rowID, nil
}

// Delete removes every row for the owner. Rewrites are a blunt
// clear-and-reinsert, not row-level diffing.
func (t *TablePart) Delete(ctx context.Context, owner id.ID) error {
	if id.IsNil(owner) {
		return apperror.NewPrecondition("table part delete requires an owner").
			WithDetail("table_part", t.def.Name)
	}
	return t.gw.DeleteTableParts(ctx, t.def, owner)
}

// Rewrite replaces the owner's rows atomically: delete all, reinsert
// the given records inside one transaction.
func (t *TablePart) Rewrite(ctx context.Context, owner id.ID, records []schema.Record) error {
	if id.IsNil(owner) {
		return apperror.NewPrecondition("table part rewrite requires an owner").
			WithDetail("table_part", t.def.Name)
	}
	return t.gw.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := t.gw.DeleteTableParts(ctx, t.def, owner); err != nil {
			return err
		}
		for _, rec := range records {
			if _, err := t.Save(ctx, id.Nil(), owner, rec); err != nil {
				return err
			}
		}
		return nil
	})
}
