// Package object implements the persistence protocol shared by all
// business entities: stateful read/save/delete with new/saved
// tracking, soft deletion, posting, version history, full-text
// maintenance and post-commit change triggers. Instances are not safe
// for concurrent use; give each logical operation its own instance.
package object

import (
	"context"
	"strings"
	"time"

	"tabula/internal/core/apperror"
	"tabula/internal/core/basis"
	"tabula/internal/core/id"
	"tabula/internal/core/schema"
	"tabula/internal/storage"
	"tabula/pkg/logger"
)

// object carries the state common to directories and documents.
type object struct {
	gw  storage.Gateway
	def *schema.EntityDef

	id           id.ID
	isNew        bool
	isSaved      bool
	deletionMark bool
	versionID    id.ID

	values schema.Record
}

func newObject(gw storage.Gateway, def *schema.EntityDef) object {
	return object{
		gw:     gw,
		def:    def,
		values: def.NewRecord(),
	}
}

// ID returns the identity, or nil UUID before the first save.
func (o *object) ID() id.ID { return o.id }

// Def returns the schema definition this instance is bound to.
func (o *object) Def() *schema.EntityDef { return o.def }

// IsNew reports whether the instance is marked for insertion.
func (o *object) IsNew() bool { return o.isNew }

// IsSaved reports whether the instance has been persisted at least
// once under its current identity.
func (o *object) IsSaved() bool { return o.isSaved }

// DeletionMark returns the soft-delete flag as last read.
func (o *object) DeletionMark() bool { return o.deletionMark }

// VersionID returns the identifier version-history snapshots are
// keyed by.
func (o *object) VersionID() id.ID { return o.versionID }

// Values exposes the field record for reads and assignments.
func (o *object) Values() *schema.Record { return &o.values }

// SetValue assigns one declared field.
func (o *object) SetValue(name string, v any) error {
	if err := o.values.Set(name, v); err != nil {
		return apperror.NewValidation(err.Error()).WithDetail("entity", o.def.QualifiedName())
	}
	return nil
}

// Basis returns the polymorphic reference for this instance.
func (o *object) Basis() basis.Basis {
	return o.def.Basis(o.id)
}

// markNew resets the instance for insertion: identity dropped, fields
// cleared, flags rewound.
func (o *object) markNew() {
	o.id = id.Nil()
	o.isNew = true
	o.isSaved = false
	o.deletionMark = false
	o.values.Clear()
}

// Presentation returns the human label built from the given fields
// (the definition's presentation fields when none are passed).
// Returns "" for instances without identity — never an error for a
// missing row.
func (o *object) Presentation(ctx context.Context, fields ...string) (string, error) {
	if id.IsNil(o.id) || !o.isSaved {
		return "", nil
	}
	if len(fields) == 0 {
		fields = o.def.Presentation
	}
	if len(fields) == 0 {
		return "", nil
	}
	return o.gw.Presentation(ctx, o.def, o.id, fields)
}

// searchText concatenates the string-typed field values for the
// full-text row.
func (o *object) searchText() string {
	var parts []string
	for _, f := range o.def.Fields {
		if f.Type != schema.TypeString {
			continue
		}
		if v := o.values.GetString(f.Name); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// saveTx runs one coordinated save: primary write, then full-text,
// then version history, inside a single flat transaction. The change
// trigger is emitted strictly after commit.
func (o *object) saveTx(ctx context.Context, persist func(context.Context) error, op storage.ChangeOp) error {
	err := o.gw.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := persist(ctx); err != nil {
			return err
		}
		if err := o.gw.FullTextSet(ctx, o.Basis(), o.searchText()); err != nil {
			return err
		}
		if o.def.Versioning {
			return o.writeVersion(ctx, op)
		}
		return nil
	})
	if err != nil {
		return err
	}
	o.emitChange(ctx, op)
	return nil
}

// writeVersion appends one history snapshot for the current field
// values, keyed by the instance's version identifier.
func (o *object) writeVersion(ctx context.Context, op storage.ChangeOp) error {
	snapshot, algo, err := encodeSnapshot(o.values)
	if err != nil {
		return err
	}
	return o.gw.VersionAdd(ctx, &storage.VersionEntry{
		VersionID:   o.versionID,
		UserID:      userFrom(ctx),
		Basis:       o.Basis(),
		Op:          op,
		Snapshot:    snapshot,
		Compression: algo,
		CreatedAt:   time.Now().UTC(),
	})
}

// emitChange records the post-commit "object changed" event. A failed
// emission is logged, not surfaced: the data is already durable and
// consumers tolerate missed best-effort signals.
func (o *object) emitChange(ctx context.Context, op storage.ChangeOp) {
	err := o.gw.ObjectTriggerAdd(ctx, &storage.ObjectChange{
		ID:        id.New(),
		Basis:     o.Basis(),
		Op:        op,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		logger.Warn(ctx, "object change trigger failed",
			"basis", o.Basis().String(),
			"op", op,
			"error", err,
		)
	}
}

// deleteTx removes the entity and everything keyed by it in one
// transaction: primary row, every declared table part, the full-text
// row and all version history. Nothing is observable half-deleted.
func (o *object) deleteTx(ctx context.Context) error {
	if id.IsNil(o.id) || !o.isSaved {
		return apperror.NewPrecondition("delete requires a saved object").
			WithDetail("entity", o.def.QualifiedName())
	}
	b := o.Basis()
	err := o.gw.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := o.gw.DeleteObject(ctx, o.def, o.id); err != nil {
			return err
		}
		for i := range o.def.TableParts {
			if err := o.gw.DeleteTableParts(ctx, &o.def.TableParts[i], o.id); err != nil {
				return err
			}
		}
		if err := o.gw.FullTextDelete(ctx, b); err != nil {
			return err
		}
		return o.gw.VersionsDelete(ctx, b)
	})
	if err != nil {
		return err
	}
	o.emitChange(ctx, storage.OpDelete)
	o.id = id.Nil()
	o.isNew = false
	o.isSaved = false
	o.values.Clear()
	return nil
}
