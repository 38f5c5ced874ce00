package object

import (
	"context"
	"time"

	"tabula/internal/core/apperror"
	"tabula/internal/core/id"
	"tabula/internal/core/schema"
	"tabula/internal/storage"
	"tabula/pkg/logger"
)

// DocumentObject is the persistence handle for transactional vouchers.
// Beyond the shared protocol it carries posting state: the Spent flag,
// the spend date, and a version identifier regenerated on every
// transition to new so history snapshots never straddle two logical
// documents sharing one in-memory instance.
type DocumentObject struct {
	object

	spent     bool
	spendDate time.Time
}

// NewDocumentObject creates an unbound instance.
func NewDocumentObject(gw storage.Gateway, def *schema.EntityDef) *DocumentObject {
	return &DocumentObject{object: newObject(gw, def)}
}

// New marks the instance for insertion and regenerates the version
// identifier.
func (o *DocumentObject) New() {
	o.markNew()
	o.versionID = id.New()
	o.spent = false
	o.spendDate = time.Time{}
}

// Spent reports the posting state as last read.
func (o *DocumentObject) Spent() bool { return o.spent }

// SpendDate returns the posting date as last read.
func (o *DocumentObject) SpendDate() time.Time { return o.spendDate }

// Read loads the document by identity. Returns false without touching
// the instance when the identity is empty, the instance is marked
// new, or no row exists.
func (o *DocumentObject) Read(ctx context.Context, oid id.ID) (bool, error) {
	if id.IsNil(oid) || o.isNew {
		return false, nil
	}
	row, err := o.gw.SelectDocument(ctx, o.def, oid)
	if err != nil {
		return false, err
	}
	if row == nil {
		return false, nil
	}
	o.id = row.ID
	o.deletionMark = row.DeletionMark
	o.spent = row.Spent
	o.spendDate = row.SpendDate
	o.versionID = row.VersionID
	if id.IsNil(o.versionID) {
		// Rows written before version identity was stored.
		o.versionID = id.New()
	}
	o.values = row.Values
	o.isSaved = true
	return true, nil
}

// Save persists the document. Field cache is cleared afterward
// regardless of outcome.
func (o *DocumentObject) Save(ctx context.Context) error {
	defer o.values.Clear()

	if o.isNew {
		if id.IsNil(o.id) {
			o.id = id.New()
		}
		if id.IsNil(o.versionID) {
			o.versionID = id.New()
		}
		row := &storage.DocumentRow{
			ID:           o.id,
			DeletionMark: o.deletionMark,
			Spent:        o.spent,
			SpendDate:    o.spendDate,
			VersionID:    o.versionID,
			Values:       o.values.Clone(),
		}
		err := o.saveTx(ctx, func(ctx context.Context) error {
			return o.gw.InsertDocument(ctx, o.def, row)
		}, storage.OpAdd)
		if err != nil {
			return err
		}
		o.isNew = false
		o.isSaved = true
		logger.Debug(ctx, "document created", "basis", o.Basis().String())
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
	row := &storage.DocumentRow{
		ID:           o.id,
		DeletionMark: o.deletionMark,
		Spent:        o.spent,
		SpendDate:    o.spendDate,
		VersionID:    o.versionID,
		Values:       o.values.Clone(),
	}
	err = o.saveTx(ctx, func(ctx context.Context) error {
		return o.gw.UpdateDocument(ctx, o.def, row)
	}, storage.OpUpdate)
	if err != nil {
		return err
	}
	o.isSaved = true
	return nil
}

// Spend updates the posting state. Spending clears the deletion mark;
// unspending leaves whatever mark is present untouched. Calling
// Spend on a never-saved instance is caller misuse.
func (o *DocumentObject) Spend(ctx context.Context, flag bool, date time.Time) error {
	if !o.isSaved || id.IsNil(o.id) {
		return apperror.NewPrecondition("spend requires a saved document").
			WithDetail("entity", o.def.QualifiedName())
	}
	if err := o.gw.SetSpend(ctx, o.def, o.id, flag, date, flag); err != nil {
		return err
	}
	o.spent = flag
	o.spendDate = date
	if flag {
		o.deletionMark = false
	}
	o.emitChange(ctx, storage.OpUpdate)
	logger.Debug(ctx, "document spend updated",
		"basis", o.Basis().String(),
		"spent", flag,
		"date", date,
	)
	return nil
}

// SetDeletionMark toggles the soft-delete flag. Requires a prior
// save, same as for directories.
func (o *DocumentObject) SetDeletionMark(ctx context.Context, marked bool) error {
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

// Delete removes the document, its table parts, its full-text row and
// its whole version history atomically.
func (o *DocumentObject) Delete(ctx context.Context) error {
	return o.deleteTx(ctx)
}

// TablePart returns a handle for one of the document's child-row
// collections, pre-wired with the document's version identity so row
// saves can snapshot against the owner.
func (o *DocumentObject) TablePart(name string) (*TablePart, error) {
	def, ok := o.def.TablePart(name)
	if !ok {
		return nil, apperror.NewValidation("unknown table part").
			WithDetail("entity", o.def.QualifiedName()).
			WithDetail("table_part", name)
	}
	tp := NewTablePart(o.gw, def)
	if o.def.Versioning && !id.IsNil(o.id) {
		tp.SetOwnerVersion(o.Basis(), o.versionID)
	}
	return tp, nil
}
