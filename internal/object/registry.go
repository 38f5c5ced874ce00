package object

import (
	"context"

	"tabula/internal/core/apperror"
	"tabula/internal/core/basis"
	"tabula/internal/core/id"
	"tabula/internal/core/schema"
	"tabula/internal/storage"
)

// Persistable is the protocol shared by directory and document
// objects.
type Persistable interface {
	Read(ctx context.Context, oid id.ID) (bool, error)
	Save(ctx context.Context) error
	SetDeletionMark(ctx context.Context, marked bool) error
	Delete(ctx context.Context) error
	ID() id.ID
	Def() *schema.EntityDef
	Basis() basis.Basis
	Values() *schema.Record
}

// Factory resolves qualified entity names ("Directories.Counterparty",
// "Documents.GoodsReceipt") to object constructors. The mapping is
// built once at startup from the metadata registry; there is no
// reflection and no string-assembled type lookup at call sites.
type Factory struct {
	gw       storage.Gateway
	registry *schema.Registry
}

// NewFactory creates a factory over the gateway and metadata registry.
func NewFactory(gw storage.Gateway, registry *schema.Registry) *Factory {
	return &Factory{gw: gw, registry: registry}
}

// Registry exposes the backing metadata registry.
func (f *Factory) Registry() *schema.Registry {
	return f.registry
}

// Directory constructs a directory object for the qualified name.
func (f *Factory) Directory(name string) (*DirectoryObject, error) {
	def, ok := f.registry.Get(name)
	if !ok || def.Kind != basis.KindDirectory {
		return nil, apperror.NewValidation("unknown directory type").
			WithDetail("type", name)
	}
	return NewDirectoryObject(f.gw, def), nil
}

// Document constructs a document object for the qualified name.
func (f *Factory) Document(name string) (*DocumentObject, error) {
	def, ok := f.registry.Get(name)
	if !ok || def.Kind != basis.KindDocument {
		return nil, apperror.NewValidation("unknown document type").
			WithDetail("type", name)
	}
	return NewDocumentObject(f.gw, def), nil
}

// ForBasis constructs the object matching the basis kind and loads it.
// Returns (nil, nil) when the identity is absent.
func (f *Factory) ForBasis(ctx context.Context, b basis.Basis) (Persistable, error) {
	def, ok := f.registry.Get(b.Type)
	if !ok {
		return nil, apperror.NewValidation("unknown entity type").
			WithDetail("type", b.Type)
	}
	var obj Persistable
	switch def.Kind {
	case basis.KindDirectory:
		obj = NewDirectoryObject(f.gw, def)
	case basis.KindDocument:
		obj = NewDocumentObject(f.gw, def)
	default:
		return nil, apperror.NewValidation("unsupported entity kind").
			WithDetail("type", b.Type)
	}
	found, err := obj.Read(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return obj, nil
}
