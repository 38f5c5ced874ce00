// Package basis provides the polymorphic entity reference used as the
// foreign target for version history, change triggers, locks and
// full-text hits. The same structure addresses directories and
// documents without static typing.
package basis

import (
	"fmt"
	"strings"

	"tabula/internal/core/id"
)

// Kind is the entity category a reference points at.
type Kind string

const (
	KindDirectory Kind = "Directories"
	KindDocument  Kind = "Documents"
)

// Basis is a (type-qualified name, identifier) pair, e.g.
// ("Directories.Counterparty", <uuid>).
type Basis struct {
	Type string `db:"basis_type" json:"type"`
	ID   id.ID  `db:"basis_id" json:"id"`
}

// Directory builds a reference to a directory entity.
func Directory(name string, oid id.ID) Basis {
	return Basis{Type: string(KindDirectory) + "." + name, ID: oid}
}

// Document builds a reference to a document entity.
func Document(name string, oid id.ID) Basis {
	return Basis{Type: string(KindDocument) + "." + name, ID: oid}
}

// New builds a reference from an explicit kind and type name.
func New(kind Kind, name string, oid id.ID) Basis {
	return Basis{Type: string(kind) + "." + name, ID: oid}
}

// IsEmpty reports whether the reference points at nothing.
func (b Basis) IsEmpty() bool {
	return b.Type == "" || id.IsNil(b.ID)
}

// Kind extracts the entity category from the qualified type name.
func (b Basis) Kind() Kind {
	if i := strings.IndexByte(b.Type, '.'); i > 0 {
		return Kind(b.Type[:i])
	}
	return ""
}

// Name extracts the bare type name from the qualified type name.
func (b Basis) Name() string {
	if i := strings.IndexByte(b.Type, '.'); i >= 0 {
		return b.Type[i+1:]
	}
	return b.Type
}

// String renders "Type:ID" for logs and error details.
func (b Basis) String() string {
	return fmt.Sprintf("%s:%s", b.Type, b.ID)
}
