// Package schema describes the shape of persisted entities. Every
// directory, document and accumulation register is declared as an
// ordered list of named, typed fields; the persistence layer works
// against these definitions instead of hard-coded structs, so any
// entity speaks the same read/save/delete protocol.
package schema

import (
	"tabula/internal/core/basis"
	"tabula/internal/core/id"
)

// FieldType defines the data type of a field.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeInteger   FieldType = "integer"
	TypeNumber    FieldType = "number" // decimal resources (quantity, amount)
	TypeBoolean   FieldType = "boolean"
	TypeDate      FieldType = "date"
	TypeReference FieldType = "reference"
)

// FieldDef describes a single field.
type FieldDef struct {
	Name          string    `json:"name"`
	Label         string    `json:"label,omitempty"`
	Type          FieldType `json:"type"`
	ReferenceType string    `json:"referenceType,omitempty"` // qualified name, e.g. "Directories.Counterparty"
	Required      bool      `json:"required,omitempty"`
}

// TablePartDef describes an owner-scoped child row collection (line
// items). Rows live in their own relation and have no lifecycle
// outside their owner.
type TablePartDef struct {
	Name    string     `json:"name"`
	Label   string     `json:"label,omitempty"`
	Table   string     `json:"-"`
	Columns []FieldDef `json:"columns"`
}

// NewRecord returns an empty record shaped by the table part columns.
func (t *TablePartDef) NewRecord() Record {
	return NewRecord(t.Columns)
}

// EntityDef describes a business entity (directory or document).
type EntityDef struct {
	Kind   basis.Kind `json:"kind"`
	Name   string     `json:"name"`
	Label  string     `json:"label,omitempty"`
	Table  string     `json:"-"`
	Fields []FieldDef `json:"fields"`

	// TableParts are deleted together with the entity inside one
	// transaction.
	TableParts []TablePartDef `json:"tableParts,omitempty"`

	// Presentation lists the fields composing the human-readable label.
	Presentation []string `json:"presentation,omitempty"`

	// Versioning enables version-history snapshots on every save.
	Versioning bool `json:"versioning,omitempty"`
}

// QualifiedName returns "<Kind>.<Name>", e.g. "Directories.Counterparty".
func (d *EntityDef) QualifiedName() string {
	return string(d.Kind) + "." + d.Name
}

// Basis builds the polymorphic reference for an instance of this type.
func (d *EntityDef) Basis(oid id.ID) basis.Basis {
	return basis.New(d.Kind, d.Name, oid)
}

// Field looks up a field definition by name.
func (d *EntityDef) Field(name string) (FieldDef, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// TablePart looks up a table part definition by name.
func (d *EntityDef) TablePart(name string) (*TablePartDef, bool) {
	for i := range d.TableParts {
		if d.TableParts[i].Name == name {
			return &d.TableParts[i], true
		}
	}
	return nil, false
}

// NewRecord returns an empty record shaped by the entity fields.
func (d *EntityDef) NewRecord() Record {
	return NewRecord(d.Fields)
}

// RegisterDef describes an accumulation register: an append-only
// movement log with numeric resources accumulated per period.
type RegisterDef struct {
	Name   string     `json:"name"`
	Label  string     `json:"label,omitempty"`
	Table  string     `json:"-"`
	Fields []FieldDef `json:"fields"`
}

// BalanceTable is the relation holding recomputed per-period totals.
func (d *RegisterDef) BalanceTable() string {
	return d.Table + "_balances"
}

// NewRecord returns an empty record shaped by the register fields.
func (d *RegisterDef) NewRecord() Record {
	return NewRecord(d.Fields)
}

// Resources returns the numeric fields summed during recalculation.
func (d *RegisterDef) Resources() []FieldDef {
	var out []FieldDef
	for _, f := range d.Fields {
		if f.Type == TypeNumber || f.Type == TypeInteger {
			out = append(out, f)
		}
	}
	return out
}

// Registry stores entity and register definitions, keyed by qualified
// name. Populated once at startup; read-only afterwards.
type Registry struct {
	entities  map[string]*EntityDef
	registers map[string]*RegisterDef
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entities:  make(map[string]*EntityDef),
		registers: make(map[string]*RegisterDef),
	}
}

// Register adds an entity definition.
func (r *Registry) Register(def *EntityDef) {
	r.entities[def.QualifiedName()] = def
}

// Get returns an entity definition by qualified name.
func (r *Registry) Get(qualified string) (*EntityDef, bool) {
	d, ok := r.entities[qualified]
	return d, ok
}

// List returns all entity definitions.
func (r *Registry) List() []*EntityDef {
	list := make([]*EntityDef, 0, len(r.entities))
	for _, def := range r.entities {
		list = append(list, def)
	}
	return list
}

// RegisterAccumulation adds a register definition.
func (r *Registry) RegisterAccumulation(def *RegisterDef) {
	r.registers[def.Name] = def
}

// GetRegister returns a register definition by name.
func (r *Registry) GetRegister(name string) (*RegisterDef, bool) {
	d, ok := r.registers[name]
	return d, ok
}

// Registers returns all register definitions.
func (r *Registry) Registers() []*RegisterDef {
	list := make([]*RegisterDef, 0, len(r.registers))
	for _, def := range r.registers {
		list = append(list, def)
	}
	return list
}
