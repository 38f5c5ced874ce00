package schema

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tabula/internal/core/id"
)

// Record holds field values for one entity, table-part row or register
// movement, shaped by a field definition list. Unlike a bare map it
// rejects undeclared field names at the boundary, while the typed
// getters keep the "any entity, same protocol" contract.
type Record struct {
	fields []FieldDef
	values map[string]any
}

// NewRecord returns an empty record for the given fields.
func NewRecord(fields []FieldDef) Record {
	return Record{
		fields: fields,
		values: make(map[string]any, len(fields)),
	}
}

// Fields returns the declared field list in declaration order.
func (r Record) Fields() []FieldDef {
	return r.fields
}

// Set assigns a value to a declared field. Setting an undeclared
// field is a validation error, not a silent write.
func (r *Record) Set(name string, value any) error {
	for _, f := range r.fields {
		if f.Name == name {
			if r.values == nil {
				r.values = make(map[string]any, len(r.fields))
			}
			r.values[name] = value
			return nil
		}
	}
	return fmt.Errorf("field %q is not declared", name)
}

// MustSet assigns a value and panics on an undeclared field.
// Use only for startup wiring and tests.
func (r *Record) MustSet(name string, value any) {
	if err := r.Set(name, value); err != nil {
		panic(err)
	}
}

// Has checks if a value is present for the field.
func (r Record) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

// Get returns the raw value or nil.
func (r Record) Get(name string) any {
	return r.values[name]
}

// GetString returns string value or empty string if not found/wrong type.
func (r Record) GetString(name string) string {
	if v, ok := r.values[name].(string); ok {
		return v
	}
	return ""
}

// GetInt returns int64 value, tolerating the common integer widths.
func (r Record) GetInt(name string) int64 {
	switch v := r.values[name].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// GetFloat returns float64 value.
func (r Record) GetFloat(name string) float64 {
	switch v := r.values[name].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case decimal.Decimal:
		f, _ := v.Float64()
		return f
	}
	return 0
}

// GetBool returns boolean value.
func (r Record) GetBool(name string) bool {
	if v, ok := r.values[name].(bool); ok {
		return v
	}
	return false
}

// GetTime returns time value or zero time.
func (r Record) GetTime(name string) time.Time {
	if v, ok := r.values[name].(time.Time); ok {
		return v
	}
	return time.Time{}
}

// GetDecimal returns the value with full precision. This is the
// accessor for monetary and quantity resources.
func (r Record) GetDecimal(name string) decimal.Decimal {
	switch v := r.values[name].(type) {
	case decimal.Decimal:
		return v
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(v)
	case int64:
		return decimal.NewFromInt(v)
	case int:
		return decimal.NewFromInt(int64(v))
	}
	return decimal.Zero
}

// GetID returns a reference value or nil UUID.
func (r Record) GetID(name string) id.ID {
	switch v := r.values[name].(type) {
	case id.ID:
		return v
	case string:
		parsed, err := id.Parse(v)
		if err != nil {
			return id.Nil()
		}
		return parsed
	}
	return id.Nil()
}

// Map returns a copy of the stored values keyed by field name.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Clone creates a copy sharing the field definitions.
func (r Record) Clone() Record {
	return Record{fields: r.fields, values: r.Map()}
}

// Clear drops every stored value. The entity protocol clears its
// field cache after each save, forcing a fresh read before the next
// write.
func (r *Record) Clear() {
	r.values = make(map[string]any, len(r.fields))
}

// Len returns the number of stored values.
func (r Record) Len() int {
	return len(r.values)
}

// RecordFromMap builds a record from a value map, ignoring keys that
// are not declared fields. Used when reading rows back from storage.
func RecordFromMap(fields []FieldDef, m map[string]any) Record {
	rec := NewRecord(fields)
	for _, f := range fields {
		if v, ok := m[f.Name]; ok {
			rec.values[f.Name] = v
		}
	}
	return rec
}
