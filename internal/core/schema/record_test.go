package schema

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tabula/internal/core/id"
)

func testFields() []FieldDef {
	return []FieldDef{
		{Name: "code", Type: TypeString},
		{Name: "qty", Type: TypeNumber},
		{Name: "count", Type: TypeInteger},
		{Name: "active", Type: TypeBoolean},
		{Name: "date", Type: TypeDate},
		{Name: "ref", Type: TypeReference},
	}
}

func TestRecordSetUndeclaredField(t *testing.T) {
	rec := NewRecord(testFields())
	if err := rec.Set("code", "A"); err != nil {
		t.Fatalf("Set declared field: %v", err)
	}
	if err := rec.Set("bogus", 1); err == nil {
		t.Fatal("Set undeclared field: expected error, got nil")
	}
}

func TestRecordGetDecimal(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  decimal.Decimal
	}{
		{"decimal", decimal.RequireFromString("12.345"), decimal.RequireFromString("12.345")},
		{"string", "7.5", decimal.RequireFromString("7.5")},
		{"float", 2.25, decimal.RequireFromString("2.25")},
		{"int64", int64(4), decimal.NewFromInt(4)},
		{"garbage string", "not a number", decimal.Zero},
		{"absent", nil, decimal.Zero},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewRecord(testFields())
			if tt.value != nil {
				rec.MustSet("qty", tt.value)
			}
			got := rec.GetDecimal("qty")
			if !got.Equal(tt.want) {
				t.Fatalf("GetDecimal = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRecordGetID(t *testing.T) {
	rec := NewRecord(testFields())
	ref := id.New()

	rec.MustSet("ref", ref)
	if got := rec.GetID("ref"); got != ref {
		t.Fatalf("GetID from id: got %s, want %s", got, ref)
	}
	rec.MustSet("ref", ref.String())
	if got := rec.GetID("ref"); got != ref {
		t.Fatalf("GetID from string: got %s, want %s", got, ref)
	}
	rec.MustSet("ref", "not a uuid")
	if got := rec.GetID("ref"); !id.IsNil(got) {
		t.Fatalf("GetID from garbage: got %s, want nil", got)
	}
}

func TestRecordCloneIsIndependent(t *testing.T) {
	rec := NewRecord(testFields())
	rec.MustSet("code", "original")

	clone := rec.Clone()
	clone.MustSet("code", "changed")

	if got := rec.GetString("code"); got != "original" {
		t.Fatalf("source mutated through clone: %q", got)
	}
}

func TestRecordClear(t *testing.T) {
	rec := NewRecord(testFields())
	rec.MustSet("code", "x")
	rec.MustSet("active", true)
	rec.Clear()

	if rec.Len() != 0 {
		t.Fatalf("Len after Clear = %d, want 0", rec.Len())
	}
	if rec.Has("code") {
		t.Fatal("value survived Clear")
	}
}

func TestRecordFromMapIgnoresUndeclared(t *testing.T) {
	now := time.Now()
	rec := RecordFromMap(testFields(), map[string]any{
		"code":    "C1",
		"date":    now,
		"unknown": "dropped",
	})

	if got := rec.GetString("code"); got != "C1" {
		t.Fatalf("code = %q", got)
	}
	if !rec.GetTime("date").Equal(now) {
		t.Fatal("date lost")
	}
	if rec.Has("unknown") {
		t.Fatal("undeclared key survived")
	}
}
