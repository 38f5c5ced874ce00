package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"tabula/internal/core/id"
	"tabula/internal/core/schema"
)

// fieldColumns returns the storage columns of the declared fields, in
// declaration order.
func fieldColumns(fields []schema.FieldDef) []string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	return cols
}

// scanRecord reads the current pgx row into a schema record. Column
// order must match cols; fixed leading columns are returned raw in
// head.
func scanRecord(rows pgx.Rows, headLen int, fields []schema.FieldDef) (head []any, rec schema.Record, err error) {
	values, err := rows.Values()
	if err != nil {
		return nil, schema.Record{}, fmt.Errorf("read row values: %w", err)
	}
	if len(values) < headLen+len(fields) {
		return nil, schema.Record{}, fmt.Errorf("row has %d columns, want %d", len(values), headLen+len(fields))
	}

	m := make(map[string]any, len(fields))
	for i, f := range fields {
		m[f.Name] = normalize(values[headLen+i])
	}
	head = make([]any, headLen)
	for i := range head {
		head[i] = normalize(values[i])
	}
	return head, schema.RecordFromMap(fields, m), nil
}

// normalize maps pgx value representations onto the types the record
// accessors expect.
func normalize(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return id.ID(t)
	case time.Time:
		return t.UTC()
	case pgtype.Numeric:
		if !t.Valid || t.Int == nil {
			return decimal.Zero
		}
		return decimal.NewFromBigInt(t.Int, t.Exp)
	}
	return v
}

// recordArgs returns the record's values in field order, for use as
// trailing insert arguments.
func recordArgs(rec schema.Record, fields []schema.FieldDef) []any {
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = storableValue(rec.Get(f.Name))
	}
	return args
}

// storableValue converts engine value types into driver-friendly
// ones. Decimals travel as pgtype.Numeric so precision survives both
// the INSERT and COPY paths.
func storableValue(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
	}
	return v
}

func headID(head []any, i int) id.ID {
	if v, ok := head[i].(id.ID); ok {
		return v
	}
	return id.Nil()
}

func headBool(head []any, i int) bool {
	v, _ := head[i].(bool)
	return v
}

func headTime(head []any, i int) time.Time {
	v, _ := head[i].(time.Time)
	return v
}
