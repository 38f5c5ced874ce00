// Package metadata declares the entity and register definitions the
// binaries ship with. Field names double as storage column names.
package metadata

import (
	"tabula/internal/core/basis"
	"tabula/internal/core/schema"
)

// DefaultRegistry builds the registry shared by the server and the
// worker. Both must agree on definitions, since the worker recomputes
// balances for registers the server posts into.
func DefaultRegistry() *schema.Registry {
	reg := schema.NewRegistry()

	reg.Register(&schema.EntityDef{
		Kind:  basis.KindDirectory,
		Name:  "Counterparty",
		Label: "Counterparties",
		Table: "dir_counterparties",
		Fields: []schema.FieldDef{
			{Name: "code", Type: schema.TypeString},
			{Name: "description", Type: schema.TypeString, Required: true},
			{Name: "tax_number", Type: schema.TypeString},
			{Name: "is_supplier", Type: schema.TypeBoolean},
		},
		Presentation: []string{"description", "code"},
		Versioning:   true,
	})

	reg.Register(&schema.EntityDef{
		Kind:  basis.KindDirectory,
		Name:  "Nomenclature",
		Label: "Nomenclature",
		Table: "dir_nomenclature",
		Fields: []schema.FieldDef{
			{Name: "code", Type: schema.TypeString},
			{Name: "description", Type: schema.TypeString, Required: true},
			{Name: "unit", Type: schema.TypeString},
			{Name: "price", Type: schema.TypeNumber},
		},
		Presentation: []string{"description"},
		Versioning:   true,
	})

	reg.Register(&schema.EntityDef{
		Kind:  basis.KindDocument,
		Name:  "GoodsReceipt",
		Label: "Goods receipts",
		Table: "doc_goods_receipts",
		Fields: []schema.FieldDef{
			{Name: "number", Type: schema.TypeString},
			{Name: "counterparty", Type: schema.TypeReference, ReferenceType: "Directories.Counterparty", Required: true},
			{Name: "comment", Type: schema.TypeString},
		},
		TableParts: []schema.TablePartDef{
			{
				Name:  "goods",
				Label: "Goods",
				Table: "doc_goods_receipts_goods",
				Columns: []schema.FieldDef{
					{Name: "nomenclature", Type: schema.TypeReference, ReferenceType: "Directories.Nomenclature", Required: true},
					{Name: "quantity", Type: schema.TypeNumber, Required: true},
					{Name: "amount", Type: schema.TypeNumber},
				},
			},
		},
		Presentation: []string{"number"},
		Versioning:   true,
	})

	reg.RegisterAccumulation(&schema.RegisterDef{
		Name:  "Stock",
		Label: "Stock",
		Table: "reg_stock",
		Fields: []schema.FieldDef{
			{Name: "nomenclature", Type: schema.TypeReference, ReferenceType: "Directories.Nomenclature"},
			{Name: "quantity", Type: schema.TypeNumber},
			{Name: "amount", Type: schema.TypeNumber},
		},
	})

	return reg
}
