package object

import (
	"context"

	"tabula/internal/core/basis"
	"tabula/internal/core/schema"
	"tabula/internal/core/session"
	"tabula/internal/storage/memory"
)

// Test fixtures shared by the object protocol tests.

func testStore() *memory.Store {
	return memory.NewStore()
}

func testCtx() context.Context {
	return session.WithSession(context.Background(), session.Session{
		UserID:    "tester",
		SessionID: "sess-1",
	})
}

func counterpartyDef() *schema.EntityDef {
	return &schema.EntityDef{
		Kind:  basis.KindDirectory,
		Name:  "Counterparty",
		Table: "dir_counterparties",
		Fields: []schema.FieldDef{
			{Name: "code", Type: schema.TypeString},
			{Name: "description", Type: schema.TypeString, Required: true},
		},
		Presentation: []string{"description"},
		Versioning:   true,
	}
}

func receiptDef() *schema.EntityDef {
	return &schema.EntityDef{
		Kind:  basis.KindDocument,
		Name:  "GoodsReceipt",
		Table: "doc_goods_receipts",
		Fields: []schema.FieldDef{
			{Name: "number", Type: schema.TypeString},
			{Name: "comment", Type: schema.TypeString},
		},
		TableParts: []schema.TablePartDef{
			{
				Name:  "goods",
				Table: "doc_goods_receipts_goods",
				Columns: []schema.FieldDef{
					{Name: "nomenclature", Type: schema.TypeReference},
					{Name: "quantity", Type: schema.TypeNumber},
				},
			},
		},
		Presentation: []string{"number"},
		Versioning:   true,
	}
}
