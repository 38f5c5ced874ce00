package basis

import (
	"testing"

	"tabula/internal/core/id"
)

func TestBasisKindAndName(t *testing.T) {
	oid := id.New()
	tests := []struct {
		name     string
		b        Basis
		wantKind Kind
		wantName string
	}{
		{"directory", Directory("Counterparty", oid), KindDirectory, "Counterparty"},
		{"document", Document("GoodsReceipt", oid), KindDocument, "GoodsReceipt"},
		{"explicit", New(KindDirectory, "Warehouse", oid), KindDirectory, "Warehouse"},
		{"unqualified", Basis{Type: "Loose", ID: oid}, "", "Loose"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.Kind(); got != tt.wantKind {
				t.Fatalf("Kind() = %q, want %q", got, tt.wantKind)
			}
			if got := tt.b.Name(); got != tt.wantName {
				t.Fatalf("Name() = %q, want %q", got, tt.wantName)
			}
		})
	}
}

func TestBasisIsEmpty(t *testing.T) {
	if !(Basis{}).IsEmpty() {
		t.Fatal("zero basis should be empty")
	}
	if !(Basis{Type: "Directories.Counterparty"}).IsEmpty() {
		t.Fatal("nil id should be empty")
	}
	if (Directory("Counterparty", id.New())).IsEmpty() {
		t.Fatal("populated basis should not be empty")
	}
}

func TestBasisString(t *testing.T) {
	oid := id.New()
	b := Document("GoodsReceipt", oid)
	want := "Documents.GoodsReceipt:" + oid.String()
	if got := b.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
