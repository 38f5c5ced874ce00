// Package storage defines the database gateway the persistence engine
// is built against. The engine never issues SQL itself; it calls a
// fixed set of parametrized operations on a Gateway implementation
// (PostgreSQL in production, in-memory for tests and embedding).
package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"tabula/internal/core/basis"
	"tabula/internal/core/id"
	"tabula/internal/core/schema"
)

// ChangeOp tags an object change for triggers and version history.
type ChangeOp string

const (
	OpAdd    ChangeOp = "add"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// TriggerAction is the kind of ledger recalculation a trigger requests.
type TriggerAction string

const (
	// TriggerAdd asks for balances at (period, owner) to be recomputed
	// because new movements appeared there.
	TriggerAdd TriggerAction = "add"
	// TriggerClear asks for balances at (period, owner) to be
	// recomputed because movements were removed from there.
	TriggerClear TriggerAction = "clear"
)

// DirectoryRow is the persisted state of a directory entity.
type DirectoryRow struct {
	ID           id.ID
	DeletionMark bool
	Values       schema.Record
}

// DocumentRow is the persisted state of a document entity. VersionID
// is stored with the row so that a read-modify-write cycle keeps the
// snapshot identity of the logical document.
type DocumentRow struct {
	ID           id.ID
	DeletionMark bool
	Spent        bool
	SpendDate    time.Time
	VersionID    id.ID
	Values       schema.Record
}

// TablePartRow is one child row owned by a parent entity. Rows have
// their own identifier but no lifecycle outside the owner.
type TablePartRow struct {
	ID      id.ID
	OwnerID id.ID
	Values  schema.Record
}

// CompressionAlgo specifies how a version snapshot is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// VersionEntry is one append-only version-history snapshot.
type VersionEntry struct {
	VersionID   id.ID           `db:"version_id"`
	UserID      string          `db:"user_id"`
	Basis       basis.Basis     `db:"basis"`
	Op          ChangeOp        `db:"op"`
	Snapshot    []byte          `db:"snapshot"`
	Compression CompressionAlgo `db:"compression"`
	CreatedAt   time.Time       `db:"created_at"`
}

// Movement is one accumulation register row. Movements are immutable:
// inserted on posting, bulk-deleted per owner on re-posting, never
// updated.
type Movement struct {
	ID        id.ID
	Period    time.Time
	Income    bool // true = income, false = expense
	OwnerID   id.ID
	OwnerType string // qualified document type, e.g. "Documents.GoodsReceipt"
	Values    schema.Record
}

// RegisterTrigger is a work item meaning "ledger balances for this
// owner at this period must be recomputed". Triggers are idempotent
// signals, not ledger data.
type RegisterTrigger struct {
	ID        id.ID         `db:"id"`
	Register  string        `db:"register"`
	Period    time.Time     `db:"period"`
	OwnerID   id.ID         `db:"owner_id"`
	Action    TriggerAction `db:"action"`
	CreatedAt time.Time     `db:"created_at"`
}

// ObjectChange is the generic "object changed" event recorded after a
// committed save or delete.
type ObjectChange struct {
	ID        id.ID       `db:"id"`
	Basis     basis.Basis `db:"basis"`
	Op        ChangeOp    `db:"op"`
	CreatedAt time.Time   `db:"created_at"`
}

// IgnoreEntry is a transient suppression marker: while the named
// document is being re-posted, trigger machinery must not re-enqueue
// recomputation caused by its own pending write. Scoped by
// (user, session) so concurrent bulk operations do not interfere.
type IgnoreEntry struct {
	UserID     string    `db:"user_id"`
	SessionID  string    `db:"session_id"`
	DocumentID id.ID     `db:"document_id"`
	Info       string    `db:"info"`
	CreatedAt  time.Time `db:"created_at"`
}

// LockInfo describes the holder of an application-layer entity lock.
type LockInfo struct {
	UserID    string    `db:"user_id"`
	SessionID string    `db:"session_id"`
	LockedAt  time.Time `db:"locked_at"`
}

// Balance holds recomputed per-period totals for a register: one sum
// per numeric resource, split by movement direction.
type Balance struct {
	Register string
	Period   time.Time
	Income   map[string]decimal.Decimal
	Expense  map[string]decimal.Decimal
}

// ListFilter narrows object list queries.
type ListFilter struct {
	// IncludeDeleted includes soft-deleted records
	IncludeDeleted bool

	// Search matches against the presentation fields
	Search string

	// FromDate/ToDate bound document spend dates (documents only)
	FromDate *time.Time
	ToDate   *time.Time

	// Pagination
	Limit  int
	Offset int
}
