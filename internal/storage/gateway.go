package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tabula/internal/core/basis"
	"tabula/internal/core/id"
	"tabula/internal/core/schema"
	"tabula/internal/core/tx"
)

// ObjectStore persists directory and document rows. Absent rows are
// reported as (nil, nil), never as errors.
type ObjectStore interface {
	SelectDirectory(ctx context.Context, def *schema.EntityDef, oid id.ID) (*DirectoryRow, error)
	InsertDirectory(ctx context.Context, def *schema.EntityDef, row *DirectoryRow) error
	UpdateDirectory(ctx context.Context, def *schema.EntityDef, row *DirectoryRow) error

	SelectDocument(ctx context.Context, def *schema.EntityDef, oid id.ID) (*DocumentRow, error)
	InsertDocument(ctx context.Context, def *schema.EntityDef, row *DocumentRow) error
	UpdateDocument(ctx context.Context, def *schema.EntityDef, row *DocumentRow) error

	// SetDeletionMark flips the soft-delete flag on either kind.
	SetDeletionMark(ctx context.Context, def *schema.EntityDef, oid id.ID, marked bool) error

	// SetSpend updates the posting state of a document. When
	// clearMark is set the deletion mark is dropped in the same
	// statement.
	SetSpend(ctx context.Context, def *schema.EntityDef, oid id.ID, spent bool, date time.Time, clearMark bool) error

	// DeleteObject removes the primary row.
	DeleteObject(ctx context.Context, def *schema.EntityDef, oid id.ID) error

	// ExistsID checks that an identity is present in the table.
	ExistsID(ctx context.Context, def *schema.EntityDef, oid id.ID) (bool, error)

	// Presentation returns the human label built from the given
	// fields, or "" when the row is absent.
	Presentation(ctx context.Context, def *schema.EntityDef, oid id.ID, fields []string) (string, error)

	ListDirectories(ctx context.Context, def *schema.EntityDef, filter ListFilter) ([]DirectoryRow, error)
	ListDocuments(ctx context.Context, def *schema.EntityDef, filter ListFilter) ([]DocumentRow, error)

	// CountObjects and ObjectOffset support journal page splitting:
	// total row count under the filter, and the zero-based position of
	// an anchor row under the default ordering.
	CountObjects(ctx context.Context, def *schema.EntityDef, filter ListFilter) (int64, error)
	ObjectOffset(ctx context.Context, def *schema.EntityDef, filter ListFilter, anchor id.ID) (int64, error)
}

// TablePartStore persists owner-scoped child rows.
type TablePartStore interface {
	SelectTableParts(ctx context.Context, part *schema.TablePartDef, owner id.ID) ([]TablePartRow, error)
	InsertTablePart(ctx context.Context, part *schema.TablePartDef, row *TablePartRow) error
	DeleteTableParts(ctx context.Context, part *schema.TablePartDef, owner id.ID) error
}

// VersionStore persists append-only version-history snapshots.
type VersionStore interface {
	VersionAdd(ctx context.Context, entry *VersionEntry) error
	VersionsDelete(ctx context.Context, b basis.Basis) error
	VersionsList(ctx context.Context, b basis.Basis, limit int) ([]VersionEntry, error)
}

// FullTextStore maintains one search row per entity.
type FullTextStore interface {
	FullTextSet(ctx context.Context, b basis.Basis, text string) error
	FullTextDelete(ctx context.Context, b basis.Basis) error
	FullTextSearch(ctx context.Context, query string, limit int) ([]basis.Basis, error)
}

// RegisterStore persists accumulation register movements and the
// recomputed balance totals.
type RegisterStore interface {
	InsertMovements(ctx context.Context, def *schema.RegisterDef, movements []Movement) error
	DeleteMovements(ctx context.Context, def *schema.RegisterDef, owner id.ID) error
	SelectMovements(ctx context.Context, def *schema.RegisterDef, owner id.ID) ([]Movement, error)

	// SelectMovementPeriods returns the distinct periods currently
	// recorded for the owner, excluding exclude when non-nil.
	SelectMovementPeriods(ctx context.Context, def *schema.RegisterDef, owner id.ID, exclude *time.Time) ([]time.Time, error)

	// SumPeriod totals every numeric resource of the register over one
	// period, split by direction.
	SumPeriod(ctx context.Context, def *schema.RegisterDef, period time.Time) (income, expense map[string]decimal.Decimal, err error)

	UpsertBalance(ctx context.Context, def *schema.RegisterDef, b *Balance) error
	DeleteBalance(ctx context.Context, def *schema.RegisterDef, period time.Time) error
	SelectBalance(ctx context.Context, def *schema.RegisterDef, period time.Time) (*Balance, error)
}

// TriggerStore persists change events, the recalculation trigger queue
// and the document-ignore suppression list.
type TriggerStore interface {
	ObjectTriggerAdd(ctx context.Context, change *ObjectChange) error

	RegisterTriggerAdd(ctx context.Context, trigger *RegisterTrigger) error

	// TriggersTake removes and returns up to limit queued triggers in
	// FIFO order. Consumers are expected to be idempotent, so losing
	// or replaying a signal is tolerable.
	TriggersTake(ctx context.Context, limit int) ([]RegisterTrigger, error)
	TriggerDepth(ctx context.Context) (int64, error)

	IgnoreAdd(ctx context.Context, entry *IgnoreEntry) error
	// IgnoreClear removes markers for (user, session); a nil document
	// clears every marker of the pair.
	IgnoreClear(ctx context.Context, userID, sessionID string, document *id.ID) error
	IgnoreList(ctx context.Context, userID, sessionID string) ([]IgnoreEntry, error)
	// IgnoreActive returns all live markers regardless of session, for
	// cross-process trigger consumers.
	IgnoreActive(ctx context.Context) ([]IgnoreEntry, error)
	// IgnoreSweep deletes markers older than the cutoff, returning the
	// number removed.
	IgnoreSweep(ctx context.Context, olderThan time.Time) (int64, error)
}

// LockStore persists session-scoped application-layer locks.
type LockStore interface {
	// LockAcquire takes the lock for (user, session); returns false
	// when a different session already holds it. Re-acquiring one's
	// own lock succeeds and refreshes the timestamp.
	LockAcquire(ctx context.Context, b basis.Basis, userID, sessionID string) (bool, error)
	LockRelease(ctx context.Context, b basis.Basis, userID, sessionID string) error
	// LockInfo returns the current holder, or nil when unlocked.
	LockInfo(ctx context.Context, b basis.Basis) (*LockInfo, error)
	LockSweep(ctx context.Context, olderThan time.Time) (int64, error)
}

// Gateway is the full storage surface the engine consumes. The
// embedded tx.Manager provides the flat transaction wrapping any
// multi-statement sequence; the active transaction travels in the
// context, so every operation called inside RunInTransaction shares
// it.
type Gateway interface {
	ObjectStore
	TablePartStore
	VersionStore
	FullTextStore
	RegisterStore
	TriggerStore
	LockStore
	tx.Manager
}
