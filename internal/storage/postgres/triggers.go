package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tabula/internal/core/apperror"
	"tabula/internal/core/basis"
	"tabula/internal/core/id"
	"tabula/internal/storage"
)

func (g *Gateway) ObjectTriggerAdd(ctx context.Context, change *storage.ObjectChange) error {
	created := change.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	sql, args, err := g.builder.Insert(changesTable).
		Columns("id", "basis_type", "basis_id", "op", "created_at").
		Values(change.ID, change.Basis.Type, change.Basis.ID, string(change.Op), created).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := g.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase("insert change", err)
	}
	return nil
}

func (g *Gateway) RegisterTriggerAdd(ctx context.Context, trigger *storage.RegisterTrigger) error {
	created := trigger.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	sql, args, err := g.builder.Insert(triggersTable).
		Columns("id", "register", "period", "owner_id", "action", "created_at").
		Values(trigger.ID, trigger.Register, trigger.Period, trigger.OwnerID, string(trigger.Action), created).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := g.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase("insert trigger", err)
	}
	return nil
}

// TriggersTake removes and returns the oldest triggers. SKIP LOCKED
// lets several consumers drain the queue concurrently.
func (g *Gateway) TriggersTake(ctx context.Context, limit int) ([]storage.RegisterTrigger, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := fmt.Sprintf(`DELETE FROM %s
WHERE id IN (
    SELECT id FROM %s
    ORDER BY created_at
    LIMIT $1
    FOR UPDATE SKIP LOCKED
)
RETURNING id, register, period, owner_id, action, created_at`, triggersTable, triggersTable)

	rows, err := g.GetQuerier(ctx).Query(ctx, sql, limit)
	if err != nil {
		return nil, apperror.NewDatabase("take triggers", err)
	}
	defer rows.Close()

	var out []storage.RegisterTrigger
	for rows.Next() {
		var (
			t      storage.RegisterTrigger
			action string
		)
		if err := rows.Scan(&t.ID, &t.Register, &t.Period, &t.OwnerID, &action, &t.CreatedAt); err != nil {
			return nil, apperror.NewDatabase("scan trigger", err)
		}
		t.Action = storage.TriggerAction(action)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (g *Gateway) TriggerDepth(ctx context.Context) (int64, error) {
	sql, args, err := g.builder.Select("COUNT(*)").From(triggersTable).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int64
	if err := g.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, apperror.NewDatabase("trigger depth", err)
	}
	return n, nil
}

func (g *Gateway) IgnoreAdd(ctx context.Context, entry *storage.IgnoreEntry) error {
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	sql, args, err := g.builder.Insert(ignoresTable).
		Columns("user_id", "session_id", "document_id", "info", "created_at").
		Values(entry.UserID, entry.SessionID, entry.DocumentID, entry.Info, created).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := g.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase("insert ignore", err)
	}
	return nil
}

func (g *Gateway) IgnoreClear(ctx context.Context, userID, sessionID string, document *id.ID) error {
	q := g.builder.Delete(ignoresTable).
		Where(squirrel.Eq{"user_id": userID, "session_id": sessionID})
	if document != nil {
		q = q.Where(squirrel.Eq{"document_id": *document})
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := g.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase("clear ignores", err)
	}
	return nil
}

func (g *Gateway) IgnoreList(ctx context.Context, userID, sessionID string) ([]storage.IgnoreEntry, error) {
	sql, args, err := g.builder.Select("user_id", "session_id", "document_id", "info", "created_at").
		From(ignoresTable).
		Where(squirrel.Eq{"user_id": userID, "session_id": sessionID}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	var out []storage.IgnoreEntry
	if err := pgxscan.Select(ctx, g.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, apperror.NewDatabase("select ignores", err)
	}
	return out, nil
}

func (g *Gateway) IgnoreActive(ctx context.Context) ([]storage.IgnoreEntry, error) {
	sql, args, err := g.builder.Select("user_id", "session_id", "document_id", "info", "created_at").
		From(ignoresTable).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	var out []storage.IgnoreEntry
	if err := pgxscan.Select(ctx, g.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, apperror.NewDatabase("select active ignores", err)
	}
	return out, nil
}

func (g *Gateway) IgnoreSweep(ctx context.Context, olderThan time.Time) (int64, error) {
	sql, args, err := g.builder.Delete(ignoresTable).
		Where(squirrel.Lt{"created_at": olderThan}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	res, err := g.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, apperror.NewDatabase("sweep ignores", err)
	}
	return res.RowsAffected(), nil
}

// --- Locks ---

func (g *Gateway) LockAcquire(ctx context.Context, b basis.Basis, userID, sessionID string) (bool, error) {
	sql, args, err := g.builder.Insert(locksTable).
		Columns("basis_type", "basis_id", "user_id", "session_id", "locked_at").
		Values(b.Type, b.ID, userID, sessionID, time.Now().UTC()).
		Suffix(fmt.Sprintf(`ON CONFLICT (basis_type, basis_id) DO UPDATE
SET locked_at = EXCLUDED.locked_at
WHERE %s.session_id = EXCLUDED.session_id`, locksTable)).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build upsert: %w", err)
	}
	res, err := g.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, apperror.NewDatabase("acquire lock", err)
	}
	return res.RowsAffected() > 0, nil
}

func (g *Gateway) LockRelease(ctx context.Context, b basis.Basis, userID, sessionID string) error {
	sql, args, err := g.builder.Delete(locksTable).
		Where(squirrel.Eq{
			"basis_type": b.Type,
			"basis_id":   b.ID,
			"session_id": sessionID,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := g.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase("release lock", err)
	}
	return nil
}

func (g *Gateway) LockInfo(ctx context.Context, b basis.Basis) (*storage.LockInfo, error) {
	sql, args, err := g.builder.Select("user_id", "session_id", "locked_at").
		From(locksTable).
		Where(squirrel.Eq{"basis_type": b.Type, "basis_id": b.ID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := g.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, apperror.NewDatabase("select lock", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var info storage.LockInfo
	if err := rows.Scan(&info.UserID, &info.SessionID, &info.LockedAt); err != nil {
		return nil, apperror.NewDatabase("scan lock", err)
	}
	return &info, nil
}

func (g *Gateway) LockSweep(ctx context.Context, olderThan time.Time) (int64, error) {
	sql, args, err := g.builder.Delete(locksTable).
		Where(squirrel.Lt{"locked_at": olderThan}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	res, err := g.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, apperror.NewDatabase("sweep locks", err)
	}
	return res.RowsAffected(), nil
}
