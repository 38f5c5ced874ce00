package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"tabula/internal/core/apperror"
	"tabula/internal/core/basis"
	"tabula/internal/core/id"
	"tabula/internal/core/schema"
	"tabula/internal/storage"
)

// --- Version history ---

func (g *Gateway) VersionAdd(ctx context.Context, entry *storage.VersionEntry) error {
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	sql, args, err := g.builder.Insert(versionsTable).
		Columns("version_id", "user_id", "basis_type", "basis_id", "op", "snapshot", "compression", "created_at").
		Values(entry.VersionID, entry.UserID, entry.Basis.Type, entry.Basis.ID,
			string(entry.Op), entry.Snapshot, string(entry.Compression), created).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := g.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase("insert version", err)
	}
	return nil
}

func (g *Gateway) VersionsDelete(ctx context.Context, b basis.Basis) error {
	sql, args, err := g.builder.Delete(versionsTable).
		Where(squirrel.Eq{"basis_type": b.Type, "basis_id": b.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := g.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase("delete versions", err)
	}
	return nil
}

func (g *Gateway) VersionsList(ctx context.Context, b basis.Basis, limit int) ([]storage.VersionEntry, error) {
	q := g.builder.Select("version_id", "user_id", "basis_type", "basis_id", "op", "snapshot", "compression", "created_at").
		From(versionsTable).
		Where(squirrel.Eq{"basis_type": b.Type, "basis_id": b.ID}).
		OrderBy("created_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := g.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, apperror.NewDatabase("select versions", err)
	}
	defer rows.Close()

	var out []storage.VersionEntry
	for rows.Next() {
		var (
			e           storage.VersionEntry
			op, compr   string
			basisTypeID string
			basisID     id.ID
		)
		if err := rows.Scan(&e.VersionID, &e.UserID, &basisTypeID, &basisID,
			&op, &e.Snapshot, &compr, &e.CreatedAt); err != nil {
			return nil, apperror.NewDatabase("scan version", err)
		}
		e.Basis = basis.Basis{Type: basisTypeID, ID: basisID}
		e.Op = storage.ChangeOp(op)
		e.Compression = storage.CompressionAlgo(compr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Full-text index ---

func (g *Gateway) FullTextSet(ctx context.Context, b basis.Basis, text string) error {
	sql, args, err := g.builder.Insert(fullTextTable).
		Columns("basis_type", "basis_id", "search_text").
		Values(b.Type, b.ID, text).
		Suffix("ON CONFLICT (basis_type, basis_id) DO UPDATE SET search_text = EXCLUDED.search_text").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := g.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase("upsert fulltext", err)
	}
	return nil
}

func (g *Gateway) FullTextDelete(ctx context.Context, b basis.Basis) error {
	sql, args, err := g.builder.Delete(fullTextTable).
		Where(squirrel.Eq{"basis_type": b.Type, "basis_id": b.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := g.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase("delete fulltext", err)
	}
	return nil
}

func (g *Gateway) FullTextSearch(ctx context.Context, query string, limit int) ([]basis.Basis, error) {
	q := g.builder.Select("basis_type", "basis_id").
		From(fullTextTable).
		Where(squirrel.ILike{"search_text": "%" + query + "%"}).
		OrderBy("basis_type", "basis_id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := g.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, apperror.NewDatabase("search fulltext", err)
	}
	defer rows.Close()

	var out []basis.Basis
	for rows.Next() {
		var b basis.Basis
		if err := rows.Scan(&b.Type, &b.ID); err != nil {
			return nil, apperror.NewDatabase("scan fulltext", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- Register movements and balances ---

// InsertMovements bulk-inserts via COPY when a transaction is active,
// falling back to a multi-row INSERT otherwise.
func (g *Gateway) InsertMovements(ctx context.Context, def *schema.RegisterDef, movements []storage.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	cols := append([]string{"id", "period", "income", "owner_id", "owner_type"}, fieldColumns(def.Fields)...)

	if tx := g.GetTx(ctx); tx != nil {
		rows := make([][]any, 0, len(movements))
		for _, m := range movements {
			rows = append(rows, append([]any{m.ID, m.Period, m.Income, m.OwnerID, m.OwnerType},
				recordArgs(m.Values, def.Fields)...))
		}
		if _, err := NewBatchInserter(g.TxManager).CopyFromSlice(ctx, def.Table, cols, rows); err != nil {
			return apperror.NewDatabase("copy movements", err)
		}
		return nil
	}

	q := g.builder.Insert(def.Table).Columns(cols...)
	for _, m := range movements {
		q = q.Values(append([]any{m.ID, m.Period, m.Income, m.OwnerID, m.OwnerType},
			recordArgs(m.Values, def.Fields)...)...)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := g.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase("insert movements", err)
	}
	return nil
}

func (g *Gateway) DeleteMovements(ctx context.Context, def *schema.RegisterDef, owner id.ID) error {
	sql, args, err := g.builder.Delete(def.Table).
		Where(squirrel.Eq{"owner_id": owner}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := g.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase("delete movements", err)
	}
	return nil
}

func (g *Gateway) SelectMovements(ctx context.Context, def *schema.RegisterDef, owner id.ID) ([]storage.Movement, error) {
	cols := append([]string{"id", "period", "income", "owner_id", "owner_type"}, fieldColumns(def.Fields)...)
	sql, args, err := g.builder.Select(cols...).
		From(def.Table).
		Where(squirrel.Eq{"owner_id": owner}).
		OrderBy("period", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := g.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, apperror.NewDatabase("select movements", err)
	}
	defer rows.Close()

	var out []storage.Movement
	for rows.Next() {
		head, rec, err := scanRecord(rows, 5, def.Fields)
		if err != nil {
			return nil, apperror.NewDatabase("scan movement", err)
		}
		ownerType, _ := head[4].(string)
		out = append(out, storage.Movement{
			ID:        headID(head, 0),
			Period:    headTime(head, 1),
			Income:    headBool(head, 2),
			OwnerID:   headID(head, 3),
			OwnerType: ownerType,
			Values:    rec,
		})
	}
	return out, rows.Err()
}

func (g *Gateway) SelectMovementPeriods(ctx context.Context, def *schema.RegisterDef, owner id.ID, exclude *time.Time) ([]time.Time, error) {
	q := g.builder.Select("DISTINCT period").
		From(def.Table).
		Where(squirrel.Eq{"owner_id": owner}).
		OrderBy("period")
	if exclude != nil {
		q = q.Where(squirrel.NotEq{"period": *exclude})
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var out []time.Time
	if err := pgxscan.Select(ctx, g.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, apperror.NewDatabase("select periods", err)
	}
	return out, nil
}

func (g *Gateway) SumPeriod(ctx context.Context, def *schema.RegisterDef, period time.Time) (map[string]decimal.Decimal, map[string]decimal.Decimal, error) {
	resources := def.Resources()
	cols := []string{"income"}
	for _, f := range resources {
		cols = append(cols, fmt.Sprintf("COALESCE(SUM(%s), 0)", f.Name))
	}

	sql, args, err := g.builder.Select(cols...).
		From(def.Table).
		Where(squirrel.Eq{"period": period}).
		GroupBy("income").
		ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("build sum: %w", err)
	}

	rows, err := g.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, nil, apperror.NewDatabase("sum period", err)
	}
	defer rows.Close()

	var income, expense map[string]decimal.Decimal
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, apperror.NewDatabase("scan sums", err)
		}
		side := map[string]decimal.Decimal{}
		for i, f := range resources {
			if d, ok := normalize(values[i+1]).(decimal.Decimal); ok {
				side[f.Name] = d
			} else if n, ok := values[i+1].(int64); ok {
				side[f.Name] = decimal.NewFromInt(n)
			}
		}
		if isIncome, _ := values[0].(bool); isIncome {
			income = side
		} else {
			expense = side
		}
	}
	return income, expense, rows.Err()
}

func (g *Gateway) UpsertBalance(ctx context.Context, def *schema.RegisterDef, b *storage.Balance) error {
	resources := map[string]struct{}{}
	for r := range b.Income {
		resources[r] = struct{}{}
	}
	for r := range b.Expense {
		resources[r] = struct{}{}
	}

	for resource := range resources {
		sql, args, err := g.builder.Insert(def.BalanceTable()).
			Columns("period", "resource", "income", "expense").
			Values(b.Period, resource, b.Income[resource].String(), b.Expense[resource].String()).
			Suffix("ON CONFLICT (period, resource) DO UPDATE SET income = EXCLUDED.income, expense = EXCLUDED.expense").
			ToSql()
		if err != nil {
			return fmt.Errorf("build upsert: %w", err)
		}
		if _, err := g.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
			return apperror.NewDatabase("upsert balance", err)
		}
	}
	return nil
}

func (g *Gateway) DeleteBalance(ctx context.Context, def *schema.RegisterDef, period time.Time) error {
	sql, args, err := g.builder.Delete(def.BalanceTable()).
		Where(squirrel.Eq{"period": period}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := g.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase("delete balance", err)
	}
	return nil
}

func (g *Gateway) SelectBalance(ctx context.Context, def *schema.RegisterDef, period time.Time) (*storage.Balance, error) {
	sql, args, err := g.builder.Select("resource", "income", "expense").
		From(def.BalanceTable()).
		Where(squirrel.Eq{"period": period}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := g.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, apperror.NewDatabase("select balance", err)
	}
	defer rows.Close()

	var b *storage.Balance
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, apperror.NewDatabase("scan balance", err)
		}
		if b == nil {
			b = &storage.Balance{
				Register: def.Name,
				Period:   period,
				Income:   map[string]decimal.Decimal{},
				Expense:  map[string]decimal.Decimal{},
			}
		}
		resource, _ := values[0].(string)
		if d, ok := normalize(values[1]).(decimal.Decimal); ok {
			b.Income[resource] = d
		}
		if d, ok := normalize(values[2]).(decimal.Decimal); ok {
			b.Expense[resource] = d
		}
	}
	return b, rows.Err()
}
