package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"tabula/internal/core/apperror"
	"tabula/internal/core/basis"
	"tabula/internal/core/id"
	"tabula/internal/core/schema"
	"tabula/internal/storage"
)

func (g *Gateway) SelectDirectory(ctx context.Context, def *schema.EntityDef, oid id.ID) (*storage.DirectoryRow, error) {
	cols := append([]string{"id", "deletion_mark"}, fieldColumns(def.Fields)...)
	sql, args, err := g.builder.Select(cols...).
		From(def.Table).
		Where(squirrel.Eq{"id": oid}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := g.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, apperror.NewDatabase("select directory", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	head, rec, err := scanRecord(rows, 2, def.Fields)
	if err != nil {
		return nil, apperror.NewDatabase("scan directory", err)
	}
	return &storage.DirectoryRow{
		ID:           headID(head, 0),
		DeletionMark: headBool(head, 1),
		Values:       rec,
	}, nil
}

func (g *Gateway) InsertDirectory(ctx context.Context, def *schema.EntityDef, row *storage.DirectoryRow) error {
	cols := append([]string{"id", "deletion_mark"}, fieldColumns(def.Fields)...)
	args := append([]any{row.ID, row.DeletionMark}, recordArgs(row.Values, def.Fields)...)

	sql, sqlArgs, err := g.builder.Insert(def.Table).
		Columns(cols...).
		Values(args...).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := g.GetQuerier(ctx).Exec(ctx, sql, sqlArgs...); err != nil {
		return apperror.NewDatabase("insert "+def.Table, err)
	}
	return nil
}

func (g *Gateway) UpdateDirectory(ctx context.Context, def *schema.EntityDef, row *storage.DirectoryRow) error {
	return g.updateEntity(ctx, def, row.ID, row.DeletionMark, nil, row.Values)
}

func (g *Gateway) SelectDocument(ctx context.Context, def *schema.EntityDef, oid id.ID) (*storage.DocumentRow, error) {
	cols := append([]string{"id", "deletion_mark", "spent", "spend_date", "version_id"}, fieldColumns(def.Fields)...)
	sql, args, err := g.builder.Select(cols...).
		From(def.Table).
		Where(squirrel.Eq{"id": oid}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := g.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, apperror.NewDatabase("select document", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	head, rec, err := scanRecord(rows, 5, def.Fields)
	if err != nil {
		return nil, apperror.NewDatabase("scan document", err)
	}
	return &storage.DocumentRow{
		ID:           headID(head, 0),
		DeletionMark: headBool(head, 1),
		Spent:        headBool(head, 2),
		SpendDate:    headTime(head, 3),
		VersionID:    headID(head, 4),
		Values:       rec,
	}, nil
}

func (g *Gateway) InsertDocument(ctx context.Context, def *schema.EntityDef, row *storage.DocumentRow) error {
	cols := append([]string{"id", "deletion_mark", "spent", "spend_date", "version_id"}, fieldColumns(def.Fields)...)
	args := append([]any{row.ID, row.DeletionMark, row.Spent, row.SpendDate, row.VersionID},
		recordArgs(row.Values, def.Fields)...)

	sql, sqlArgs, err := g.builder.Insert(def.Table).
		Columns(cols...).
		Values(args...).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := g.GetQuerier(ctx).Exec(ctx, sql, sqlArgs...); err != nil {
		return apperror.NewDatabase("insert "+def.Table, err)
	}
	return nil
}

func (g *Gateway) UpdateDocument(ctx context.Context, def *schema.EntityDef, row *storage.DocumentRow) error {
	spend := map[string]any{
		"spent":      row.Spent,
		"spend_date": row.SpendDate,
		"version_id": row.VersionID,
	}
	return g.updateEntity(ctx, def, row.ID, row.DeletionMark, spend, row.Values)
}

// updateEntity writes the full row back. extra carries document-only
// columns.
func (g *Gateway) updateEntity(ctx context.Context, def *schema.EntityDef, oid id.ID, mark bool, extra map[string]any, values schema.Record) error {
	q := g.builder.Update(def.Table).
		Set("deletion_mark", mark).
		Where(squirrel.Eq{"id": oid})
	for col, v := range extra {
		q = q.Set(col, v)
	}
	for _, f := range def.Fields {
		q = q.Set(f.Name, storableValue(values.Get(f.Name)))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	res, err := g.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewDatabase("update "+def.Table, err)
	}
	if res.RowsAffected() == 0 {
		return apperror.NewNotFound(def.QualifiedName(), oid)
	}
	return nil
}

func (g *Gateway) SetDeletionMark(ctx context.Context, def *schema.EntityDef, oid id.ID, marked bool) error {
	sql, args, err := g.builder.Update(def.Table).
		Set("deletion_mark", marked).
		Where(squirrel.Eq{"id": oid}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	res, err := g.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewDatabase("set deletion mark", err)
	}
	if res.RowsAffected() == 0 {
		return apperror.NewNotFound(def.QualifiedName(), oid)
	}
	return nil
}

func (g *Gateway) SetSpend(ctx context.Context, def *schema.EntityDef, oid id.ID, spent bool, date time.Time, clearMark bool) error {
	q := g.builder.Update(def.Table).
		Set("spent", spent).
		Set("spend_date", date).
		Where(squirrel.Eq{"id": oid})
	if clearMark {
		q = q.Set("deletion_mark", false)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	res, err := g.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewDatabase("set spend", err)
	}
	if res.RowsAffected() == 0 {
		return apperror.NewNotFound(def.QualifiedName(), oid)
	}
	return nil
}

func (g *Gateway) DeleteObject(ctx context.Context, def *schema.EntityDef, oid id.ID) error {
	sql, args, err := g.builder.Delete(def.Table).
		Where(squirrel.Eq{"id": oid}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := g.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase("delete "+def.Table, err)
	}
	return nil
}

func (g *Gateway) ExistsID(ctx context.Context, def *schema.EntityDef, oid id.ID) (bool, error) {
	sql, args, err := g.builder.Select("1").
		From(def.Table).
		Where(squirrel.Eq{"id": oid}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build select: %w", err)
	}
	rows, err := g.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return false, apperror.NewDatabase("exists "+def.Table, err)
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}

func (g *Gateway) Presentation(ctx context.Context, def *schema.EntityDef, oid id.ID, fields []string) (string, error) {
	if len(fields) == 0 {
		return "", nil
	}
	sql, args, err := g.builder.Select(fields...).
		From(def.Table).
		Where(squirrel.Eq{"id": oid}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build select: %w", err)
	}

	rows, err := g.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return "", apperror.NewDatabase("select presentation", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return "", rows.Err()
	}
	values, err := rows.Values()
	if err != nil {
		return "", apperror.NewDatabase("scan presentation", err)
	}
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " "), nil
}

func (g *Gateway) ListDirectories(ctx context.Context, def *schema.EntityDef, filter storage.ListFilter) ([]storage.DirectoryRow, error) {
	cols := append([]string{"id", "deletion_mark"}, fieldColumns(def.Fields)...)
	q := g.applyFilter(g.builder.Select(cols...).From(def.Table), def, filter)
	for _, f := range def.Presentation {
		q = q.OrderBy(f)
	}
	q = q.OrderBy("id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := g.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, apperror.NewDatabase("list "+def.Table, err)
	}
	defer rows.Close()

	var out []storage.DirectoryRow
	for rows.Next() {
		head, rec, err := scanRecord(rows, 2, def.Fields)
		if err != nil {
			return nil, apperror.NewDatabase("scan "+def.Table, err)
		}
		out = append(out, storage.DirectoryRow{
			ID:           headID(head, 0),
			DeletionMark: headBool(head, 1),
			Values:       rec,
		})
	}
	return out, rows.Err()
}

func (g *Gateway) ListDocuments(ctx context.Context, def *schema.EntityDef, filter storage.ListFilter) ([]storage.DocumentRow, error) {
	cols := append([]string{"id", "deletion_mark", "spent", "spend_date", "version_id"}, fieldColumns(def.Fields)...)
	q := g.applyFilter(g.builder.Select(cols...).From(def.Table), def, filter).
		OrderBy("spend_date", "id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := g.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, apperror.NewDatabase("list "+def.Table, err)
	}
	defer rows.Close()

	var out []storage.DocumentRow
	for rows.Next() {
		head, rec, err := scanRecord(rows, 5, def.Fields)
		if err != nil {
			return nil, apperror.NewDatabase("scan "+def.Table, err)
		}
		out = append(out, storage.DocumentRow{
			ID:           headID(head, 0),
			DeletionMark: headBool(head, 1),
			Spent:        headBool(head, 2),
			SpendDate:    headTime(head, 3),
			VersionID:    headID(head, 4),
			Values:       rec,
		})
	}
	return out, rows.Err()
}

func (g *Gateway) CountObjects(ctx context.Context, def *schema.EntityDef, filter storage.ListFilter) (int64, error) {
	noPage := filter
	noPage.Limit, noPage.Offset = 0, 0
	q := g.applyFilter(g.builder.Select("COUNT(*)").From(def.Table), def, noPage)

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int64
	if err := g.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, apperror.NewDatabase("count "+def.Table, err)
	}
	return n, nil
}

// ObjectOffset counts rows ordered before the anchor under the journal
// ordering: spend date ascending, identifier as tiebreak.
func (g *Gateway) ObjectOffset(ctx context.Context, def *schema.EntityDef, filter storage.ListFilter, anchor id.ID) (int64, error) {
	noPage := filter
	noPage.Limit, noPage.Offset = 0, 0
	q := g.applyFilter(g.builder.Select("COUNT(*)").From(def.Table+" t"), def, noPage).
		Where(fmt.Sprintf(`(t.spend_date, t.id) < (SELECT a.spend_date, a.id FROM %s a WHERE a.id = ?)`, def.Table), anchor)

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build offset: %w", err)
	}
	var n int64
	if err := g.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, apperror.NewDatabase("offset "+def.Table, err)
	}
	return n, nil
}

func (g *Gateway) applyFilter(q squirrel.SelectBuilder, def *schema.EntityDef, f storage.ListFilter) squirrel.SelectBuilder {
	if !f.IncludeDeleted {
		q = q.Where(squirrel.Eq{"deletion_mark": false})
	}
	if f.Search != "" && len(def.Presentation) > 0 {
		or := squirrel.Or{}
		for _, col := range def.Presentation {
			or = append(or, squirrel.ILike{col: "%" + f.Search + "%"})
		}
		q = q.Where(or)
	}
	if def.Kind == basis.KindDocument {
		if f.FromDate != nil {
			q = q.Where(squirrel.GtOrEq{"spend_date": *f.FromDate})
		}
		if f.ToDate != nil {
			q = q.Where(squirrel.LtOrEq{"spend_date": *f.ToDate})
		}
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}

// --- Table parts ---

func (g *Gateway) SelectTableParts(ctx context.Context, part *schema.TablePartDef, owner id.ID) ([]storage.TablePartRow, error) {
	cols := append([]string{"id", "owner_id"}, fieldColumns(part.Columns)...)
	sql, args, err := g.builder.Select(cols...).
		From(part.Table).
		Where(squirrel.Eq{"owner_id": owner}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := g.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, apperror.NewDatabase("select "+part.Table, err)
	}
	defer rows.Close()

	var out []storage.TablePartRow
	for rows.Next() {
		head, rec, err := scanRecord(rows, 2, part.Columns)
		if err != nil {
			return nil, apperror.NewDatabase("scan "+part.Table, err)
		}
		out = append(out, storage.TablePartRow{
			ID:      headID(head, 0),
			OwnerID: headID(head, 1),
			Values:  rec,
		})
	}
	return out, rows.Err()
}

func (g *Gateway) InsertTablePart(ctx context.Context, part *schema.TablePartDef, row *storage.TablePartRow) error {
	cols := append([]string{"id", "owner_id"}, fieldColumns(part.Columns)...)
	args := append([]any{row.ID, row.OwnerID}, recordArgs(row.Values, part.Columns)...)

	sql, sqlArgs, err := g.builder.Insert(part.Table).
		Columns(cols...).
		Values(args...).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := g.GetQuerier(ctx).Exec(ctx, sql, sqlArgs...); err != nil {
		return apperror.NewDatabase("insert "+part.Table, err)
	}
	return nil
}

func (g *Gateway) DeleteTableParts(ctx context.Context, part *schema.TablePartDef, owner id.ID) error {
	sql, args, err := g.builder.Delete(part.Table).
		Where(squirrel.Eq{"owner_id": owner}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := g.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase("delete "+part.Table, err)
	}
	return nil
}
