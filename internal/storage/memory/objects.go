package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"tabula/internal/core/apperror"
	"tabula/internal/core/basis"
	"tabula/internal/core/id"
	"tabula/internal/core/schema"
	"tabula/internal/storage"
)

func (s *Store) SelectDirectory(ctx context.Context, def *schema.EntityDef, oid id.ID) (*storage.DirectoryRow, error) {
	defer s.lock(ctx)()
	if err := s.fail("SelectDirectory"); err != nil {
		return nil, err
	}
	row, ok := s.state.directories[def.Table][oid]
	if !ok {
		return nil, nil
	}
	cp := *row
	cp.Values = row.Values.Clone()
	return &cp, nil
}

func (s *Store) InsertDirectory(ctx context.Context, def *schema.EntityDef, row *storage.DirectoryRow) error {
	defer s.lock(ctx)()
	if err := s.fail("InsertDirectory"); err != nil {
		return err
	}
	table := s.state.directories[def.Table]
	if table == nil {
		table = map[id.ID]*storage.DirectoryRow{}
		s.state.directories[def.Table] = table
	}
	if _, exists := table[row.ID]; exists {
		return apperror.NewConflict("duplicate identifier").WithDetail("id", row.ID)
	}
	cp := *row
	cp.Values = row.Values.Clone()
	table[row.ID] = &cp
	return nil
}

func (s *Store) UpdateDirectory(ctx context.Context, def *schema.EntityDef, row *storage.DirectoryRow) error {
	defer s.lock(ctx)()
	if err := s.fail("UpdateDirectory"); err != nil {
		return err
	}
	table := s.state.directories[def.Table]
	if _, exists := table[row.ID]; !exists {
		return apperror.NewNotFound(def.QualifiedName(), row.ID)
	}
	cp := *row
	cp.Values = row.Values.Clone()
	table[row.ID] = &cp
	return nil
}

func (s *Store) SelectDocument(ctx context.Context, def *schema.EntityDef, oid id.ID) (*storage.DocumentRow, error) {
	defer s.lock(ctx)()
	if err := s.fail("SelectDocument"); err != nil {
		return nil, err
	}
	row, ok := s.state.documents[def.Table][oid]
	if !ok {
		return nil, nil
	}
	cp := *row
	cp.Values = row.Values.Clone()
	return &cp, nil
}

func (s *Store) InsertDocument(ctx context.Context, def *schema.EntityDef, row *storage.DocumentRow) error {
	defer s.lock(ctx)()
	if err := s.fail("InsertDocument"); err != nil {
		return err
	}
	table := s.state.documents[def.Table]
	if table == nil {
		table = map[id.ID]*storage.DocumentRow{}
		s.state.documents[def.Table] = table
	}
	if _, exists := table[row.ID]; exists {
		return apperror.NewConflict("duplicate identifier").WithDetail("id", row.ID)
	}
	cp := *row
	cp.Values = row.Values.Clone()
	table[row.ID] = &cp
	return nil
}

func (s *Store) UpdateDocument(ctx context.Context, def *schema.EntityDef, row *storage.DocumentRow) error {
	defer s.lock(ctx)()
	if err := s.fail("UpdateDocument"); err != nil {
		return err
	}
	table := s.state.documents[def.Table]
	if _, exists := table[row.ID]; !exists {
		return apperror.NewNotFound(def.QualifiedName(), row.ID)
	}
	cp := *row
	cp.Values = row.Values.Clone()
	table[row.ID] = &cp
	return nil
}

func (s *Store) SetDeletionMark(ctx context.Context, def *schema.EntityDef, oid id.ID, marked bool) error {
	defer s.lock(ctx)()
	if err := s.fail("SetDeletionMark"); err != nil {
		return err
	}
	if row, ok := s.state.directories[def.Table][oid]; ok {
		row.DeletionMark = marked
		return nil
	}
	if row, ok := s.state.documents[def.Table][oid]; ok {
		row.DeletionMark = marked
		return nil
	}
	return apperror.NewNotFound(def.QualifiedName(), oid)
}

func (s *Store) SetSpend(ctx context.Context, def *schema.EntityDef, oid id.ID, spent bool, date time.Time, clearMark bool) error {
	defer s.lock(ctx)()
	if err := s.fail("SetSpend"); err != nil {
		return err
	}
	row, ok := s.state.documents[def.Table][oid]
	if !ok {
		return apperror.NewNotFound(def.QualifiedName(), oid)
	}
	row.Spent = spent
	row.SpendDate = date
	if clearMark {
		row.DeletionMark = false
	}
	return nil
}

func (s *Store) DeleteObject(ctx context.Context, def *schema.EntityDef, oid id.ID) error {
	defer s.lock(ctx)()
	if err := s.fail("DeleteObject"); err != nil {
		return err
	}
	delete(s.state.directories[def.Table], oid)
	delete(s.state.documents[def.Table], oid)
	return nil
}

func (s *Store) ExistsID(ctx context.Context, def *schema.EntityDef, oid id.ID) (bool, error) {
	defer s.lock(ctx)()
	if err := s.fail("ExistsID"); err != nil {
		return false, err
	}
	if _, ok := s.state.directories[def.Table][oid]; ok {
		return true, nil
	}
	_, ok := s.state.documents[def.Table][oid]
	return ok, nil
}

func (s *Store) Presentation(ctx context.Context, def *schema.EntityDef, oid id.ID, fields []string) (string, error) {
	defer s.lock(ctx)()
	if err := s.fail("Presentation"); err != nil {
		return "", err
	}
	var values schema.Record
	if row, ok := s.state.directories[def.Table][oid]; ok {
		values = row.Values
	} else if row, ok := s.state.documents[def.Table][oid]; ok {
		values = row.Values
	} else {
		return "", nil
	}
	return presentationOf(values, fields), nil
}

func presentationOf(values schema.Record, fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if v := values.GetString(f); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

func (s *Store) ListDirectories(ctx context.Context, def *schema.EntityDef, filter storage.ListFilter) ([]storage.DirectoryRow, error) {
	defer s.lock(ctx)()
	if err := s.fail("ListDirectories"); err != nil {
		return nil, err
	}
	var out []storage.DirectoryRow
	for _, row := range s.state.directories[def.Table] {
		if !matchDirectory(def, row, filter) {
			continue
		}
		cp := *row
		cp.Values = row.Values.Clone()
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		pi := presentationOf(out[i].Values, def.Presentation)
		pj := presentationOf(out[j].Values, def.Presentation)
		if pi != pj {
			return pi < pj
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, filter), nil
}

func (s *Store) ListDocuments(ctx context.Context, def *schema.EntityDef, filter storage.ListFilter) ([]storage.DocumentRow, error) {
	defer s.lock(ctx)()
	if err := s.fail("ListDocuments"); err != nil {
		return nil, err
	}
	out := s.documentsUnder(def, filter)
	return page(out, filter), nil
}

func (s *Store) CountObjects(ctx context.Context, def *schema.EntityDef, filter storage.ListFilter) (int64, error) {
	defer s.lock(ctx)()
	if err := s.fail("CountObjects"); err != nil {
		return 0, err
	}
	if def.Kind == basis.KindDirectory {
		n := int64(0)
		for _, row := range s.state.directories[def.Table] {
			if matchDirectory(def, row, filter) {
				n++
			}
		}
		return n, nil
	}
	return int64(len(s.documentsUnder(def, filter))), nil
}

func (s *Store) ObjectOffset(ctx context.Context, def *schema.EntityDef, filter storage.ListFilter, anchor id.ID) (int64, error) {
	defer s.lock(ctx)()
	if err := s.fail("ObjectOffset"); err != nil {
		return 0, err
	}
	for i, row := range s.documentsUnder(def, filter) {
		if row.ID == anchor {
			return int64(i), nil
		}
	}
	return 0, apperror.NewNotFound(def.QualifiedName(), anchor)
}

// documentsUnder returns matching documents in the default journal
// ordering: spend date ascending, identifier as tiebreak.
func (s *Store) documentsUnder(def *schema.EntityDef, filter storage.ListFilter) []storage.DocumentRow {
	var out []storage.DocumentRow
	for _, row := range s.state.documents[def.Table] {
		if !matchDocument(def, row, filter) {
			continue
		}
		cp := *row
		cp.Values = row.Values.Clone()
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SpendDate.Equal(out[j].SpendDate) {
			return out[i].SpendDate.Before(out[j].SpendDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func matchDirectory(def *schema.EntityDef, row *storage.DirectoryRow, f storage.ListFilter) bool {
	if row.DeletionMark && !f.IncludeDeleted {
		return false
	}
	return matchSearch(def, row.Values, f.Search)
}

func matchDocument(def *schema.EntityDef, row *storage.DocumentRow, f storage.ListFilter) bool {
	if row.DeletionMark && !f.IncludeDeleted {
		return false
	}
	if f.FromDate != nil && row.SpendDate.Before(*f.FromDate) {
		return false
	}
	if f.ToDate != nil && row.SpendDate.After(*f.ToDate) {
		return false
	}
	return matchSearch(def, row.Values, f.Search)
}

func matchSearch(def *schema.EntityDef, values schema.Record, search string) bool {
	if search == "" {
		return true
	}
	text := strings.ToLower(presentationOf(values, def.Presentation))
	return strings.Contains(text, strings.ToLower(search))
}

func page[T any](rows []T, f storage.ListFilter) []T {
	if f.Offset > 0 {
		if f.Offset >= len(rows) {
			return nil
		}
		rows = rows[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(rows) {
		rows = rows[:f.Limit]
	}
	return rows
}

// --- Table parts ---

func (s *Store) SelectTableParts(ctx context.Context, part *schema.TablePartDef, owner id.ID) ([]storage.TablePartRow, error) {
	defer s.lock(ctx)()
	if err := s.fail("SelectTableParts"); err != nil {
		return nil, err
	}
	var out []storage.TablePartRow
	for _, row := range s.state.tableParts[part.Table] {
		if row.OwnerID == owner {
			cp := row
			cp.Values = row.Values.Clone()
			out = append(out, cp)
		}
	}
	return out, nil
}

func (s *Store) InsertTablePart(ctx context.Context, part *schema.TablePartDef, row *storage.TablePartRow) error {
	defer s.lock(ctx)()
	if err := s.fail("InsertTablePart"); err != nil {
		return err
	}
	cp := *row
	cp.Values = row.Values.Clone()
	s.state.tableParts[part.Table] = append(s.state.tableParts[part.Table], cp)
	return nil
}

func (s *Store) DeleteTableParts(ctx context.Context, part *schema.TablePartDef, owner id.ID) error {
	defer s.lock(ctx)()
	if err := s.fail("DeleteTableParts"); err != nil {
		return err
	}
	rows := s.state.tableParts[part.Table]
	kept := rows[:0]
	for _, row := range rows {
		if row.OwnerID != owner {
			kept = append(kept, row)
		}
	}
	s.state.tableParts[part.Table] = kept
	return nil
}
