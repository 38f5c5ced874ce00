package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tabula/internal/core/basis"
	"tabula/internal/core/id"
	"tabula/internal/core/schema"
	"tabula/internal/storage"
)

// --- Version history ---

func (s *Store) VersionAdd(ctx context.Context, entry *storage.VersionEntry) error {
	defer s.lock(ctx)()
	if err := s.fail("VersionAdd"); err != nil {
		return err
	}
	cp := *entry
	cp.Snapshot = append([]byte(nil), entry.Snapshot...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.state.versions = append(s.state.versions, cp)
	return nil
}

func (s *Store) VersionsDelete(ctx context.Context, b basis.Basis) error {
	defer s.lock(ctx)()
	if err := s.fail("VersionsDelete"); err != nil {
		return err
	}
	kept := s.state.versions[:0]
	for _, v := range s.state.versions {
		if v.Basis != b {
			kept = append(kept, v)
		}
	}
	s.state.versions = kept
	return nil
}

func (s *Store) VersionsList(ctx context.Context, b basis.Basis, limit int) ([]storage.VersionEntry, error) {
	defer s.lock(ctx)()
	if err := s.fail("VersionsList"); err != nil {
		return nil, err
	}
	var out []storage.VersionEntry
	for _, v := range s.state.versions {
		if v.Basis == b {
			cp := v
			cp.Snapshot = append([]byte(nil), v.Snapshot...)
			out = append(out, cp)
		}
	}
	// Newest first, insertion order as tiebreak.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// --- Full-text index ---

func (s *Store) FullTextSet(ctx context.Context, b basis.Basis, text string) error {
	defer s.lock(ctx)()
	if err := s.fail("FullTextSet"); err != nil {
		return err
	}
	s.state.fullText[b] = text
	return nil
}

func (s *Store) FullTextDelete(ctx context.Context, b basis.Basis) error {
	defer s.lock(ctx)()
	if err := s.fail("FullTextDelete"); err != nil {
		return err
	}
	delete(s.state.fullText, b)
	return nil
}

func (s *Store) FullTextSearch(ctx context.Context, query string, limit int) ([]basis.Basis, error) {
	defer s.lock(ctx)()
	if err := s.fail("FullTextSearch"); err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var out []basis.Basis
	for b, text := range s.state.fullText {
		if strings.Contains(strings.ToLower(text), q) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// --- Register movements and balances ---

func (s *Store) InsertMovements(ctx context.Context, def *schema.RegisterDef, movements []storage.Movement) error {
	defer s.lock(ctx)()
	if err := s.fail("InsertMovements"); err != nil {
		return err
	}
	for _, m := range movements {
		cp := m
		cp.Values = m.Values.Clone()
		s.state.movements[def.Name] = append(s.state.movements[def.Name], cp)
	}
	return nil
}

func (s *Store) DeleteMovements(ctx context.Context, def *schema.RegisterDef, owner id.ID) error {
	defer s.lock(ctx)()
	if err := s.fail("DeleteMovements"); err != nil {
		return err
	}
	rows := s.state.movements[def.Name]
	kept := rows[:0]
	for _, m := range rows {
		if m.OwnerID != owner {
			kept = append(kept, m)
		}
	}
	s.state.movements[def.Name] = kept
	return nil
}

func (s *Store) SelectMovements(ctx context.Context, def *schema.RegisterDef, owner id.ID) ([]storage.Movement, error) {
	defer s.lock(ctx)()
	if err := s.fail("SelectMovements"); err != nil {
		return nil, err
	}
	var out []storage.Movement
	for _, m := range s.state.movements[def.Name] {
		if m.OwnerID == owner {
			cp := m
			cp.Values = m.Values.Clone()
			out = append(out, cp)
		}
	}
	return out, nil
}

func (s *Store) SelectMovementPeriods(ctx context.Context, def *schema.RegisterDef, owner id.ID, exclude *time.Time) ([]time.Time, error) {
	defer s.lock(ctx)()
	if err := s.fail("SelectMovementPeriods"); err != nil {
		return nil, err
	}
	seen := map[time.Time]struct{}{}
	var out []time.Time
	for _, m := range s.state.movements[def.Name] {
		if m.OwnerID != owner {
			continue
		}
		if exclude != nil && m.Period.Equal(*exclude) {
			continue
		}
		if _, ok := seen[m.Period]; ok {
			continue
		}
		seen[m.Period] = struct{}{}
		out = append(out, m.Period)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (s *Store) SumPeriod(ctx context.Context, def *schema.RegisterDef, period time.Time) (map[string]decimal.Decimal, map[string]decimal.Decimal, error) {
	defer s.lock(ctx)()
	if err := s.fail("SumPeriod"); err != nil {
		return nil, nil, err
	}
	income := map[string]decimal.Decimal{}
	expense := map[string]decimal.Decimal{}
	resources := def.Resources()
	found := false
	for _, m := range s.state.movements[def.Name] {
		if !m.Period.Equal(period) {
			continue
		}
		found = true
		side := expense
		if m.Income {
			side = income
		}
		for _, f := range resources {
			side[f.Name] = side[f.Name].Add(m.Values.GetDecimal(f.Name))
		}
	}
	if !found {
		return nil, nil, nil
	}
	return income, expense, nil
}

func (s *Store) UpsertBalance(ctx context.Context, def *schema.RegisterDef, b *storage.Balance) error {
	defer s.lock(ctx)()
	if err := s.fail("UpsertBalance"); err != nil {
		return err
	}
	periods := s.state.balances[def.Name]
	if periods == nil {
		periods = map[time.Time]*storage.Balance{}
		s.state.balances[def.Name] = periods
	}
	periods[b.Period] = cloneBalance(b)
	return nil
}

func (s *Store) DeleteBalance(ctx context.Context, def *schema.RegisterDef, period time.Time) error {
	defer s.lock(ctx)()
	if err := s.fail("DeleteBalance"); err != nil {
		return err
	}
	delete(s.state.balances[def.Name], period)
	return nil
}

func (s *Store) SelectBalance(ctx context.Context, def *schema.RegisterDef, period time.Time) (*storage.Balance, error) {
	defer s.lock(ctx)()
	if err := s.fail("SelectBalance"); err != nil {
		return nil, err
	}
	b, ok := s.state.balances[def.Name][period]
	if !ok {
		return nil, nil
	}
	return cloneBalance(b), nil
}

// --- Triggers and suppression ---

func (s *Store) ObjectTriggerAdd(ctx context.Context, change *storage.ObjectChange) error {
	defer s.lock(ctx)()
	if err := s.fail("ObjectTriggerAdd"); err != nil {
		return err
	}
	cp := *change
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.state.changes = append(s.state.changes, cp)
	return nil
}

// ObjectChanges returns the recorded change events, for inspection.
func (s *Store) ObjectChanges() []storage.ObjectChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.ObjectChange(nil), s.state.changes...)
}

func (s *Store) RegisterTriggerAdd(ctx context.Context, trigger *storage.RegisterTrigger) error {
	defer s.lock(ctx)()
	if err := s.fail("RegisterTriggerAdd"); err != nil {
		return err
	}
	s.state.triggers = append(s.state.triggers, *trigger)
	return nil
}

func (s *Store) TriggersTake(ctx context.Context, limit int) ([]storage.RegisterTrigger, error) {
	defer s.lock(ctx)()
	if err := s.fail("TriggersTake"); err != nil {
		return nil, err
	}
	n := len(s.state.triggers)
	if limit > 0 && limit < n {
		n = limit
	}
	taken := append([]storage.RegisterTrigger(nil), s.state.triggers[:n]...)
	s.state.triggers = append([]storage.RegisterTrigger(nil), s.state.triggers[n:]...)
	return taken, nil
}

func (s *Store) TriggerDepth(ctx context.Context) (int64, error) {
	defer s.lock(ctx)()
	if err := s.fail("TriggerDepth"); err != nil {
		return 0, err
	}
	return int64(len(s.state.triggers)), nil
}

func (s *Store) IgnoreAdd(ctx context.Context, entry *storage.IgnoreEntry) error {
	defer s.lock(ctx)()
	if err := s.fail("IgnoreAdd"); err != nil {
		return err
	}
	cp := *entry
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.state.ignores = append(s.state.ignores, cp)
	return nil
}

func (s *Store) IgnoreClear(ctx context.Context, userID, sessionID string, document *id.ID) error {
	defer s.lock(ctx)()
	if err := s.fail("IgnoreClear"); err != nil {
		return err
	}
	kept := s.state.ignores[:0]
	for _, e := range s.state.ignores {
		match := e.UserID == userID && e.SessionID == sessionID &&
			(document == nil || e.DocumentID == *document)
		if !match {
			kept = append(kept, e)
		}
	}
	s.state.ignores = kept
	return nil
}

func (s *Store) IgnoreList(ctx context.Context, userID, sessionID string) ([]storage.IgnoreEntry, error) {
	defer s.lock(ctx)()
	if err := s.fail("IgnoreList"); err != nil {
		return nil, err
	}
	var out []storage.IgnoreEntry
	for _, e := range s.state.ignores {
		if e.UserID == userID && e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) IgnoreActive(ctx context.Context) ([]storage.IgnoreEntry, error) {
	defer s.lock(ctx)()
	if err := s.fail("IgnoreActive"); err != nil {
		return nil, err
	}
	return append([]storage.IgnoreEntry(nil), s.state.ignores...), nil
}

func (s *Store) IgnoreSweep(ctx context.Context, olderThan time.Time) (int64, error) {
	defer s.lock(ctx)()
	if err := s.fail("IgnoreSweep"); err != nil {
		return 0, err
	}
	kept := s.state.ignores[:0]
	removed := int64(0)
	for _, e := range s.state.ignores {
		if e.CreatedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.state.ignores = kept
	return removed, nil
}

// --- Locks ---

func (s *Store) LockAcquire(ctx context.Context, b basis.Basis, userID, sessionID string) (bool, error) {
	defer s.lock(ctx)()
	if err := s.fail("LockAcquire"); err != nil {
		return false, err
	}
	if held, ok := s.state.locks[b]; ok && held.SessionID != sessionID {
		return false, nil
	}
	s.state.locks[b] = &storage.LockInfo{
		UserID:    userID,
		SessionID: sessionID,
		LockedAt:  time.Now().UTC(),
	}
	return true, nil
}

func (s *Store) LockRelease(ctx context.Context, b basis.Basis, userID, sessionID string) error {
	defer s.lock(ctx)()
	if err := s.fail("LockRelease"); err != nil {
		return err
	}
	if held, ok := s.state.locks[b]; ok && held.SessionID == sessionID {
		delete(s.state.locks, b)
	}
	return nil
}

func (s *Store) LockInfo(ctx context.Context, b basis.Basis) (*storage.LockInfo, error) {
	defer s.lock(ctx)()
	if err := s.fail("LockInfo"); err != nil {
		return nil, err
	}
	held, ok := s.state.locks[b]
	if !ok {
		return nil, nil
	}
	cp := *held
	return &cp, nil
}

func (s *Store) LockSweep(ctx context.Context, olderThan time.Time) (int64, error) {
	defer s.lock(ctx)()
	if err := s.fail("LockSweep"); err != nil {
		return 0, err
	}
	removed := int64(0)
	for b, held := range s.state.locks {
		if held.LockedAt.Before(olderThan) {
			delete(s.state.locks, b)
			removed++
		}
	}
	return removed, nil
}
