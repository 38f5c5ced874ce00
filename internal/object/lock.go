package object

import (
	"context"
	"time"

	"tabula/internal/core/apperror"
	"tabula/internal/core/basis"
	"tabula/internal/core/session"
	"tabula/internal/storage"
	"tabula/pkg/logger"
)

// LockManager guards entity edits with session-scoped application
// locks held in storage. The engine never acquires locks on its own:
// callers take a lock before mutating and release it when done.
type LockManager struct {
	gw storage.Gateway
}

// NewLockManager creates a lock manager over the gateway.
func NewLockManager(gw storage.Gateway) *LockManager {
	return &LockManager{gw: gw}
}

// Acquire takes the lock for the caller's session. Returns a locked
// error carrying the holder when another session owns it.
func (m *LockManager) Acquire(ctx context.Context, b basis.Basis) error {
	s := session.FromContext(ctx)
	if s.UserID == "" || s.SessionID == "" {
		return apperror.NewPrecondition("lock acquire requires a session").
			WithDetail("basis", b.String())
	}
	ok, err := m.gw.LockAcquire(ctx, b, s.UserID, s.SessionID)
	if err != nil {
		return err
	}
	if !ok {
		holder := "unknown"
		if info, err := m.gw.LockInfo(ctx, b); err == nil && info != nil {
			holder = info.UserID
		}
		return apperror.NewLocked(b.Type, holder).WithDetail("basis", b.String())
	}
	return nil
}

// Release frees the caller's lock. Releasing a lock held by someone
// else is a no-op at the storage layer.
func (m *LockManager) Release(ctx context.Context, b basis.Basis) error {
	s := session.FromContext(ctx)
	return m.gw.LockRelease(ctx, b, s.UserID, s.SessionID)
}

// Info returns the current holder, or nil when unlocked.
func (m *LockManager) Info(ctx context.Context, b basis.Basis) (*storage.LockInfo, error) {
	return m.gw.LockInfo(ctx, b)
}

// IsLocked reports whether any session holds the lock.
func (m *LockManager) IsLocked(ctx context.Context, b basis.Basis) (bool, error) {
	info, err := m.gw.LockInfo(ctx, b)
	if err != nil {
		return false, err
	}
	return info != nil, nil
}

// Sweep removes locks older than the TTL. Crashed sessions never
// release theirs, so a periodic sweep keeps the table bounded.
func (m *LockManager) Sweep(ctx context.Context, ttl time.Duration) (int64, error) {
	n, err := m.gw.LockSweep(ctx, time.Now().UTC().Add(-ttl))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info(ctx, "swept stale locks", "count", n, "ttl", ttl)
	}
	return n, nil
}
