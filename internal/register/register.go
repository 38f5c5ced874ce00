// Package register implements the accumulation ledger: movement
// storage per posting document, the recalculation trigger queue, and
// the consumer that folds movements into per-period balance totals.
package register

import (
	"context"
	"time"

	"tabula/internal/core/apperror"
	"tabula/internal/core/id"
	"tabula/internal/core/schema"
	"tabula/internal/core/session"
	"tabula/internal/storage"
	"tabula/pkg/logger"
)

// Accumulation is the engine for one accumulation register. Movements
// belong to a recorder document and are replaced wholesale: posting
// deletes the owner's old rows and inserts the new set, never updates
// in place.
type Accumulation struct {
	gw  storage.Gateway
	def *schema.RegisterDef
}

// NewAccumulation creates the engine for the given register.
func NewAccumulation(gw storage.Gateway, def *schema.RegisterDef) *Accumulation {
	return &Accumulation{gw: gw, def: def}
}

// Def returns the register definition.
func (a *Accumulation) Def() *schema.RegisterDef { return a.def }

// Save appends movements for an owner. Missing identifiers are
// generated; the owner and period of each movement must already be
// set by the caller.
func (a *Accumulation) Save(ctx context.Context, movements []storage.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	for i := range movements {
		if id.IsNil(movements[i].ID) {
			movements[i].ID = id.New()
		}
		if id.IsNil(movements[i].OwnerID) {
			return apperror.NewPrecondition("movement requires an owner").
				WithDetail("register", a.def.Name)
		}
	}
	return a.gw.InsertMovements(ctx, a.def, movements)
}

// Delete removes every movement recorded by the owner.
func (a *Accumulation) Delete(ctx context.Context, owner id.ID) error {
	return a.gw.DeleteMovements(ctx, a.def, owner)
}

// Movements returns the owner's current movements.
func (a *Accumulation) Movements(ctx context.Context, owner id.ID) ([]storage.Movement, error) {
	return a.gw.SelectMovements(ctx, a.def, owner)
}

// Balance returns the recomputed totals for one period, or nil when
// the period carries no balance row.
func (a *Accumulation) Balance(ctx context.Context, period time.Time) (*storage.Balance, error) {
	return a.gw.SelectBalance(ctx, a.def, period)
}

// TriggerAdd enqueues a recomputation signal for (period, owner).
// Owners on the caller's ignore list are skipped: during bulk
// re-posting the job emits its own consolidated triggers and must not
// be flooded by per-document ones.
func (a *Accumulation) TriggerAdd(ctx context.Context, period time.Time, owner id.ID, action storage.TriggerAction) error {
	ignored, err := a.ownerIgnored(ctx, owner)
	if err != nil {
		return err
	}
	if ignored {
		logger.Debug(ctx, "trigger suppressed for ignored document",
			"register", a.def.Name, "owner", owner)
		return nil
	}
	return a.gw.RegisterTriggerAdd(ctx, &storage.RegisterTrigger{
		ID:        id.New(),
		Register:  a.def.Name,
		Period:    period,
		OwnerID:   owner,
		Action:    action,
		CreatedAt: time.Now().UTC(),
	})
}

// NotifyPeriodsCleared emits one clear trigger per period the owner
// previously had movements in, excluding current when non-nil. Called
// before re-posting so that balances at abandoned dates get
// recomputed even though no new movements land there.
func (a *Accumulation) NotifyPeriodsCleared(ctx context.Context, owner id.ID, current *time.Time) error {
	periods, err := a.gw.SelectMovementPeriods(ctx, a.def, owner, current)
	if err != nil {
		return err
	}
	for _, p := range periods {
		if err := a.TriggerAdd(ctx, p, owner, storage.TriggerClear); err != nil {
			return err
		}
	}
	return nil
}

// ownerIgnored reports whether the caller's session marked the owner
// as ignored.
func (a *Accumulation) ownerIgnored(ctx context.Context, owner id.ID) (bool, error) {
	s := session.FromContext(ctx)
	if s.UserID == "" && s.SessionID == "" {
		return false, nil
	}
	entries, err := a.gw.IgnoreList(ctx, s.UserID, s.SessionID)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.DocumentID == owner {
			return true, nil
		}
	}
	return false, nil
}
