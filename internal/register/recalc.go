package register

import (
	"context"
	"time"

	"tabula/internal/core/schema"
	"tabula/internal/storage"
	"tabula/pkg/logger"
)

// Recalculator drains the trigger queue and recomputes balance totals.
// It is safe to run concurrently with posting: triggers are idempotent
// recompute requests, so replaying one only redoes work.
type Recalculator struct {
	gw       storage.Gateway
	registry *schema.Registry
	batch    int
}

// NewRecalculator creates a queue consumer taking up to batch triggers
// per run.
func NewRecalculator(gw storage.Gateway, registry *schema.Registry, batch int) *Recalculator {
	if batch <= 0 {
		batch = 100
	}
	return &Recalculator{gw: gw, registry: registry, batch: batch}
}

// RunOnce takes one batch of triggers and recomputes each distinct
// (register, period) they name. Triggers whose owner carries a live
// ignore marker are dropped: the owning bulk job will emit its own
// consolidated signal when it finishes. Returns the number of periods
// recomputed.
func (r *Recalculator) RunOnce(ctx context.Context) (int, error) {
	triggers, err := r.gw.TriggersTake(ctx, r.batch)
	if err != nil {
		return 0, err
	}
	if len(triggers) == 0 {
		return 0, nil
	}

	ignored, err := r.ignoredOwners(ctx)
	if err != nil {
		return 0, err
	}

	type key struct {
		register string
		period   time.Time
	}
	work := map[key]struct{}{}
	for _, t := range triggers {
		if _, skip := ignored[t.OwnerID.String()]; skip {
			continue
		}
		work[key{t.Register, t.Period}] = struct{}{}
	}

	done := 0
	for k := range work {
		def, ok := r.registry.GetRegister(k.register)
		if !ok {
			logger.Warn(ctx, "trigger names unknown register", "register", k.register)
			continue
		}
		if err := r.recompute(ctx, def, k.period); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}

// Run consumes the queue on the interval until the context ends.
func (r *Recalculator) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := r.RunOnce(ctx)
			if err != nil {
				logger.Error(ctx, "balance recalculation failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug(ctx, "recomputed balance periods", "count", n)
			}
		}
	}
}

// recompute sums the period from movements and writes or clears the
// balance row in one transaction.
func (r *Recalculator) recompute(ctx context.Context, def *schema.RegisterDef, period time.Time) error {
	return r.gw.RunInTransaction(ctx, func(ctx context.Context) error {
		income, expense, err := r.gw.SumPeriod(ctx, def, period)
		if err != nil {
			return err
		}
		if len(income) == 0 && len(expense) == 0 {
			return r.gw.DeleteBalance(ctx, def, period)
		}
		return r.gw.UpsertBalance(ctx, def, &storage.Balance{
			Register: def.Name,
			Period:   period,
			Income:   income,
			Expense:  expense,
		})
	})
}

// ignoredOwners collects every live ignore marker across sessions.
func (r *Recalculator) ignoredOwners(ctx context.Context) (map[string]struct{}, error) {
	entries, err := r.gw.IgnoreActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		out[e.DocumentID.String()] = struct{}{}
	}
	return out, nil
}
