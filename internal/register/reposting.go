package register

import (
	"context"
	"sort"
	"time"

	"tabula/internal/core/apperror"
	"tabula/internal/core/id"
	"tabula/internal/core/session"
	"tabula/internal/object"
	"tabula/internal/storage"
	"tabula/pkg/logger"
)

// MovementSource recomputes a document's register movements from its
// current state. Keys are register qualified names; the source fills
// Period and resource values, the reposter fills owner attribution.
type MovementSource func(ctx context.Context, doc *object.DocumentObject) (map[string][]storage.Movement, error)

// RepostResult reports how far a bulk re-posting run got.
type RepostResult struct {
	// Processed counts documents fully re-posted and committed.
	Processed int
	// Cancelled is set when the run stopped early on context
	// cancellation. Committed work is kept.
	Cancelled bool
}

// Reposter re-posts documents in bulk: each document's movements are
// deleted and regenerated inside its own transaction, in date order.
// Documents being processed are placed on the session's ignore list so
// per-document trigger emission stays quiet; the job emits one
// consolidated trigger per touched (register, period) instead.
type Reposter struct {
	gw      storage.Gateway
	factory *object.Factory
	source  MovementSource
}

// NewReposter creates a bulk re-posting job runner.
func NewReposter(gw storage.Gateway, factory *object.Factory, source MovementSource) *Reposter {
	return &Reposter{gw: gw, factory: factory, source: source}
}

// Repost re-posts the given documents of one type. Documents are
// processed in spend-date order; cancellation is honored between
// documents and already-committed documents stay re-posted.
func (r *Reposter) Repost(ctx context.Context, docType string, ids []id.ID) (RepostResult, error) {
	var result RepostResult

	s := session.FromContext(ctx)
	if s.UserID == "" || s.SessionID == "" {
		return result, apperror.NewPrecondition("re-posting requires a session")
	}

	docs, err := r.loadDocs(ctx, docType, ids)
	if err != nil {
		return result, err
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].SpendDate().Before(docs[j].SpendDate())
	})

	for _, doc := range docs {
		if err := r.gw.IgnoreAdd(ctx, &storage.IgnoreEntry{
			UserID:     s.UserID,
			SessionID:  s.SessionID,
			DocumentID: doc.ID(),
			Info:       "repost " + docType,
			CreatedAt:  time.Now().UTC(),
		}); err != nil {
			return result, err
		}
	}
	// Leftover markers from a cancelled or failed run must not outlive
	// the job, and committed documents still need their consolidated
	// triggers even when a later document fails.
	touched := map[string]map[time.Time]storage.TriggerAction{}
	defer func() {
		cleanup := context.WithoutCancel(ctx)
		if err := r.gw.IgnoreClear(cleanup, s.UserID, s.SessionID, nil); err != nil {
			logger.Warn(cleanup, "failed to clear ignore markers after repost", "error", err)
		}
		r.emitTriggers(cleanup, touched)
	}()

	var lastDay time.Time

	for _, doc := range docs {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		day := doc.SpendDate().Truncate(24 * time.Hour)
		if !lastDay.IsZero() && !day.Equal(lastDay) {
			if err := r.clearDay(ctx, s, docs, lastDay); err != nil {
				return result, err
			}
		}
		lastDay = day

		if err := r.repostOne(ctx, doc, touched); err != nil {
			return result, err
		}
		result.Processed++
	}

	logger.Info(ctx, "bulk re-posting finished",
		"type", docType, "processed", result.Processed, "cancelled", result.Cancelled)
	return result, nil
}

// loadDocs reads every requested document, failing on absent ids.
func (r *Reposter) loadDocs(ctx context.Context, docType string, ids []id.ID) ([]*object.DocumentObject, error) {
	docs := make([]*object.DocumentObject, 0, len(ids))
	for _, oid := range ids {
		doc, err := r.factory.Document(docType)
		if err != nil {
			return nil, err
		}
		found, err := doc.Read(ctx, oid)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, apperror.NewNotFound(docType, oid)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// repostOne regenerates one document's movements and re-posts it in a
// single transaction.
func (r *Reposter) repostOne(ctx context.Context, doc *object.DocumentObject, touched map[string]map[time.Time]storage.TriggerAction) error {
	owner := doc.ID()
	ownerType := doc.Def().QualifiedName()

	return r.gw.RunInTransaction(ctx, func(ctx context.Context) error {
		byRegister, err := r.source(ctx, doc)
		if err != nil {
			return err
		}
		for name, rows := range byRegister {
			def, ok := r.factory.Registry().GetRegister(name)
			if !ok {
				return apperror.NewValidation("unknown register").WithDetail("register", name)
			}
			acc := NewAccumulation(r.gw, def)

			// Old periods need recomputation too: the document's date
			// may have moved and its movements with it. A period the
			// document abandons is a clear signal unless another
			// movement lands on it.
			oldPeriods, err := r.gw.SelectMovementPeriods(ctx, def, owner, nil)
			if err != nil {
				return err
			}
			for _, p := range oldPeriods {
				touch(touched, name, p, storage.TriggerClear)
			}

			if err := acc.Delete(ctx, owner); err != nil {
				return err
			}
			for i := range rows {
				rows[i].OwnerID = owner
				rows[i].OwnerType = ownerType
				if rows[i].Period.IsZero() {
					rows[i].Period = doc.SpendDate()
				}
				touch(touched, name, rows[i].Period, storage.TriggerAdd)
			}
			if err := acc.Save(ctx, rows); err != nil {
				return err
			}
		}
		return doc.Spend(ctx, true, doc.SpendDate())
	})
}

// clearDay drops ignore markers for every document dated on day.
func (r *Reposter) clearDay(ctx context.Context, s session.Session, docs []*object.DocumentObject, day time.Time) error {
	for _, doc := range docs {
		if doc.SpendDate().Truncate(24 * time.Hour).Equal(day) {
			oid := doc.ID()
			if err := r.gw.IgnoreClear(ctx, s.UserID, s.SessionID, &oid); err != nil {
				return err
			}
		}
	}
	return nil
}

// emitTriggers enqueues one consolidated trigger per touched
// (register, period), covering whatever part of the run committed.
// The movements are already durable, so enqueue failures are logged
// and not surfaced.
func (r *Reposter) emitTriggers(ctx context.Context, touched map[string]map[time.Time]storage.TriggerAction) {
	for name, periods := range touched {
		for p, action := range periods {
			err := r.gw.RegisterTriggerAdd(ctx, &storage.RegisterTrigger{
				ID:        id.New(),
				Register:  name,
				Period:    p,
				OwnerID:   id.Nil(),
				Action:    action,
				CreatedAt: time.Now().UTC(),
			})
			if err != nil {
				logger.Warn(ctx, "failed to enqueue consolidated trigger",
					"register", name, "period", p, "error", err)
			}
		}
	}
}

// touch records that a period needs a consolidated trigger. An add
// wins over a clear: a period one document abandons may be the one
// another document lands on.
func touch(m map[string]map[time.Time]storage.TriggerAction, register string, period time.Time, action storage.TriggerAction) {
	if m[register] == nil {
		m[register] = map[time.Time]storage.TriggerAction{}
	}
	if prev, ok := m[register][period]; ok && prev == storage.TriggerAdd {
		return
	}
	m[register][period] = action
}
