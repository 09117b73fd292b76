package requisition

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE - Upsert by natural key
// =============================================================================
//
// Submit flow:
//   1. Validate the submission (no store access on failure)
//   2. The period must be open for submission
//   3. The material must exist and be active
//   4. Find the row by Key; update its quantity and comment, or insert it
//
// With atomic upsert (default) step 4 is one insert-or-update statement.
// Without it, steps 2 to 4 run in one transaction. An empty comment on
// update keeps the stored one.

// Engine writes requisitions.
type Engine struct {
	store  TxStore
	now    func() time.Time
	atomic bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used by the period check.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithAtomicUpsert selects the single-statement upsert (true) or the
// transactional check-then-write (false).
func WithAtomicUpsert(on bool) Option {
	return func(e *Engine) { e.atomic = on }
}

// NewEngine creates an engine. Atomic upsert is on by default.
func NewEngine(store TxStore, opts ...Option) *Engine {
	e := &Engine{store: store, now: time.Now, atomic: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit sets the quantity of the requisition identified by s.Key().
func (e *Engine) Submit(ctx context.Context, s Submission) error {
	if err := validate(s); err != nil {
		return err
	}

	key := s.Key()
	row := Requisition{Key: key, Quantity: s.Quantity}
	if c := strings.TrimSpace(s.Comment); c != "" {
		row.Comment = &c
	}

	if e.atomic {
		if err := e.checkWritable(ctx, e.store, key); err != nil {
			return err
		}
		if err := e.store.UpsertRequisition(ctx, row); err != nil {
			return err
		}
		e.logSubmitted(key, s.Quantity)
		return nil
	}

	err := e.store.WithTx(ctx, func(tx Store) error {
		if err := e.checkWritable(ctx, tx, key); err != nil {
			return err
		}

		_, found, err := tx.FindRequisition(ctx, key)
		if err != nil {
			return fmt.Errorf("find requisition: %w", err)
		}
		if found {
			return tx.UpdateRequisition(ctx, row)
		}
		return tx.InsertRequisition(ctx, row)
	})
	if err != nil {
		return err
	}
	e.logSubmitted(key, s.Quantity)
	return nil
}

// checkWritable requires an open period and an active material.
func (e *Engine) checkWritable(ctx context.Context, s Store, key Key) error {
	open, err := isOpen(ctx, s, key.PeriodID, e.now())
	if err != nil {
		return fmt.Errorf("check period: %w", err)
	}
	if !open {
		return fmt.Errorf("%w: %d", ErrPeriodClosed, key.PeriodID)
	}

	active, found, err := s.FindMaterial(ctx, key.MaterialID)
	if err != nil {
		return fmt.Errorf("check material: %w", err)
	}
	if !found {
		return invalid("material", "unknown")
	}
	if !active {
		return invalid("material", "inactive")
	}
	return nil
}

func (e *Engine) logSubmitted(key Key, q decimal.Decimal) {
	log.Debug().
		Str("material", key.MaterialID).
		Int64("zone", key.ZoneID).
		Int64("department", key.DepartmentID).
		Int64("period", key.PeriodID).
		Str("quantity", q.String()).
		Msg("requisition submitted")
}

func validate(s Submission) error {
	if strings.TrimSpace(s.MaterialID) == "" {
		return invalid("material", "required")
	}
	if s.PeriodID <= 0 {
		return invalid("periodo", "required")
	}
	if s.Owner.ZoneID <= 0 || s.Owner.DepartmentID <= 0 {
		return invalid("owner", "zone and department required")
	}
	if s.Quantity.LessThan(decimal.NewFromInt(1)) {
		return invalid("cantidad", "must be at least 1")
	}
	return nil
}
