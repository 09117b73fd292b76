package requisition

import (
	"context"
	"errors"
	"time"
)

// =============================================================================
// PERIOD GATE - Decides whether a period accepts submissions
// =============================================================================
//
// "Open" and "editable" are different things:
//
//   Open:     Active && Start <= now <= End     (gates writes)
//   Editable: Start < now < End                (display flag only)
//
// The clock is injected so every backend sees the same "now".

// Gate answers open-for-submission questions about periods.
type Gate struct {
	store Store
	now   func() time.Time
}

// NewGate creates a gate. A nil clock uses time.Now.
func NewGate(store Store, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{store: store, now: now}
}

// IsOpenForSubmission returns true if the period exists, is active and now
// lies within its boundaries, both inclusive.
func (g *Gate) IsOpenForSubmission(ctx context.Context, periodID int64) (bool, error) {
	return isOpen(ctx, g.store, periodID, g.now())
}

func isOpen(ctx context.Context, s Store, periodID int64, now time.Time) (bool, error) {
	p, err := s.FindPeriod(ctx, periodID)
	if errors.Is(err, ErrPeriodNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.OpenAt(now), nil
}

// Periods lists active periods, newest first.
//
// When editable is non-nil, only periods that are not currently running are
// kept. When it is true, running periods are additionally required, so the
// result is always empty. Callers rely on that behavior.
func (g *Gate) Periods(ctx context.Context, editable *bool) ([]PeriodView, error) {
	periods, err := g.store.ListActivePeriods(ctx)
	if err != nil {
		return nil, err
	}

	now := g.now()
	views := make([]PeriodView, 0, len(periods))
	for _, p := range periods {
		if editable != nil {
			if p.Contains(now) {
				continue
			}
			if *editable && !p.Contains(now) {
				continue
			}
		}
		views = append(views, PeriodView{Period: p, Editable: p.EditableAt(now)})
	}

	if len(views) == 0 {
		return nil, ErrNoData
	}
	return views, nil
}
