// Package ledger appends score deltas and aggregates them into clamped metric values.
package ledger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/danielpatrickdp/assessment-engine/internal/catalog"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
	"github.com/google/uuid"
)

// #region reduce
// Reduce is a pure function: it sums events per metric and clamps each sum.
// Metrics missing from bounds use DefaultBounds.
func Reduce(events []Event, bounds map[string]Bounds) map[string]int {
	raw := make(map[string]int)
	for _, e := range events {
		raw[e.Metric] += e.Delta
	}
	out := make(map[string]int, len(raw))
	for metric, sum := range raw {
		b, ok := bounds[metric]
		if !ok {
			b = DefaultBounds
		}
		out[metric] = Clamp(sum, b)
	}
	return out
}

// Clamp bounds v into [b.Min, b.Max].
func Clamp(v int, b Bounds) int {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// #endregion reduce

// #region store
// Store is the persistence the ledger needs.
type Store interface {
	AppendScoreEvents(ctx context.Context, events []Event) error
	ScoreEvents(ctx context.Context, s subject.Key) ([]Event, error)
	UpsertScoreRegisters(ctx context.Context, s subject.Key, values map[string]int, at time.Time) error
}

// #endregion store

// #region ledger
// Ledger appends events and recomputes registers from the full event list.
type Ledger struct {
	store   Store
	catalog catalog.Catalog
	now     func() time.Time
}

// New creates a ledger. now may be nil.
func New(store Store, cat catalog.Catalog, now func() time.Time) *Ledger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Ledger{store: store, catalog: cat, now: now}
}

// Append records deltas as new events. Duplicate content is appended again.
func (l *Ledger) Append(ctx context.Context, s subject.Key, deltas []Delta) ([]Event, error) {
	if len(deltas) == 0 {
		return nil, nil
	}
	at := l.now()
	events := make([]Event, len(deltas))
	for i, d := range deltas {
		events[i] = Event{
			ID:           uuid.New().String(),
			Subject:      s,
			Metric:       d.Metric,
			Delta:        d.Amount,
			SourceRuleID: d.SourceRuleID,
			CreatedAt:    at,
		}
	}
	if err := l.store.AppendScoreEvents(ctx, events); err != nil {
		return nil, fmt.Errorf("append score events: %w", err)
	}
	log.Printf("[LEDGER] %s: appended %d events", s, len(events))
	return events, nil
}

// Aggregate recomputes every register from the ledger, persists them and
// returns the clamped map.
func (l *Ledger) Aggregate(ctx context.Context, s subject.Key) (map[string]int, error) {
	events, err := l.store.ScoreEvents(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("read score events: %w", err)
	}
	defs, err := l.catalog.ScoreDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("score definitions: %w", err)
	}
	scores := Reduce(events, BoundsFrom(defs))
	if len(scores) > 0 {
		if err := l.store.UpsertScoreRegisters(ctx, s, scores, l.now()); err != nil {
			return nil, fmt.Errorf("upsert registers: %w", err)
		}
	}
	return scores, nil
}

// #endregion ledger
