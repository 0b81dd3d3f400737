// Package flags raises monotonic threshold flags from aggregated scores.
package flags

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/danielpatrickdp/assessment-engine/internal/catalog"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
)

// #region store
// Store is the persistence the detector needs. InsertFlagIfAbsent reports
// whether a new row was written.
type Store interface {
	Flags(ctx context.Context, s subject.Key) ([]Flag, error)
	InsertFlagIfAbsent(ctx context.Context, f Flag) (bool, error)
}

// #endregion store

// #region crossings
// Crossings is a pure function returning every flaggable range that contains
// the metric's current value, in definition order then range order.
// Metrics absent from scores are skipped.
func Crossings(defs []catalog.ScoreDefinition, scores map[string]int) []Crossing {
	var out []Crossing
	for _, d := range defs {
		v, ok := scores[d.MetricCode]
		if !ok {
			continue
		}
		for _, r := range d.Ranges {
			if !r.Flag || !r.Contains(v) {
				continue
			}
			out = append(out, Crossing{
				Metric: d.MetricCode,
				Label:  r.Label,
				Value:  v,
				Code:   FlagCode(d.MetricCode, r.Label),
			})
		}
	}
	return out
}

// #endregion crossings

// #region detector
// Detector compares scores to interpretation ranges and raises new flags.
type Detector struct {
	store   Store
	catalog catalog.Catalog
	now     func() time.Time
}

// NewDetector creates a detector. now may be nil.
func NewDetector(store Store, cat catalog.Catalog, now func() time.Time) *Detector {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Detector{store: store, catalog: cat, now: now}
}

// DetectAndRaise inserts a flag for every crossing not already raised and
// returns only the newly raised codes.
func (d *Detector) DetectAndRaise(ctx context.Context, s subject.Key, scores map[string]int) ([]string, error) {
	defs, err := d.catalog.ScoreDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("score definitions: %w", err)
	}
	crossings := Crossings(defs, scores)
	if len(crossings) == 0 {
		return nil, nil
	}

	existing, err := d.store.Flags(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("read flags: %w", err)
	}
	have := Codes(existing)

	var raised []string
	at := d.now()
	for _, c := range crossings {
		if _, ok := have[c.Code]; ok {
			continue
		}
		inserted, err := d.store.InsertFlagIfAbsent(ctx, Flag{Subject: s, Code: c.Code, CreatedAt: at})
		if err != nil {
			return raised, fmt.Errorf("insert flag %s: %w", c.Code, err)
		}
		have[c.Code] = struct{}{}
		if !inserted {
			// lost a race with a concurrent request
			continue
		}
		log.Printf("[FLAG] %s: raised %s (%s=%d)", s, c.Code, c.Metric, c.Value)
		raised = append(raised, c.Code)
	}
	return raised, nil
}

// #endregion detector
