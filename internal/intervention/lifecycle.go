// Package intervention implements the locked → unlocked → completed module lifecycle.
package intervention

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/danielpatrickdp/assessment-engine/internal/apperr"
	"github.com/danielpatrickdp/assessment-engine/internal/catalog"
	"github.com/danielpatrickdp/assessment-engine/internal/ledger"
	"github.com/danielpatrickdp/assessment-engine/internal/scoring"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
	"github.com/google/uuid"
)

// DefaultBoostComponent tags the score rules applied on completion.
const DefaultBoostComponent = "KAI"

// #region store
// Store is the persistence the lifecycle needs.
// MarkProgressCompleted reports whether the row changed from unlocked to completed.
type Store interface {
	Progress(ctx context.Context, s subject.Key, moduleID string) (*Progress, error)
	InsertProgressIfAbsent(ctx context.Context, p Progress) (bool, error)
	MarkProgressCompleted(ctx context.Context, s subject.Key, moduleID string, at time.Time) (bool, error)
}

// #endregion store

// #region lifecycle
// Lifecycle unlocks and completes modules and applies completion boosts.
type Lifecycle struct {
	store     Store
	catalog   catalog.Catalog
	ledger    *ledger.Ledger
	scoring   *scoring.Evaluator
	component string
	policy    BoostPolicy
	now       func() time.Time
}

// NewLifecycle wires a lifecycle. An empty component uses DefaultBoostComponent
// and an empty policy uses BoostOnce.
func NewLifecycle(store Store, cat catalog.Catalog, l *ledger.Ledger, sc *scoring.Evaluator, component string, policy BoostPolicy, now func() time.Time) *Lifecycle {
	if component == "" {
		component = DefaultBoostComponent
	}
	if policy == "" {
		policy = BoostOnce
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Lifecycle{store: store, catalog: cat, ledger: l, scoring: sc, component: component, policy: policy, now: now}
}

// activeModule resolves ref (module id or trigger code) to an active module.
func (lc *Lifecycle) activeModule(ctx context.Context, ref string) (catalog.Module, error) {
	mod, err := lc.catalog.Module(ctx, ref)
	if err != nil {
		return catalog.Module{}, err
	}
	if !mod.IsActive() {
		return catalog.Module{}, apperr.NotFound("module", ref)
	}
	return mod, nil
}

// Unlock creates the progress row for the resolved module. Unlocking an
// already-unlocked module returns the module unchanged.
func (lc *Lifecycle) Unlock(ctx context.Context, s subject.Key, ref string) (catalog.Module, error) {
	mod, err := lc.activeModule(ctx, ref)
	if err != nil {
		return catalog.Module{}, err
	}

	existing, err := lc.store.Progress(ctx, s, mod.ID)
	if err != nil {
		return catalog.Module{}, fmt.Errorf("read progress: %w", err)
	}
	if existing != nil {
		return mod, nil
	}

	inserted, err := lc.store.InsertProgressIfAbsent(ctx, Progress{
		ID:         uuid.New().String(),
		Subject:    s,
		ModuleID:   mod.ID,
		Unlocked:   true,
		UnlockedAt: lc.now(),
	})
	if err != nil {
		return catalog.Module{}, fmt.Errorf("insert progress: %w", err)
	}
	if inserted {
		log.Printf("[INTERVENTION] %s: unlocked %s", s, mod.ID)
	}
	return mod, nil
}

// Complete marks the module completed, applies boost rules and re-aggregates.
// A repeated completion keeps the first timestamp and boosts again only under BoostEvery.
func (lc *Lifecycle) Complete(ctx context.Context, s subject.Key, moduleID string) (CompletionResult, error) {
	p, err := lc.store.Progress(ctx, s, moduleID)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("read progress: %w", err)
	}
	if p == nil {
		return CompletionResult{}, apperr.NotFound("intervention progress", moduleID).
			WithMetadata(map[string]string{"module_id": moduleID, "subject": s.String()})
	}

	changed, err := lc.store.MarkProgressCompleted(ctx, s, moduleID, lc.now())
	if err != nil {
		return CompletionResult{}, fmt.Errorf("mark completed: %w", err)
	}

	boost := changed || lc.policy == BoostEvery
	if boost {
		boosts, err := lc.scoring.Boosts(ctx, lc.component)
		if err != nil {
			return CompletionResult{}, err
		}
		if _, err := lc.ledger.Append(ctx, s, boosts); err != nil {
			return CompletionResult{}, err
		}
		log.Printf("[INTERVENTION] %s: completed %s, %d boosts (repeat=%t)", s, moduleID, len(boosts), !changed)
	} else {
		log.Printf("[INTERVENTION] %s: %s already completed, no boost", s, moduleID)
	}

	scores, err := lc.ledger.Aggregate(ctx, s)
	if err != nil {
		return CompletionResult{}, err
	}
	return CompletionResult{ModuleID: moduleID, Scores: scores, Boosted: boost, Repeated: !changed}, nil
}

// Content returns module metadata and ordered blocks. Inactive modules are still readable.
func (lc *Lifecycle) Content(ctx context.Context, moduleID string) (Content, error) {
	mod, err := lc.catalog.Module(ctx, moduleID)
	if err != nil {
		return Content{}, err
	}
	blocks, err := lc.catalog.ModuleContent(ctx, mod.ID)
	if err != nil {
		return Content{}, err
	}
	return Content{
		ID:              mod.ID,
		Title:           mod.Title,
		Goal:            mod.Goal,
		DurationMinutes: mod.DurationMinutes,
		Blocks:          blocks,
	}, nil
}

// #endregion lifecycle
