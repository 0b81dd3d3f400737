package intervention

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/assessment-engine/internal/catalog"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
)

// #region status
// Status is the lifecycle position of a module for one subject.
type Status string

const (
	StatusLocked    Status = "locked"
	StatusUnlocked  Status = "unlocked"
	StatusCompleted Status = "completed"
)

// #endregion status

// #region boost-policy

// BoostPolicy decides whether completing an already-completed module boosts again.
type BoostPolicy string

const (
	// BoostOnce applies completion boosts on the first completion only.
	BoostOnce BoostPolicy = "once"
	// BoostEvery applies completion boosts on every completion call.
	BoostEvery BoostPolicy = "every"
)

// ParseBoostPolicy validates a policy name. Empty means once.
func ParseBoostPolicy(s string) (BoostPolicy, error) {
	switch BoostPolicy(s) {
	case "", BoostOnce:
		return BoostOnce, nil
	case BoostEvery:
		return BoostEvery, nil
	default:
		return "", fmt.Errorf("unknown boost policy %q", s)
	}
}

// #endregion boost-policy

// #region progress
// Progress is the per-(subject, module) lifecycle row.
type Progress struct {
	ID          string
	Subject     subject.Key
	ModuleID    string
	Unlocked    bool
	Completed   bool
	UnlockedAt  time.Time
	CompletedAt time.Time
}

// State derives the lifecycle status of p.
func State(p *Progress) Status {
	switch {
	case p == nil || !p.Unlocked:
		return StatusLocked
	case p.Completed:
		return StatusCompleted
	default:
		return StatusUnlocked
	}
}

// #endregion progress

// #region results
// CompletionResult is returned by Complete. Boosted reports whether boosts were
// applied; Repeated is set when the module had already been completed.
type CompletionResult struct {
	ModuleID string
	Scores   map[string]int
	Boosted  bool
	Repeated bool
}

// Content is a module's metadata plus its ordered content blocks.
type Content struct {
	ID              string                 `json:"id"`
	Title           string                 `json:"lesson_title"`
	Goal            string                 `json:"lesson_goal"`
	DurationMinutes int                    `json:"estimated_duration_minutes"`
	Blocks          []catalog.ContentBlock `json:"content"`
}

// #endregion results
