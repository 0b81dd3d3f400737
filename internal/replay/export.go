package replay

import (
	"context"
	"sort"
	"time"

	"github.com/danielpatrickdp/assessment-engine/internal/apperr"
	"github.com/danielpatrickdp/assessment-engine/internal/flow"
	"github.com/danielpatrickdp/assessment-engine/internal/intervention"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
)

// #region export

// Export rebuilds a scenario from a subject's recorded responses and completed
// modules, merged in time order. Steps carry no expectations.
func Export(description string, s subject.Key, responses []flow.Response, progress []intervention.Progress) Scenario {
	type timed struct {
		at   time.Time
		seq  int
		step Step
	}
	var all []timed
	for i, r := range responses {
		all = append(all, timed{at: r.CreatedAt, seq: i, step: Step{Op: OpAnswer, QuestionCode: r.QuestionCode, Answer: r.Value}})
	}
	for i, p := range progress {
		if !p.Completed {
			continue
		}
		all = append(all, timed{at: p.CompletedAt, seq: len(responses) + i, step: Step{Op: OpComplete, ModuleID: p.ModuleID}})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].at.Equal(all[j].at) {
			return all[i].at.Before(all[j].at)
		}
		return all[i].seq < all[j].seq
	})

	sc := Scenario{Description: description, User: s.UserID, Session: s.SessionID}
	for _, t := range all {
		sc.Steps = append(sc.Steps, t.step)
	}
	sc.Steps = append(sc.Steps, Step{Op: OpState})
	return sc
}

// Baseline runs sc and returns a copy whose expectations are the observed
// outcomes, for use as a regression fixture.
func Baseline(ctx context.Context, eng Engine, sc Scenario) (Scenario, error) {
	results, err := Run(ctx, eng, sc)
	if err != nil {
		return Scenario{}, err
	}
	out := sc
	out.Steps = make([]Step, len(sc.Steps))
	for i, r := range results {
		st := sc.Steps[i]
		st.Expect = Expect{}
		if r.Err != nil {
			st.Expect.Error = string(apperr.KindOf(r.Err))
			out.Steps[i] = st
			continue
		}
		st.Expect.StepType = string(r.StepType)
		st.Expect.StepCode = r.StepCode
		if len(r.Scores) > 0 {
			st.Expect.Scores = r.Scores
		}
		switch r.Op {
		case OpAnswer:
			st.Expect.Flags = append([]string{}, r.Flags...)
		case OpState:
			p := r.Progress
			st.Expect.Progress = &p
		}
		out.Steps[i] = st
	}
	return out, nil
}

// #endregion export
