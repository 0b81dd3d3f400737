// Package replay runs scripted sessions against an engine and checks each
// step's outcome.
package replay

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/danielpatrickdp/assessment-engine/internal/apperr"
	"github.com/danielpatrickdp/assessment-engine/internal/flow"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
	"golang.org/x/sync/errgroup"
)

// #region types

// Engine is the request surface a scenario drives. Both the flow controller
// and the gRPC client satisfy it.
type Engine interface {
	GetState(ctx context.Context, s subject.Key) (flow.Progress, error)
	SubmitAnswer(ctx context.Context, s subject.Key, questionCode string, answer any) (flow.Result, error)
	CompleteIntervention(ctx context.Context, s subject.Key, moduleID string) (flow.Result, error)
}

// StepResult is the observed outcome of one step.
type StepResult struct {
	Index      int
	Op         Op
	StepType   flow.StepType
	StepCode   string
	Scores     map[string]int
	Flags      []string
	Progress   int
	Err        error
	Mismatches []string
}

// Passed reports whether the step met every expectation.
func (r StepResult) Passed() bool {
	return len(r.Mismatches) == 0
}

// Summary provides aggregate stats from a scenario run.
type Summary struct {
	Description   string
	Steps         int
	Passed        int
	Failed        int
	FinalStepType flow.StepType
	FinalStepCode string
}

// Report pairs a scenario's results with its summary.
type Report struct {
	Subject subject.Key
	Results []StepResult
	Summary Summary
}

// #endregion types

// #region run

// Subject returns the scenario's subject, defaulting empty parts.
func (sc Scenario) Subject() subject.Key {
	k := subject.Key{UserID: sc.User, SessionID: sc.Session}
	if k.UserID == "" {
		k.UserID = "replay"
	}
	if k.SessionID == "" {
		k.SessionID = "session"
	}
	return k
}

// Run executes sc step by step on sc.Subject(). Step failures are recorded in
// the results; the error is reserved for invalid scenarios and cancellation.
func Run(ctx context.Context, eng Engine, sc Scenario) ([]StepResult, error) {
	return run(ctx, eng, sc, sc.Subject())
}

func run(ctx context.Context, eng Engine, sc Scenario, s subject.Key) ([]StepResult, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	results := make([]StepResult, 0, len(sc.Steps))
	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		r := StepResult{Index: i, Op: st.Op}
		switch st.Op {
		case OpState:
			p, err := eng.GetState(ctx, s)
			r.Err = err
			r.StepType, r.StepCode, r.Progress = p.StepType, p.StepCode, p.ProgressPercent
		case OpAnswer:
			res, err := eng.SubmitAnswer(ctx, s, st.QuestionCode, st.Answer)
			r.Err = err
			r.StepType, r.StepCode, r.Scores, r.Flags = res.StepType, res.StepCode, res.Scores, res.Flags
		case OpComplete:
			res, err := eng.CompleteIntervention(ctx, s, st.ModuleID)
			r.Err = err
			r.StepType, r.StepCode, r.Scores = res.StepType, res.StepCode, res.Scores
		}
		r.Mismatches = check(st.Expect, r)
		results = append(results, r)
	}
	return results, nil
}

func check(want Expect, got StepResult) []string {
	var out []string
	if want.Error != "" {
		if got.Err == nil {
			return []string{fmt.Sprintf("expected error %s, got none", want.Error)}
		}
		if kind := apperr.KindOf(got.Err); string(kind) != want.Error {
			out = append(out, fmt.Sprintf("error kind = %s, want %s", kind, want.Error))
		}
		return out
	}
	if got.Err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", got.Err)}
	}

	if want.StepType != "" && (string(got.StepType) != want.StepType || got.StepCode != want.StepCode) {
		out = append(out, fmt.Sprintf("step = %s:%s, want %s:%s", got.StepType, got.StepCode, want.StepType, want.StepCode))
	}
	metrics := make([]string, 0, len(want.Scores))
	for m := range want.Scores {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)
	for _, m := range metrics {
		if v, ok := got.Scores[m]; !ok || v != want.Scores[m] {
			out = append(out, fmt.Sprintf("score %s = %d, want %d", m, got.Scores[m], want.Scores[m]))
		}
	}
	if want.Flags != nil && !sameFlags(got.Flags, want.Flags) {
		out = append(out, fmt.Sprintf("flags = %v, want %v", got.Flags, want.Flags))
	}
	if want.Progress != nil && got.Progress != *want.Progress {
		out = append(out, fmt.Sprintf("progress = %d, want %d", got.Progress, *want.Progress))
	}
	return out
}

func sameFlags(got, want []string) bool {
	if len(got) == 0 && len(want) == 0 {
		return true
	}
	return reflect.DeepEqual(got, want)
}

// Summarize computes aggregate stats from step results.
func Summarize(description string, results []StepResult) Summary {
	s := Summary{Description: description, Steps: len(results)}
	for _, r := range results {
		if r.Passed() {
			s.Passed++
		} else {
			s.Failed++
		}
		if r.Err == nil && r.StepType != "" {
			s.FinalStepType, s.FinalStepCode = r.StepType, r.StepCode
		}
	}
	return s
}

// #endregion run

// #region run-all

// RunAll replays scenarios concurrently on one engine. Scenario i runs as
// user sc.User (default "replay") with session "<session>-<i+1>" so runs never
// share flow state.
func RunAll(ctx context.Context, eng Engine, scenarios []Scenario) ([]Report, error) {
	reports := make([]Report, len(scenarios))
	g, ctx := errgroup.WithContext(ctx)
	for i, sc := range scenarios {
		i, sc := i, sc
		s := sc.Subject()
		s.SessionID = fmt.Sprintf("%s-%d", s.SessionID, i+1)
		g.Go(func() error {
			results, err := run(ctx, eng, sc, s)
			if err != nil {
				return fmt.Errorf("scenario %d (%s): %w", i, sc.Description, err)
			}
			reports[i] = Report{Subject: s, Results: results, Summary: Summarize(sc.Description, results)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// #endregion run-all
