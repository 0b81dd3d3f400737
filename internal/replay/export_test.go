package replay

import (
	"context"
	"testing"
	"time"

	"github.com/danielpatrickdp/assessment-engine/internal/flow"
	"github.com/danielpatrickdp/assessment-engine/internal/intervention"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
)

func TestExport_MergesByTime(t *testing.T) {
	s := subject.Key{UserID: "alice", SessionID: "s1"}
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	responses := []flow.Response{
		{QuestionCode: "RC_001", Value: "opt_1", CreatedAt: t0},
		{QuestionCode: "RC_002", Value: "7", CreatedAt: t0.Add(2 * time.Minute)},
	}
	progress := []intervention.Progress{
		{ModuleID: "mod_ea_intro", Unlocked: true, Completed: true, CompletedAt: t0.Add(time.Minute)},
		{ModuleID: "mod_pending", Unlocked: true},
	}

	sc := Export("export", s, responses, progress)
	if sc.Subject() != s {
		t.Errorf("subject = %v", sc.Subject())
	}
	want := []Op{OpAnswer, OpComplete, OpAnswer, OpState}
	if len(sc.Steps) != len(want) {
		t.Fatalf("steps = %+v", sc.Steps)
	}
	for i, op := range want {
		if sc.Steps[i].Op != op {
			t.Errorf("step %d op = %s, want %s", i, sc.Steps[i].Op, op)
		}
	}
	if sc.Steps[1].ModuleID != "mod_ea_intro" || sc.Steps[2].Answer != "7" {
		t.Errorf("steps = %+v", sc.Steps)
	}
}

func TestBaseline_ReplaysClean(t *testing.T) {
	sc := loadScenario(t, "detour.yml")
	for i := range sc.Steps {
		sc.Steps[i].Expect = Expect{}
	}
	ctx := context.Background()

	base, err := Baseline(ctx, newEngine(t), sc)
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}
	if base.Steps[1].Expect.StepCode != "mod_ea_intro" {
		t.Errorf("step 1 expect = %+v", base.Steps[1].Expect)
	}
	if base.Steps[7].Expect.Error != "FLOW_COMPLETED" {
		t.Errorf("step 7 expect = %+v", base.Steps[7].Expect)
	}

	// a fresh engine must reproduce the captured baseline
	results, err := Run(ctx, newEngine(t), base)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	assertPassed(t, results)
}
