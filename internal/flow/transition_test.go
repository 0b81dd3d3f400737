package flow

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danielpatrickdp/assessment-engine/internal/apperr"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
)

var (
	alice = subject.Key{UserID: "alice", SessionID: "s1"}
	t0    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func started(t *testing.T) State {
	t.Helper()
	st, ev, err := Transition(nil, Started{Subject: alice, FlowCode: DefaultFlowCode, FirstQuestion: "RC_001"}, t0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if ev.Type != AuditStarted {
		t.Fatalf("audit type = %s, want started", ev.Type)
	}
	return st
}

func TestTransition_Started(t *testing.T) {
	st := started(t)
	if st.Step != (Step{Type: StepQuestion, Code: "RC_001"}) {
		t.Errorf("step = %+v", st.Step)
	}
	if st.Status != StatusInProgress {
		t.Errorf("status = %s", st.Status)
	}
	if st.LastQuestion != "RC_001" {
		t.Errorf("last question = %q", st.LastQuestion)
	}
	if !st.StartedAt.Equal(t0) || !st.UpdatedAt.Equal(t0) {
		t.Errorf("timestamps = %v / %v", st.StartedAt, st.UpdatedAt)
	}
}

func TestTransition_StartedTwice(t *testing.T) {
	st := started(t)
	_, _, err := Transition(&st, Started{Subject: alice, FirstQuestion: "RC_001"}, t0)
	if !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("err = %v, want ErrAlreadyStarted", err)
	}
}

func TestTransition_StartedRequiresQuestion(t *testing.T) {
	_, _, err := Transition(nil, Started{Subject: alice}, t0)
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestTransition_AdvanceWithoutStart(t *testing.T) {
	_, _, err := Transition(nil, Advanced{Step: Step{Type: StepQuestion, Code: "RC_002"}}, t0)
	if !errors.Is(err, ErrNotStarted) {
		t.Fatalf("err = %v, want ErrNotStarted", err)
	}
}

func TestTransition_DetourKeepsLastQuestion(t *testing.T) {
	st := started(t)
	t1 := t0.Add(time.Minute)
	next, ev, err := Transition(&st, Advanced{Step: Step{Type: StepIntervention, Code: "mod_ea_intro"}}, t1)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if next.LastQuestion != "RC_001" {
		t.Errorf("last question = %q, want RC_001", next.LastQuestion)
	}
	if ev.Type != AuditEntered || ev.StepType != StepIntervention || ev.StepCode != "mod_ea_intro" {
		t.Errorf("audit = %+v", ev)
	}
	if !next.UpdatedAt.Equal(t1) || !next.StartedAt.Equal(t0) {
		t.Errorf("timestamps = %v / %v", next.StartedAt, next.UpdatedAt)
	}

	next, _, err = Transition(&next, Advanced{Step: Step{Type: StepQuestion, Code: "RC_002"}}, t1)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if next.LastQuestion != "RC_002" {
		t.Errorf("last question = %q, want RC_002", next.LastQuestion)
	}
}

func TestTransition_DetourAnchorsOnAnsweredQuestion(t *testing.T) {
	st := started(t)
	t1 := t0.Add(time.Minute)
	next, _, err := Transition(&st, Advanced{Step: Step{Type: StepIntervention, Code: "mod_ea_intro"}, Answered: "RC_002"}, t1)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if next.LastQuestion != "RC_002" {
		t.Errorf("last question = %q, want RC_002", next.LastQuestion)
	}

	// a completion-driven detour keeps the anchor
	next, _, err = Transition(&next, Advanced{Step: Step{Type: StepProtocol, Code: "protocol_x"}}, t1)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if next.LastQuestion != "RC_002" {
		t.Errorf("last question = %q, want RC_002", next.LastQuestion)
	}
}

func TestTransition_CompleteIsTerminal(t *testing.T) {
	st := started(t)
	t1 := t0.Add(time.Hour)
	done, _, err := Transition(&st, Advanced{Step: Step{Type: StepComplete}}, t1)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != StatusCompleted || !done.CompletedAt.Equal(t1) {
		t.Fatalf("done = %+v", done)
	}

	_, _, err = Transition(&done, Advanced{Step: Step{Type: StepQuestion, Code: "RC_002"}}, t1)
	if !errors.Is(err, ErrFlowCompleted) {
		t.Fatalf("err = %v, want ErrFlowCompleted", err)
	}
	if !apperr.IsKind(err, apperr.KindFlowCompleted) {
		t.Errorf("kind = %s", apperr.KindOf(err))
	}
}

func TestTransition_StepValidation(t *testing.T) {
	cases := []struct {
		name string
		step Step
	}{
		{"question without code", Step{Type: StepQuestion}},
		{"intervention without code", Step{Type: StepIntervention}},
		{"protocol without code", Step{Type: StepProtocol}},
		{"complete with code", Step{Type: StepComplete, Code: "RC_003"}},
		{"unknown type", Step{Type: "DETOUR", Code: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := started(t)
			_, _, err := Transition(&st, Advanced{Step: tc.step}, t0)
			if !apperr.IsKind(err, apperr.KindValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
		})
	}
}

func TestParseResubmitPolicy(t *testing.T) {
	for in, want := range map[string]ResubmitPolicy{"": ResubmitAppend, "append": ResubmitAppend, "ignore": ResubmitIgnore} {
		got, err := ParseResubmitPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseResubmitPolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseResubmitPolicy("replace"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestSubjectLocks_SerializesAndReleases(t *testing.T) {
	l := newSubjectLocks()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := l.lock(alice)
			defer release()
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
	if n := l.size(); n != 0 {
		t.Errorf("entries after release = %d, want 0", n)
	}
}

func TestSubjectLocks_IndependentSubjects(t *testing.T) {
	l := newSubjectLocks()
	releaseA := l.lock(alice)
	done := make(chan struct{})
	go func() {
		release := l.lock(subject.Key{UserID: "bob", SessionID: "s1"})
		release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bob blocked on alice's lock")
	}
	releaseA()
	if n := l.size(); n != 0 {
		t.Errorf("entries = %d, want 0", n)
	}
}
