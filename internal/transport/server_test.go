package transport

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/assessment-engine/internal/apperr"
	"github.com/danielpatrickdp/assessment-engine/internal/catalog"
	"github.com/danielpatrickdp/assessment-engine/internal/flow"
	"github.com/danielpatrickdp/assessment-engine/internal/store"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

const bufSize = 1024 * 1024

var alice = subject.Key{UserID: "alice", SessionID: "s1"}

// startServer serves a real controller over bufconn and returns a connected client.
func startServer(t *testing.T) (*Client, *grpc.ClientConn) {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	cat, err := catalog.Load("../catalog/testdata/onboarding.yml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	lis := bufconn.Listen(bufSize)
	srv := NewServer(flow.NewController(st, cat, flow.Options{}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewClientWithConn(conn), conn
}

func TestClient_FlowRoundTrip(t *testing.T) {
	c, _ := startServer(t)
	ctx := context.Background()

	p, err := c.GetState(ctx, alice)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if p.StepType != flow.StepQuestion || p.StepCode != "RC_001" || p.ProgressPercent != 0 {
		t.Fatalf("progress = %+v", p)
	}

	res, err := c.SubmitAnswer(ctx, alice, "RC_001", "opt_1")
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if res.StepType != flow.StepIntervention || res.StepCode != "mod_ea_intro" {
		t.Fatalf("result = %+v", res)
	}
	if res.RuleID != "br_awareness_low" || res.Scores["emotional_awareness"] != 10 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Flags) != 1 || res.Flags[0] != "emotional_awareness_critical" {
		t.Errorf("flags = %v", res.Flags)
	}

	res, err = c.CompleteIntervention(ctx, alice, "mod_ea_intro")
	if err != nil {
		t.Fatalf("CompleteIntervention: %v", err)
	}
	if res.StepType != flow.StepQuestion || res.StepCode != "RC_002" {
		t.Fatalf("result = %+v", res)
	}
	if res.Scores["relationship_readiness"] != 15 {
		t.Errorf("scores = %v", res.Scores)
	}

	// numeric answers travel as protobuf numbers
	res, err = c.SubmitAnswer(ctx, alice, "RC_002", 7)
	if err != nil {
		t.Fatalf("SubmitAnswer RC_002: %v", err)
	}
	if res.StepCode != "RC_003" || res.Scores["communication_skills"] != 20 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Flags) != 0 {
		t.Errorf("flags = %v, want none", res.Flags)
	}
}

func TestClient_Question(t *testing.T) {
	c, _ := startServer(t)
	q, err := c.Question(context.Background(), "RC_001")
	if err != nil {
		t.Fatalf("Question: %v", err)
	}
	if q.Code != "RC_001" || q.Part != 1 || q.OrderingKey != 1 || !q.Required {
		t.Errorf("question = %+v", q)
	}
	if len(q.Options) != 2 || q.Options[0].ID != "opt_1" || q.Options[1].ID != "opt_2" {
		t.Errorf("options = %+v", q.Options)
	}
}

func TestClient_InterventionContent(t *testing.T) {
	c, _ := startServer(t)
	content, err := c.InterventionContent(context.Background(), "mod_ea_intro")
	if err != nil {
		t.Fatalf("InterventionContent: %v", err)
	}
	if content.ID != "mod_ea_intro" || content.Title != "Noticing your feelings" || content.DurationMinutes != 10 {
		t.Errorf("content = %+v", content)
	}
	if len(content.Blocks) != 2 {
		t.Fatalf("blocks = %+v", content.Blocks)
	}
	if content.Blocks[0].Type != "text" || content.Blocks[0].Data["body"] != "Feelings show up in the body first." {
		t.Errorf("first block = %+v", content.Blocks[0])
	}
}

func TestClient_ErrorKinds(t *testing.T) {
	c, _ := startServer(t)
	ctx := context.Background()

	_, err := c.Question(ctx, "RC_999")
	if status.Code(errors.Unwrap(err)) != codes.NotFound {
		t.Errorf("code = %v, want NotFound", status.Code(errors.Unwrap(err)))
	}
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("kind = %s, want NOT_FOUND", apperr.KindOf(err))
	}

	_, err = c.GetState(ctx, subject.Key{UserID: "alice"})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("kind = %s, want VALIDATION", apperr.KindOf(err))
	}

	_, err = c.SubmitAnswer(ctx, alice, "RC_001", nil)
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("nil answer kind = %s, want VALIDATION", apperr.KindOf(err))
	}

	_, err = c.SubmitAnswer(ctx, alice, "RC_001", "")
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("empty answer kind = %s, want VALIDATION", apperr.KindOf(err))
	}

	_, err = c.CompleteIntervention(ctx, alice, "mod_ea_intro")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("kind = %s, want NOT_FOUND", apperr.KindOf(err))
	}
}

func TestClient_Scores(t *testing.T) {
	c, _ := startServer(t)
	ctx := context.Background()

	sums, err := c.Scores(ctx, alice)
	if err != nil {
		t.Fatalf("Scores: %v", err)
	}
	if len(sums) != 0 {
		t.Fatalf("fresh subject scores = %+v", sums)
	}

	if _, err := c.SubmitAnswer(ctx, alice, "RC_001", "opt_1"); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if _, err := c.CompleteIntervention(ctx, alice, "mod_ea_intro"); err != nil {
		t.Fatalf("CompleteIntervention: %v", err)
	}
	sums, err = c.Scores(ctx, alice)
	if err != nil {
		t.Fatalf("Scores: %v", err)
	}
	want := []flow.ScoreSummary{
		{Code: "emotional_awareness", Name: "Emotional awareness", Value: 10, Max: 100, Band: "low", Interpretation: "Developing"},
		{Code: "relationship_readiness", Name: "Relationship readiness", Value: 15, Max: 100, Band: "low"},
	}
	if len(sums) != len(want) {
		t.Fatalf("scores = %+v, want %+v", sums, want)
	}
	for i := range want {
		if sums[i] != want[i] {
			t.Errorf("scores[%d] = %+v, want %+v", i, sums[i], want[i])
		}
	}

	if _, err := c.Scores(ctx, subject.Key{SessionID: "s1"}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("kind = %s, want VALIDATION", apperr.KindOf(err))
	}
}

func TestClient_CompletedFlow(t *testing.T) {
	c, _ := startServer(t)
	ctx := context.Background()
	bob := subject.Key{UserID: "bob", SessionID: "s1"}
	for _, a := range []struct {
		q string
		v any
	}{{"RC_001", "opt_2"}, {"RC_002", "7"}, {"RC_003", []string{"coach", "friend"}}} {
		if _, err := c.SubmitAnswer(ctx, bob, a.q, a.v); err != nil {
			t.Fatalf("SubmitAnswer %s: %v", a.q, err)
		}
	}
	p, err := c.GetState(ctx, bob)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if p.StepType != flow.StepComplete || p.StepCode != "" || p.ProgressPercent != 100 {
		t.Errorf("progress = %+v", p)
	}

	_, err = c.SubmitAnswer(ctx, bob, "RC_001", "opt_1")
	if !errors.Is(err, flow.ErrFlowCompleted) {
		t.Errorf("err = %v, want flow completed", err)
	}
}

func TestServer_Health(t *testing.T) {
	_, conn := startServer(t)
	hc := grpc_health_v1.NewHealthClient(conn)
	resp, err := hc.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("status = %v", resp.GetStatus())
	}
}

func TestPlain_YAMLShapes(t *testing.T) {
	in := map[string]any{
		"steps":  []any{"breathe", map[any]any{"n": 3}},
		"tags":   []string{"a", "b"},
		"weight": 1.5,
	}
	if _, err := structpb.NewValue(plain(in)); err != nil {
		t.Fatalf("NewValue: %v", err)
	}
}
