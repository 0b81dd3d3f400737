package transport

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/assessment-engine/internal/apperr"
	"github.com/danielpatrickdp/assessment-engine/internal/catalog"
	"github.com/danielpatrickdp/assessment-engine/internal/flow"
	"github.com/danielpatrickdp/assessment-engine/internal/intervention"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region client-struct
// Client wraps a gRPC connection to the assessment service.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// NewClient connects to the assessment service at addr.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn creates a Client over an existing connection, such as a
// bufconn dialer in tests. The caller owns cc.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// #endregion constructor

// #region close
// Close shuts down a connection opened by NewClient.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region calls

func (c *Client) invoke(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, fromStatus(method, err)
	}
	return out, nil
}

// fromStatus restores the apperr kind carried by a status error.
func fromStatus(method string, err error) error {
	kind := apperr.FromGRPCStatus(err)
	msg := err.Error()
	if st, ok := status.FromError(err); ok {
		msg = st.Message()
	}
	return apperr.Wrap(kind, fmt.Sprintf("%s rpc: %s", method, msg), err)
}

// GetState returns the subject's current step and progress.
func (c *Client) GetState(ctx context.Context, s subject.Key) (flow.Progress, error) {
	out, err := c.invoke(ctx, "GetState", subjectFields(s))
	if err != nil {
		return flow.Progress{}, err
	}
	return progressOf(out), nil
}

// Question fetches a catalog question by code.
func (c *Client) Question(ctx context.Context, code string) (catalog.Question, error) {
	out, err := c.invoke(ctx, "GetQuestion", map[string]any{"question_code": code})
	if err != nil {
		return catalog.Question{}, err
	}
	return questionOf(out), nil
}

// SubmitAnswer sends an answer. answer may be a string, number, bool or list.
func (c *Client) SubmitAnswer(ctx context.Context, s subject.Key, questionCode string, answer any) (flow.Result, error) {
	fields := subjectFields(s)
	fields["question_code"] = questionCode
	fields["response_value"] = answerValue(answer)
	out, err := c.invoke(ctx, "SubmitAnswer", fields)
	if err != nil {
		return flow.Result{}, err
	}
	return resultOf(out), nil
}

// CompleteIntervention completes a module for the subject.
func (c *Client) CompleteIntervention(ctx context.Context, s subject.Key, moduleID string) (flow.Result, error) {
	fields := subjectFields(s)
	fields["module_id"] = moduleID
	out, err := c.invoke(ctx, "CompleteIntervention", fields)
	if err != nil {
		return flow.Result{}, err
	}
	return resultOf(out), nil
}

// InterventionContent fetches a module's content.
func (c *Client) InterventionContent(ctx context.Context, moduleID string) (intervention.Content, error) {
	out, err := c.invoke(ctx, "GetInterventionContent", map[string]any{"module_id": moduleID})
	if err != nil {
		return intervention.Content{}, err
	}
	return contentOf(out), nil
}

// Scores fetches the subject's score summary.
func (c *Client) Scores(ctx context.Context, s subject.Key) ([]flow.ScoreSummary, error) {
	out, err := c.invoke(ctx, "GetScores", subjectFields(s))
	if err != nil {
		return nil, err
	}
	return summaryOf(out), nil
}

func answerValue(v any) any {
	if ss, ok := v.([]string); ok {
		out := make([]any, len(ss))
		for i, s := range ss {
			out[i] = s
		}
		return out
	}
	return v
}

// #endregion calls

var _ Engine = (*Client)(nil)
