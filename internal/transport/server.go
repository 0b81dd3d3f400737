// Package transport exposes the flow controller as a gRPC service whose
// messages are google.protobuf.Struct values with snake_case keys.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"

	"github.com/danielpatrickdp/assessment-engine/internal/apperr"
	"github.com/danielpatrickdp/assessment-engine/internal/catalog"
	"github.com/danielpatrickdp/assessment-engine/internal/flow"
	"github.com/danielpatrickdp/assessment-engine/internal/intervention"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "assessment.v1.AssessmentService"

// #region engine

// Engine is the controller surface served over gRPC.
type Engine interface {
	GetState(ctx context.Context, s subject.Key) (flow.Progress, error)
	Question(ctx context.Context, code string) (catalog.Question, error)
	SubmitAnswer(ctx context.Context, s subject.Key, questionCode string, answer any) (flow.Result, error)
	CompleteIntervention(ctx context.Context, s subject.Key, moduleID string) (flow.Result, error)
	InterventionContent(ctx context.Context, moduleID string) (intervention.Content, error)
	Scores(ctx context.Context, s subject.Key) ([]flow.ScoreSummary, error)
}

// #endregion engine

// #region service-desc

// AssessmentServer is the server API for the assessment service.
type AssessmentServer interface {
	GetState(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetQuestion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitAnswer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompleteIntervention(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetInterventionContent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetScores(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(AssessmentServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AssessmentServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AssessmentServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the assessment service for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AssessmentServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetState", AssessmentServer.GetState),
		unary("GetQuestion", AssessmentServer.GetQuestion),
		unary("SubmitAnswer", AssessmentServer.SubmitAnswer),
		unary("CompleteIntervention", AssessmentServer.CompleteIntervention),
		unary("GetInterventionContent", AssessmentServer.GetInterventionContent),
		unary("GetScores", AssessmentServer.GetScores),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "assessment/v1/assessment.proto",
}

// RegisterAssessmentServer registers srv on r.
func RegisterAssessmentServer(r grpc.ServiceRegistrar, srv AssessmentServer) {
	r.RegisterService(&ServiceDesc, srv)
}

// #endregion service-desc

// #region handlers

// Service adapts an Engine to AssessmentServer.
type Service struct {
	engine Engine
}

// NewService wraps engine.
func NewService(engine Engine) *Service {
	return &Service{engine: engine}
}

var _ AssessmentServer = (*Service)(nil)

// GetState returns the subject's current step and progress.
func (s *Service) GetState(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.engine.GetState(ctx, subjectOf(in))
	if err != nil {
		return nil, apperr.ToGRPCStatus(err)
	}
	return reply(progressFields(p))
}

// GetQuestion returns one catalog question.
func (s *Service) GetQuestion(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	q, err := s.engine.Question(ctx, stringField(in, "question_code"))
	if err != nil {
		return nil, apperr.ToGRPCStatus(err)
	}
	return reply(questionFields(q))
}

// SubmitAnswer records an answer and returns the next step.
func (s *Service) SubmitAnswer(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var answer any
	if v, ok := in.GetFields()["response_value"]; ok {
		if _, isNull := v.GetKind().(*structpb.Value_NullValue); !isNull {
			answer = v.AsInterface()
		}
	}
	res, err := s.engine.SubmitAnswer(ctx, subjectOf(in), stringField(in, "question_code"), answer)
	if err != nil {
		return nil, apperr.ToGRPCStatus(err)
	}
	return reply(resultFields(res))
}

// CompleteIntervention completes a module and returns the next step.
func (s *Service) CompleteIntervention(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.engine.CompleteIntervention(ctx, subjectOf(in), stringField(in, "module_id"))
	if err != nil {
		return nil, apperr.ToGRPCStatus(err)
	}
	return reply(resultFields(res))
}

// GetInterventionContent returns module metadata and ordered content.
func (s *Service) GetInterventionContent(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := s.engine.InterventionContent(ctx, stringField(in, "module_id"))
	if err != nil {
		return nil, apperr.ToGRPCStatus(err)
	}
	return reply(contentFields(c))
}

// GetScores returns the subject's score summary.
func (s *Service) GetScores(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	sums, err := s.engine.Scores(ctx, subjectOf(in))
	if err != nil {
		return nil, apperr.ToGRPCStatus(err)
	}
	return reply(summaryFields(sums))
}

func reply(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, apperr.ToGRPCStatus(fmt.Errorf("encode reply: %w", err))
	}
	return out, nil
}

// #endregion handlers

// #region server

// Server hosts the assessment service with health checks.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
}

// NewServer builds a gRPC server serving engine. Extra options are appended
// after the otelgrpc stats handler.
func NewServer(engine Engine, opts ...grpc.ServerOption) *Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	gs := grpc.NewServer(opts...)
	hs := health.NewServer()
	RegisterAssessmentServer(gs, NewService(engine))
	grpc_health_v1.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return &Server{grpcServer: gs, health: hs}
}

// Serve serves on lis until ctx is cancelled, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	log.Printf("[GRPC] serving %s at %v", ServiceName, lis.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

// Stop stops the server immediately.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.Stop()
}

// #endregion server
