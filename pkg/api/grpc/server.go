// Package grpcapi exposes rule evaluation over gRPC, next to the standard
// gRPC health service.
//
// The Evaluator service carries google.protobuf.Struct messages in both
// directions so that any gRPC client can call it without generated stubs:
//
//	request:  {"rule": "can-fly", "variables": {"level": 7}}
//	response: {"name": "...", "rule": "can-fly", "ruleRevisionId": "...",
//	           "state": "SUCCEEDED", "result": true}
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lemonberrylabs/condeval/pkg/store"
	"github.com/lemonberrylabs/condeval/pkg/types"
)

const (
	// EvaluateMethod is the full method name of Evaluator.Evaluate.
	EvaluateMethod = "/condeval.v1.Evaluator/Evaluate"

	// RulesService is the health service name that reports whether the
	// rule files were loaded without errors.
	RulesService = "condeval.rules"
)

// EvaluatorServer is the server API of the condeval.v1.Evaluator service.
type EvaluatorServer interface {
	Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var evaluatorServiceDesc = grpc.ServiceDesc{
	ServiceName: "condeval.v1.Evaluator",
	HandlerType: (*EvaluatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "condeval/v1/evaluator.proto",
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EvaluatorServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EvaluateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EvaluatorServer).Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Server implements the Evaluator and health gRPC services.
type Server struct {
	store  *store.Store
	health *health.Server
	grpc   *grpc.Server
}

// New creates a new gRPC server wrapping the given store.
func New(s *store.Store) *Server {
	srv := &Server{
		store:  s,
		health: health.NewServer(),
	}

	gs := grpc.NewServer()
	gs.RegisterService(&evaluatorServiceDesc, srv)
	healthpb.RegisterHealthServer(gs, srv.health)
	srv.health.SetServingStatus(RulesService, healthpb.HealthCheckResponse_SERVING)
	srv.grpc = gs

	return srv
}

// SetRulesHealthy sets the serving status reported for RulesService.
func (s *Server) SetRulesHealthy(ok bool) {
	st := healthpb.HealthCheckResponse_SERVING
	if !ok {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(RulesService, st)
}

// Serve starts listening on the given address and serves gRPC requests.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.ServeListener(lis)
}

// ServeListener serves gRPC requests on an existing listener.
func (s *Server) ServeListener(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// GracefulStop marks every service as not serving and stops the server once
// pending calls finish.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// Evaluate evaluates a stored rule. A rule that fails to evaluate is not a
// gRPC error: the failure is reported in the response with state FAILED.
func (s *Server) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	rule := fields["rule"].GetStringValue()
	if rule == "" {
		return nil, status.Error(codes.InvalidArgument, "rule is required")
	}

	var vars map[string]types.Value
	if v, ok := fields["variables"]; ok {
		switch k := v.GetKind().(type) {
		case *structpb.Value_NullValue:
		case *structpb.Value_StructValue:
			conv, err := types.FromProtoStruct(k.StructValue)
			if err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "invalid variables: %v", err)
			}
			vars = conv
		default:
			return nil, status.Error(codes.InvalidArgument, "variables must be an object")
		}
	}

	ev, err := s.store.Evaluate(ctx, rule, vars)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return evaluationToProto(ev), nil
}

func evaluationToProto(ev *store.Evaluation) *structpb.Struct {
	out := &structpb.Struct{Fields: map[string]*structpb.Value{
		"name":           structpb.NewStringValue(ev.Name),
		"rule":           structpb.NewStringValue(ev.Rule),
		"ruleRevisionId": structpb.NewStringValue(ev.RuleRevisionID),
		"state":          structpb.NewStringValue(string(ev.State)),
		"durationMs":     structpb.NewNumberValue(float64(ev.Duration().Microseconds()) / 1000),
	}}
	if ev.State == store.EvaluationSucceeded {
		out.Fields["result"] = types.ToProto(ev.Result)
	} else {
		out.Fields["error"] = structpb.NewStringValue(ev.Error)
	}
	return out
}
