package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/google/uuid"

	"github.com/ppiankov/typegate/internal/audit"
	"github.com/ppiankov/typegate/internal/engine"
)

const (
	// ServiceName is the fully qualified admission service name.
	ServiceName = "typegate.v1.AdmissionService"
	// EvaluateMethod is the full method name of Evaluate.
	EvaluateMethod = "/" + ServiceName + "/Evaluate"
	// RequestIDKey is the metadata key a caller may set to correlate audit entries.
	RequestIDKey = "x-request-id"
)

// AdmissionServer evaluates one candidate type per call. Requests and
// responses are google.protobuf.Struct:
//
//	{"type": "pkg.Class"} -> {"decision", "reason", "rule", "kind", "policy_hash", "request_id"}
type AdmissionServer interface {
	Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdmissionServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EvaluateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdmissionServer).Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes AdmissionService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdmissionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "typegate/v1/admission.proto",
}

// Config holds gRPC server configuration.
type Config struct {
	Port   int
	Logger *slog.Logger
}

// Server implements AdmissionService and the standard health service.
type Server struct {
	eng        *engine.Engine
	cfg        Config
	logger     *slog.Logger
	health     *health.Server
	grpcServer *grpc.Server
}

// New creates a gRPC server backed by eng.
func New(eng *engine.Engine, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		eng:        eng,
		cfg:        cfg,
		logger:     logger,
		health:     health.NewServer(),
		grpcServer: grpc.NewServer(),
	}
	s.grpcServer.RegisterService(&ServiceDesc, s)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Serve starts the gRPC server on the configured port. Blocks until stopped.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	return s.ServeOn(lis)
}

// ServeOn starts the gRPC server on the given listener.
func (s *Server) ServeOn(lis net.Listener) error {
	s.logger.Info("grpc listening", "addr", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

// GracefulStop marks the service NOT_SERVING and drains in-flight calls.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

// Evaluate implements AdmissionServer.
func (s *Server) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	field, ok := req.GetFields()["type"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, `missing "type" field`)
	}
	candidate, ok := field.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, `"type" must be a string`)
	}

	meta := engine.Meta{RequestID: incomingRequestID(ctx), Source: audit.SourceGRPC}
	res := s.eng.Check(meta, candidate.StringValue)

	out, err := structpb.NewStruct(map[string]any{
		"decision":    string(res.Verdict),
		"reason":      res.Reason,
		"rule":        res.Rule,
		"kind":        string(res.Kind),
		"policy_hash": res.PolicyHash,
		"request_id":  res.RequestID,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func incomingRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(RequestIDKey); len(ids) > 0 {
			if _, err := uuid.Parse(ids[0]); err == nil {
				return ids[0]
			}
		}
	}
	return uuid.NewString()
}
