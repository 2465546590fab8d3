package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"quantick/pkg/quantick"
)

// BacktestServer is the gRPC surface. Messages are structpb.Structs carrying
// the JSON form of the quantick wire types.
type BacktestServer interface {
	ListStrategies(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRuns(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunBacktest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Sweep(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Compile-time interface check.
var _ BacktestServer = (*BacktestService)(nil)

// BacktestService implements BacktestServer over a Service.
type BacktestService struct {
	svc *Service
}

// NewBacktestService creates a BacktestService.
func NewBacktestService(svc *Service) *BacktestService {
	return &BacktestService{svc: svc}
}

// RegisterGRPC registers the service on the given gRPC server instance.
func (s *BacktestService) RegisterGRPC(gs grpc.ServiceRegistrar) {
	gs.RegisterService(&backtestServiceDesc, s)
}

// ListStrategies returns {"strategies": [...]}.
func (s *BacktestService) ListStrategies(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return reply(quantick.StrategiesResponse{Strategies: s.svc.Strategies()}, nil)
}

// ListRuns takes a ListRunsRequest and returns a ListRunsResponse.
func (s *BacktestService) ListRuns(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req quantick.ListRunsRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	runs, err := s.svc.ListRuns(ctx, req)
	return reply(quantick.ListRunsResponse{Runs: runs}, err)
}

// GetRun takes a GetRunRequest and returns a RunResponse.
func (s *BacktestService) GetRun(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req quantick.GetRunRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	run, err := s.svc.GetRun(ctx, req.ID)
	return reply(quantick.RunResponse{Run: run}, err)
}

// RunBacktest takes a RunRequest and returns a RunResponse.
func (s *BacktestService) RunBacktest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req quantick.RunRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	run, err := s.svc.Run(ctx, req)
	return reply(quantick.RunResponse{Run: run}, err)
}

// Sweep takes a SweepRequest and returns a SweepResponse.
func (s *BacktestService) Sweep(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req quantick.SweepRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	runs, err := s.svc.Sweep(ctx, req)
	return reply(quantick.SweepResponse{Runs: runs}, err)
}

func decode(in *structpb.Struct, v any) error {
	if err := quantick.FromStruct(in, v); err != nil {
		return toStatus(errBadBody)
	}
	return nil
}

func reply(v any, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := quantick.ToStruct(v)
	if err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}

func toStatus(err error) error {
	_, code := classify(err)
	return status.Error(code, err.Error())
}

// ---------------------------------------------------------------------------
// Service descriptor
// ---------------------------------------------------------------------------

type unaryMethod func(BacktestServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BacktestServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BacktestServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var backtestServiceDesc = grpc.ServiceDesc{
	ServiceName: quantick.ServiceName,
	HandlerType: (*BacktestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListStrategies", Handler: unaryHandler(quantick.MethodListStrategies, BacktestServer.ListStrategies)},
		{MethodName: "ListRuns", Handler: unaryHandler(quantick.MethodListRuns, BacktestServer.ListRuns)},
		{MethodName: "GetRun", Handler: unaryHandler(quantick.MethodGetRun, BacktestServer.GetRun)},
		{MethodName: "RunBacktest", Handler: unaryHandler(quantick.MethodRunBacktest, BacktestServer.RunBacktest)},
		{MethodName: "Sweep", Handler: unaryHandler(quantick.MethodSweep, BacktestServer.Sweep)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "quantick/backtest.proto",
}
