// Package rpc serves the segmentation node over gRPC: the synchronous
// segmentation request, the publication switch, goals, and a server stream
// of published results.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/cloudseg/internal/cloud"
	"github.com/banshee-data/cloudseg/internal/monitoring"
	"github.com/banshee-data/cloudseg/internal/orchestrator"
	"github.com/banshee-data/cloudseg/internal/publish"
)

var logf = monitoring.Component("gRPC")

// Large frames exceed the 4 MB default.
const maxMsgSize = 16 * 1024 * 1024

// ClientOptions raises the message size limits to match the server.
func ClientOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMsgSize),
			grpc.MaxCallSendMsgSize(maxMsgSize),
		),
	}
}

// Node is the orchestration surface the gRPC service drives.
type Node interface {
	OnSyncRequest(input cloud.Cloud) (cloud.Cloud, error)
	SetEnabled(enabled bool)
	OnGoalAccepted() (*orchestrator.GoalSession, error)
	Goal(id string) (orchestrator.GoalStatus, error)
}

// GoalStore looks up goals that are no longer held in memory.
type GoalStore interface {
	GetGoal(id string) (orchestrator.GoalStatus, error)
}

// Ensure Server implements the gRPC interface.
var _ SegmentationServer = (*Server)(nil)

// Server implements SegmentationServer.
type Server struct {
	node  Node
	hub   *publish.Hub
	goals GoalStore
}

// NewServer creates the service. hub feeds StreamSegmented; a nil hub makes
// the stream unavailable.
func NewServer(node Node, hub *publish.Hub) *Server {
	return &Server{node: node, hub: hub}
}

// SetGoalStore makes GetGoal fall back to store for goals evicted from
// memory.
func (s *Server) SetGoalStore(store GoalStore) {
	s.goals = store
}

// DoSegmentation segments the packed input cloud and returns the packed
// labeled cloud.
func (s *Server) DoSegmentation(_ context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	input, err := CloudFromMessage(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid cloud: %v", err)
	}
	result, err := s.node.OnSyncRequest(input)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := CloudMessage(result)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// EnablePublisher sets the stream publication flag and always reports
// success.
func (s *Server) EnablePublisher(_ context.Context, req *wrapperspb.BoolValue) (*wrapperspb.BoolValue, error) {
	s.node.SetEnabled(req.GetValue())
	return wrapperspb.Bool(true), nil
}

// AcceptGoal starts a goal and returns its ID.
func (s *Server) AcceptGoal(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	g, err := s.node.OnGoalAccepted()
	if err != nil {
		return nil, statusFromError(err)
	}
	return wrapperspb.String(g.ID()), nil
}

// GetGoal returns the goal named by req, from memory or the goal store.
func (s *Server) GetGoal(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id := req.GetValue()
	st, err := s.node.Goal(id)
	if s.goals != nil && errors.Is(err, orchestrator.ErrGoalNotFound) {
		st, err = s.goals.GetGoal(id)
	}
	if err != nil {
		return nil, statusFromError(err)
	}
	out, err := GoalMessage(st)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// StreamSegmented sends every published result until the client goes away
// or the hub stops.
func (s *Server) StreamSegmented(_ *emptypb.Empty, stream grpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	if s.hub == nil {
		return status.Error(codes.Unavailable, "result stream not configured")
	}
	sub, err := s.hub.Subscribe()
	if errors.Is(err, publish.ErrTooManyClients) {
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	if err != nil {
		return status.Error(codes.Unavailable, err.Error())
	}
	defer sub.Close()
	logf("StreamSegmented client %s connected", sub.ID())

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			logf("StreamSegmented client %s gone: %v", sub.ID(), ctx.Err())
			return ctx.Err()
		case <-sub.Done():
			return status.Error(codes.Unavailable, "publisher stopped")
		case c := <-sub.C():
			msg, err := CloudMessage(c)
			if err != nil {
				logf("StreamSegmented encode error: %v", err)
				continue
			}
			if err := stream.Send(msg); err != nil {
				logf("StreamSegmented send error: %v", err)
				return err
			}
		}
	}
}

func statusFromError(err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrGoalInProgress):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, orchestrator.ErrGoalNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, orchestrator.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// GRPCServer owns a grpc.Server with the segmentation and health services
// registered.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server

	mu       sync.Mutex
	listener net.Listener
	serving  bool
}

// NewGRPCServer builds the server around svc.
func NewGRPCServer(svc SegmentationServer, opts ...grpc.ServerOption) *GRPCServer {
	opts = append([]grpc.ServerOption{
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
	}, opts...)
	g := &GRPCServer{
		server: grpc.NewServer(opts...),
		health: health.NewServer(),
	}
	RegisterSegmentationServer(g.server, svc)
	healthpb.RegisterHealthServer(g.server, g.health)
	g.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return g
}

// Listen binds addr and serves until Stop.
func (g *GRPCServer) Listen(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	logf("Listening on %s", lis.Addr())
	return g.Serve(lis)
}

// Serve accepts connections on lis until Stop. It returns nil after a
// graceful stop.
func (g *GRPCServer) Serve(lis net.Listener) error {
	g.mu.Lock()
	if g.serving {
		g.mu.Unlock()
		return fmt.Errorf("grpc server already serving")
	}
	g.serving = true
	g.listener = lis
	g.mu.Unlock()

	if err := g.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Stop marks the service not serving and stops gracefully. Open result
// streams end when their hub subscription closes, so stop the hub first
// or GracefulStop waits for clients to leave.
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
	logf("Server stopped")
}

// Addr returns the listening address, or nil before Serve.
func (g *GRPCServer) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}
