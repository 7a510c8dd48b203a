package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "segmentation.Segmentation"

const (
	Segmentation_DoSegmentation_FullMethodName  = "/" + ServiceName + "/DoSegmentation"
	Segmentation_EnablePublisher_FullMethodName = "/" + ServiceName + "/EnablePublisher"
	Segmentation_AcceptGoal_FullMethodName      = "/" + ServiceName + "/AcceptGoal"
	Segmentation_GetGoal_FullMethodName         = "/" + ServiceName + "/GetGoal"
	Segmentation_StreamSegmented_FullMethodName = "/" + ServiceName + "/StreamSegmented"
)

// SegmentationServer is the server API of the segmentation service.
type SegmentationServer interface {
	DoSegmentation(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	EnablePublisher(context.Context, *wrapperspb.BoolValue) (*wrapperspb.BoolValue, error)
	AcceptGoal(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	GetGoal(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	StreamSegmented(*emptypb.Empty, grpc.ServerStreamingServer[wrapperspb.BytesValue]) error
}

// RegisterSegmentationServer registers srv on s.
func RegisterSegmentationServer(s grpc.ServiceRegistrar, srv SegmentationServer) {
	s.RegisterService(&Segmentation_ServiceDesc, srv)
}

func _Segmentation_DoSegmentation_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SegmentationServer).DoSegmentation(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Segmentation_DoSegmentation_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SegmentationServer).DoSegmentation(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Segmentation_EnablePublisher_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BoolValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SegmentationServer).EnablePublisher(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Segmentation_EnablePublisher_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SegmentationServer).EnablePublisher(ctx, req.(*wrapperspb.BoolValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Segmentation_AcceptGoal_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SegmentationServer).AcceptGoal(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Segmentation_AcceptGoal_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SegmentationServer).AcceptGoal(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Segmentation_GetGoal_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SegmentationServer).GetGoal(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Segmentation_GetGoal_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SegmentationServer).GetGoal(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Segmentation_StreamSegmented_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(SegmentationServer).StreamSegmented(m, &grpc.GenericServerStream[emptypb.Empty, wrapperspb.BytesValue]{ServerStream: stream})
}

// Segmentation_ServiceDesc describes the segmentation service for
// grpc.ServiceRegistrar.
var Segmentation_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SegmentationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "DoSegmentation", Handler: _Segmentation_DoSegmentation_Handler},
		{MethodName: "EnablePublisher", Handler: _Segmentation_EnablePublisher_Handler},
		{MethodName: "AcceptGoal", Handler: _Segmentation_AcceptGoal_Handler},
		{MethodName: "GetGoal", Handler: _Segmentation_GetGoal_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamSegmented",
			Handler:       _Segmentation_StreamSegmented_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "segmentation",
}

// SegmentationClient is the client API of the segmentation service.
type SegmentationClient interface {
	DoSegmentation(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	EnablePublisher(ctx context.Context, in *wrapperspb.BoolValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
	AcceptGoal(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	GetGoal(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	StreamSegmented(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[wrapperspb.BytesValue], error)
}

type segmentationClient struct {
	cc grpc.ClientConnInterface
}

// NewSegmentationClient returns a client using cc.
func NewSegmentationClient(cc grpc.ClientConnInterface) SegmentationClient {
	return &segmentationClient{cc}
}

func (c *segmentationClient) DoSegmentation(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, Segmentation_DoSegmentation_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *segmentationClient) EnablePublisher(ctx context.Context, in *wrapperspb.BoolValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, Segmentation_EnablePublisher_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *segmentationClient) AcceptGoal(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, Segmentation_AcceptGoal_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *segmentationClient) GetGoal(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Segmentation_GetGoal_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *segmentationClient) StreamSegmented(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[wrapperspb.BytesValue], error) {
	stream, err := c.cc.NewStream(ctx, &Segmentation_ServiceDesc.Streams[0], Segmentation_StreamSegmented_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, wrapperspb.BytesValue]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
