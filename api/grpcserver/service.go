package grpcserver

import (
	"context"

	"github.com/0x5487/order-process-system/protocol"
	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "ops.OrderService"

// Full method names of the order service.
const (
	SubmitOrdersMethod = "/" + ServiceName + "/SubmitOrders"
	CancelOrderMethod  = "/" + ServiceName + "/CancelOrder"
	QueryOrdersMethod  = "/" + ServiceName + "/QueryOrders"
)

// OrderServiceServer is the server API of the order service.
type OrderServiceServer interface {
	SubmitOrders(grpc.ServerStream) error
	CancelOrder(context.Context, *protocol.CancelOrderRequest) (*protocol.ExecutionReport, error)
	QueryOrders(*protocol.QueryOrdersRequest, grpc.ServerStream) error
}

// SubmitOrdersStreamDesc describes the bidirectional SubmitOrders stream.
var SubmitOrdersStreamDesc = grpc.StreamDesc{
	StreamName:    "SubmitOrders",
	Handler:       submitOrdersHandler,
	ServerStreams: true,
	ClientStreams: true,
}

// QueryOrdersStreamDesc describes the server-streaming QueryOrders call.
var QueryOrdersStreamDesc = grpc.StreamDesc{
	StreamName:    "QueryOrders",
	Handler:       queryOrdersHandler,
	ServerStreams: true,
}

// ServiceDesc is registered with a grpc.Server. Messages are carried by protocol.Codec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CancelOrder",
			Handler:    cancelOrderHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		SubmitOrdersStreamDesc,
		QueryOrdersStreamDesc,
	},
	Metadata: "ops.proto",
}

func cancelOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(protocol.CancelOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).CancelOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: CancelOrderMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).CancelOrder(ctx, req.(*protocol.CancelOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func submitOrdersHandler(srv any, stream grpc.ServerStream) error {
	return srv.(OrderServiceServer).SubmitOrders(stream)
}

func queryOrdersHandler(srv any, stream grpc.ServerStream) error {
	in := new(protocol.QueryOrdersRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(OrderServiceServer).QueryOrders(in, stream)
}
