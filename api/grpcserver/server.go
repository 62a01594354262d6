package grpcserver

import (
	"context"
	"errors"
	"net"

	match "github.com/0x5487/order-process-system"
	"github.com/0x5487/order-process-system/protocol"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server exposes a Dispatcher as the ops.OrderService gRPC service.
type Server struct {
	dispatcher *match.Dispatcher
	grpc       *grpc.Server
	logger     *zap.Logger
}

// New creates a server in front of dispatcher. The dispatcher must be started by the caller.
func New(dispatcher *match.Dispatcher, logger *zap.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts = append([]grpc.ServerOption{
		grpc.ForceServerCodec(protocol.NewCodec()),
		grpc.ChainUnaryInterceptor(UnaryLoggingInterceptor(logger)),
		grpc.ChainStreamInterceptor(StreamLoggingInterceptor(logger)),
	}, opts...)

	s := &Server{
		dispatcher: dispatcher,
		grpc:       grpc.NewServer(opts...),
		logger:     logger,
	}
	s.grpc.RegisterService(&ServiceDesc, s)
	return s
}

// Serve accepts connections on lis until the server stops.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
	err := s.grpc.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Shutdown stops accepting calls and waits for running calls to end. When ctx expires
// first, the remaining streams are closed forcefully.
func (s *Server) Shutdown(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.grpc.Stop()
		<-stopped
		return ctx.Err()
	}
}

// SubmitOrders implements OrderServiceServer.
func (s *Server) SubmitOrders(stream grpc.ServerStream) error {
	return toStatus(s.dispatcher.ServeSubmitOrders(stream))
}

// CancelOrder implements OrderServiceServer.
func (s *Server) CancelOrder(ctx context.Context, req *protocol.CancelOrderRequest) (*protocol.ExecutionReport, error) {
	report, err := s.dispatcher.CancelOrder(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return report, nil
}

// QueryOrders implements OrderServiceServer.
func (s *Server) QueryOrders(req *protocol.QueryOrdersRequest, stream grpc.ServerStream) error {
	return toStatus(s.dispatcher.ServeQueryOrders(stream, req))
}

func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, match.ErrShutdown):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, match.ErrInvalidParam):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Unavailable, err.Error())
}
