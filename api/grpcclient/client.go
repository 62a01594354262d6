// Package grpcclient is a client of the ops.OrderService gRPC service.
package grpcclient

import (
	"context"
	"errors"
	"io"

	"github.com/0x5487/order-process-system/api/grpcserver"
	"github.com/0x5487/order-process-system/protocol"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client issues order service calls over one gRPC connection.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the order service at target without transport security.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(protocol.NewCodec())),
	}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// SubmitStream is an open SubmitOrders call.
type SubmitStream struct {
	stream grpc.ClientStream
}

// OpenSubmitStream starts a SubmitOrders call. The stream lives until ctx is done or the
// server finished it after CloseSend.
func (c *Client) OpenSubmitStream(ctx context.Context) (*SubmitStream, error) {
	stream, err := c.conn.NewStream(ctx, &grpcserver.SubmitOrdersStreamDesc, grpcserver.SubmitOrdersMethod)
	if err != nil {
		return nil, err
	}
	return &SubmitStream{stream: stream}, nil
}

// Send submits one new order.
func (s *SubmitStream) Send(req *protocol.NewOrderRequest) error {
	return s.stream.SendMsg(req)
}

// Recv blocks for the next report. It returns io.EOF once the server ended the stream.
func (s *SubmitStream) Recv() (*protocol.ExecutionReport, error) {
	report := new(protocol.ExecutionReport)
	if err := s.stream.RecvMsg(report); err != nil {
		return nil, err
	}
	return report, nil
}

// CloseSend tells the server no more orders follow.
func (s *SubmitStream) CloseSend() error {
	return s.stream.CloseSend()
}

// SubmitOrders sends requests on a fresh stream, closes the sending side and hands every
// report to onReport until the server ends the stream.
func (c *Client) SubmitOrders(ctx context.Context, requests []*protocol.NewOrderRequest, onReport func(*protocol.ExecutionReport)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.OpenSubmitStream(ctx)
	if err != nil {
		return err
	}

	sendErr := make(chan error, 1)
	go func() {
		for _, req := range requests {
			if err := stream.Send(req); err != nil {
				sendErr <- err
				return
			}
		}
		sendErr <- stream.CloseSend()
	}()

	for {
		report, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		onReport(report)
	}

	// io.EOF from Send means the server ended the stream; its status came from Recv
	if err := <-sendErr; err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// CancelOrder cancels a resting order.
func (c *Client) CancelOrder(ctx context.Context, req *protocol.CancelOrderRequest) (*protocol.ExecutionReport, error) {
	report := new(protocol.ExecutionReport)
	if err := c.conn.Invoke(ctx, grpcserver.CancelOrderMethod, req, report); err != nil {
		return nil, err
	}
	return report, nil
}

// QueryOrders returns every resident order in ascending order ID.
func (c *Client) QueryOrders(ctx context.Context, req *protocol.QueryOrdersRequest) ([]*protocol.OrderReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.conn.NewStream(ctx, &grpcserver.QueryOrdersStreamDesc, grpcserver.QueryOrdersMethod)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	var reports []*protocol.OrderReport
	for {
		report := new(protocol.OrderReport)
		err := stream.RecvMsg(report)
		if errors.Is(err, io.EOF) {
			return reports, nil
		}
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
}
