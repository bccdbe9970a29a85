package remote

import (
	"context"
	"errors"
	"net"

	"github.com/DocKV/dockv/pkg/txn"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server exposes a local StatusAuthority over gRPC for remote readers.
type Server struct {
	grpcServer *grpc.Server
	local      txn.StatusAuthority
}

// NewServer creates a server answering status queries from the given
// local authority.
func NewServer(local txn.StatusAuthority, opts ...grpc.ServerOption) *Server {
	opts = append(opts, grpc.ForceServerCodec(rawCodec{}))
	s := &Server{
		grpcServer: grpc.NewServer(opts...),
		local:      local,
	}
	s.grpcServer.RegisterService(&serviceDesc, s)
	return s
}

// Serve blocks serving connections on the listener until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Stop gracefully stops the server.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

func (s *Server) getStatus(ctx context.Context, req rawMessage) (rawMessage, error) {
	id, ceiling, err := decodeStatusRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.local.RequestStatus(ctx, id, ceiling)
	if err != nil {
		if errors.Is(err, txn.ErrStatusUnknown) {
			return nil, status.Errorf(codes.NotFound, "transaction %s unknown", id)
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return encodeStatusResponse(res), nil
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetStatus",
			Handler:    getStatusHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	var req rawMessage
	if err := dec(&req); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, in any) (any, error) {
		resp, err := srv.(*Server).getStatus(ctx, *in.(*rawMessage))
		if err != nil {
			return nil, err
		}
		return &resp, nil
	}
	if interceptor == nil {
		return handle(ctx, &req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodGetStatus,
	}
	return interceptor(ctx, &req, info, handle)
}
