package meterrpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "meterreader.MeterReadingService"

// Full method names, as seen by interceptors.
const (
	MethodCreateToken     = "/" + ServiceName + "/CreateToken"
	MethodAddReading      = "/" + ServiceName + "/AddReading"
	MethodSendDiagnostics = "/" + ServiceName + "/SendDiagnostics"
)

// Server is implemented by the meter reading service.
type Server interface {
	CreateToken(ctx context.Context, req *TokenRequest) (*TokenResponse, error)
	AddReading(ctx context.Context, pkt *ReadingPacket) (*StatusMessage, error)
	SendDiagnostics(stream DiagnosticsServerStream) error
}

// DiagnosticsServerStream is the server side of SendDiagnostics.
type DiagnosticsServerStream interface {
	Recv() (*ReadingMessage, error)
	SendAndClose(*Empty) error
	grpc.ServerStream
}

// ServiceDesc describes the meter reading service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateToken", Handler: createTokenHandler},
		{MethodName: "AddReading", Handler: addReadingHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SendDiagnostics",
			Handler:       sendDiagnosticsHandler,
			ClientStreams: true,
		},
	},
	Metadata: "meterreader.proto",
}

// RegisterServer attaches srv to a gRPC server.
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}

func createTokenHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(TokenRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).CreateToken(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodCreateToken}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).CreateToken(ctx, req.(*TokenRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func addReadingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReadingPacket)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).AddReading(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodAddReading}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).AddReading(ctx, req.(*ReadingPacket))
	}
	return interceptor(ctx, in, info, handler)
}

func sendDiagnosticsHandler(srv any, stream grpc.ServerStream) error {
	return srv.(Server).SendDiagnostics(&diagnosticsServerStream{stream})
}

type diagnosticsServerStream struct {
	grpc.ServerStream
}

func (x *diagnosticsServerStream) Recv() (*ReadingMessage, error) {
	m := new(ReadingMessage)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (x *diagnosticsServerStream) SendAndClose(m *Empty) error {
	return x.ServerStream.SendMsg(m)
}
