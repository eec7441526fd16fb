package meterrpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is the caller side of the meter reading service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial opens a connection to the service. An https:// address selects TLS,
// anything else is plaintext.
func Dial(address string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	if strings.TrimSpace(address) == "" {
		return nil, errors.New("meterrpc: empty service address")
	}
	target, secure := splitScheme(address)
	creds := insecure.NewCredentials()
	if secure {
		creds = credentials.NewClientTLSFromCert(nil, "")
	}
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	return grpc.NewClient(target, append(base, opts...)...)
}

func splitScheme(address string) (string, bool) {
	switch {
	case strings.HasPrefix(address, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(address, "https://"), "/"), true
	case strings.HasPrefix(address, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(address, "http://"), "/"), false
	default:
		return address, false
	}
}

// CreateToken exchanges credentials for a bearer token.
func (c *Client) CreateToken(ctx context.Context, in *TokenRequest, opts ...grpc.CallOption) (*TokenResponse, error) {
	out := new(TokenResponse)
	if err := c.cc.Invoke(ctx, MethodCreateToken, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// AddReading submits a batch.
func (c *Client) AddReading(ctx context.Context, in *ReadingPacket, opts ...grpc.CallOption) (*StatusMessage, error) {
	out := new(StatusMessage)
	if err := c.cc.Invoke(ctx, MethodAddReading, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// DiagnosticsClientStream is the client side of SendDiagnostics.
type DiagnosticsClientStream interface {
	Send(*ReadingMessage) error
	CloseAndRecv() (*Empty, error)
	grpc.ClientStream
}

// SendDiagnostics opens a client-streaming diagnostics call.
func (c *Client) SendDiagnostics(ctx context.Context, opts ...grpc.CallOption) (DiagnosticsClientStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], MethodSendDiagnostics, opts...)
	if err != nil {
		return nil, err
	}
	return &diagnosticsClientStream{stream}, nil
}

type diagnosticsClientStream struct {
	grpc.ClientStream
}

func (x *diagnosticsClientStream) Send(m *ReadingMessage) error {
	return x.ClientStream.SendMsg(m)
}

func (x *diagnosticsClientStream) CloseAndRecv() (*Empty, error) {
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	m := new(Empty)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
