package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"meter-reader/internal/meterrpc"
)

// Interceptor validates bearer JWTs on incoming calls and enforces roles.
type Interceptor struct {
	Secret []byte
	Policy Policy
}

// NewInterceptor constructs an auth interceptor.
func NewInterceptor(secret []byte, policy Policy) *Interceptor {
	return &Interceptor{Secret: secret, Policy: policy}
}

// Unary returns the unary server interceptor.
func (i *Interceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := i.authorize(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// Stream returns the stream server interceptor.
func (i *Interceptor) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := i.authorize(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &identityStream{ServerStream: ss, ctx: ctx})
	}
}

func (i *Interceptor) authorize(ctx context.Context, method string) (context.Context, error) {
	if i == nil || i.Policy.IsExempt(method) {
		return ctx, nil
	}
	token := extractBearer(ctx)
	claims, err := ParseJWT(token, i.Secret)
	if err != nil {
		return ctx, status.Error(codes.Unauthenticated, ErrUnauthorized.Error())
	}
	role, _ := NormalizeRole(claims.Role)
	if !RoleAtLeast(role, i.Policy.RequiredRole(method)) {
		return ctx, status.Error(codes.PermissionDenied, ErrForbidden.Error())
	}
	return WithIdentity(ctx, role, claims.Subject), nil
}

type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context {
	return s.ctx
}

func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(meterrpc.AuthorizationKey)
	if len(values) == 0 {
		return ""
	}
	parts := strings.Fields(values[0])
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
