package auth

import (
	"context"

	"chat-relay/errors"

	"github.com/samber/lo"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func (m *TokenManager) authenticate(ctx context.Context) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, errors.ErrMissingToken
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return nil, errors.ErrMissingToken
	}
	token, err := BearerToken(values[0])
	if err != nil {
		return nil, err
	}
	claims, err := m.Validate(token)
	if err != nil {
		return nil, err
	}
	return WithClaims(ctx, claims), nil
}

// UnaryInterceptor validates the bearer token of every call except the
// public methods, and injects the user identity into the context.
func (m *TokenManager) UnaryInterceptor(publicMethods ...string) grpc.UnaryServerInterceptor {
	public := lo.Keyify(publicMethods)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := public[info.FullMethod]; ok {
			return handler(ctx, req)
		}
		newCtx, err := m.authenticate(ctx)
		if err != nil {
			return nil, errors.MapToGRPCError(err)
		}
		return handler(newCtx, req)
	}
}

func (m *TokenManager) StreamInterceptor(publicMethods ...string) grpc.StreamServerInterceptor {
	public := lo.Keyify(publicMethods)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if _, ok := public[info.FullMethod]; ok {
			return handler(srv, ss)
		}
		newCtx, err := m.authenticate(ss.Context())
		if err != nil {
			return errors.MapToGRPCError(err)
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: newCtx})
	}
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context { return s.ctx }
