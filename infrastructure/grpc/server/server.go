package server

import (
	"chat-relay/auth"
	"chat-relay/infrastructure/grpc/wire"
	"log/slog"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer wires the chat service behind logging and bearer authentication.
// Register, Login and health probes are the only calls allowed without a token.
func NewServer(logger *slog.Logger, tokens *auth.TokenManager, chat *ChatServer) *grpc.Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpc3.UnaryLoggingInterceptor(logger),
			tokens.UnaryInterceptor(append(wire.PublicMethods, healthpb.Health_Check_FullMethodName)...),
		),
		grpc.StreamInterceptor(tokens.StreamInterceptor(healthpb.Health_Watch_FullMethodName)),
	)
	wire.RegisterChatServiceServer(s, chat)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(wire.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, healthServer)
	return s
}
