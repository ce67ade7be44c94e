package main

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain/event"
	grpcserver "chat-relay/infrastructure/grpc/server"
	httpapi "chat-relay/infrastructure/http"
	"chat-relay/infrastructure/nats"
	"chat-relay/infrastructure/storage"
	"chat-relay/internal"
	"chat-relay/observability"
	"chat-relay/pagination"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/session"
	"chat-relay/sink"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a server failure.
// Deferred cleanups run in reverse order: stores close last.
func run() (int, error) {
	// 1. Configuration & Logger
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return exitConfig, fmt.Errorf("failed to load .env: %w", err)
	}
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	if config.NodeID == "" {
		config.NodeID = uuid.NewString()
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage (Badger) and search index (Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	searchIndex := sink.NewSearchIndex(logger, blugeWriter)
	defer func() {
		logger.Info("Closing Bluge...")
		_ = searchIndex.Close()
	}()

	// 3. Metrics
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics()
	if err := metrics.Register(registry); err != nil {
		return exitRuntime, fmt.Errorf("metrics registration failed: %w", err)
	}

	// 4. Bus, permanent sinks and supervised workers
	fanout := make(chan event.DomainEvent, config.BufferSize)
	bus := runtime.NewBus(logger, metrics).WithFanout(fanout)
	sinks := []contract.EventSink{searchIndex}
	sup := workers.NewSupervisor(logger, metrics, config.RestartInterval)

	if config.NatsURL != "" {
		conn, err := nats.Connect(config.NatsURL, "chat-relay-"+config.NodeID, logger)
		if err != nil {
			return exitRuntime, fmt.Errorf("nats connection failed: %w", err)
		}
		defer conn.Close()
		relay := nats.NewRelay(logger, metrics, conn, config.NodeID, bus)
		sinks = append(sinks, relay)
		sup.Add(relay)
	}
	sup.Add(
		workers.NewEventFanout(logger, metrics, fanout, config.SinkTimeout, sinks...),
		workers.NewProcessStats(logger, metrics, config.MetricInterval),
	)
	if config.DebugPort > 0 {
		sup.Add(internal.NewDebugServer(logger, db, config.DebugPort, func() map[string]any {
			return map[string]any{"topics": bus.Topics(), "node_id": config.NodeID}
		}))
	}

	// 5. Services
	pageConfig := pagination.Config{DefaultPageSize: config.DefaultPageSize, MaxPageSize: config.MaxPageSize}
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	users := storage.NewUserRepository(db, logger)
	rooms := storage.NewRoomRepository(db, logger)
	messages := storage.NewMessageRepository(db, logger)

	authService := services.NewAuthService(logger, users, tokens)
	roomService := services.NewRoomService(logger, users, rooms, pageConfig)
	chatService := services.NewChatService(logger, metrics, rooms, messages, bus, searchIndex, services.ChatConfig{
		MaxContentLength: config.MaxContentLength,
		Pagination:       pageConfig,
		Session:          session.Config{BufferSize: config.ConnectionBufferSize, DrainTimeout: config.DrainTimeout},
	})

	errChan := make(chan error, 2)
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Run(ctx)
	}()

	// 6. HTTP server (REST + WebSocket + metrics)
	handler := httpapi.NewHandler(logger, authService, roomService, chatService)
	socket := httpapi.NewSocketHandler(ctx, logger, chatService, tokens, config.PingInterval)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.HTTPPort),
		Handler:           httpapi.NewRouter(logger, handler, socket, tokens, metricsHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. gRPC server
	address := fmt.Sprintf("%s:%d", config.Host, config.GRPCPort)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	grpcServer := grpcserver.NewServer(logger, tokens,
		grpcserver.NewChatServer(logger, authService, roomService, chatService))
	go func() {
		logger.Info("Starting gRPC server", "address", address, "at", time.Now().UTC())
		for serviceName := range grpcServer.GetServiceInfo() {
			logger.Debug("gRPC exposed service", "name", serviceName)
		}
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
		stop()
	}

	// 9. Graceful shutdown. Canceling ctx already closed every live session,
	// so streams end and GracefulStop does not hang.
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	stopGRPC(shutdownCtx, grpcServer)
	sup.Stop()
	<-supDone
	logger.Info("Program stopped cleanly")
	return code, runErr
}

func stopGRPC(ctx context.Context, s *grpc.Server) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.Stop()
	}
}

func buildBadgerOpts(config Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}
	return options
}
