package main

import (
	"fmt"
	"time"
)

type Config struct {
	Host                 string        `env:"HOST,default=0.0.0.0"`
	HTTPPort             int           `env:"HTTP_PORT,default=8080"`
	GRPCPort             int           `env:"GRPC_PORT,default=9090"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath        string        `env:"BLUGE_FILEPATH,required=true"`
	JWTSecret            string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration    time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	BufferSize           int           `env:"BUFFER_SIZE,default=1024"`
	DrainTimeout         time.Duration `env:"DRAIN_TIMEOUT,default=2s"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	PingInterval         time.Duration `env:"PING_INTERVAL,default=30s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=4000"`
	DefaultPageSize      int           `env:"DEFAULT_PAGE_SIZE,default=25"`
	MaxPageSize          int           `env:"MAX_PAGE_SIZE,default=100"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=5s"`
	NatsURL              string        `env:"NATS_URL"`
	NodeID               string        `env:"NODE_ID"`
	DebugPort            int           `env:"DEBUG_PORT,default=0"`
}

func (c Config) Validate() error {
	switch {
	case c.ConnectionBufferSize <= 0:
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize)
	case c.BufferSize <= 0:
		return fmt.Errorf("BUFFER_SIZE must be positive, got %d", c.BufferSize)
	case c.DefaultPageSize <= 0 || c.MaxPageSize < c.DefaultPageSize:
		return fmt.Errorf("page sizes must satisfy 0 < DEFAULT_PAGE_SIZE <= MAX_PAGE_SIZE, got %d and %d",
			c.DefaultPageSize, c.MaxPageSize)
	case c.AuthTokenDuration <= 0:
		return fmt.Errorf("AUTH_TOKEN_DURATION must be positive, got %s", c.AuthTokenDuration)
	case c.PingInterval <= 0:
		return fmt.Errorf("PING_INTERVAL must be positive, got %s", c.PingInterval)
	}
	return nil
}
