package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/thegamersstation/gsm/internal/api"
	"github.com/thegamersstation/gsm/internal/cache"
	"github.com/thegamersstation/gsm/internal/config"
	"github.com/thegamersstation/gsm/internal/profile"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Server manages the gRPC control server on the profile's Unix domain socket.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates a gRPC server bound to the profile's Unix domain socket.
func NewServer(p Params, logger *zap.Logger, svc *api.WorkerService) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = profile.SocketPath(p.Profile)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer()
	api.RegisterWorkerServer(srv, svc)

	return &Server{
		grpcServer: srv,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string { return s.socketPath }

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(_ context.Context) {
	s.logger.Info("gRPC server stopping")
	s.grpcServer.GracefulStop()
	_ = os.Remove(s.socketPath)
}

// ProxyServer is the HTTP listener in front of the caching proxy.
type ProxyServer struct {
	http     *http.Server
	listener net.Listener
	logger   *zap.Logger
}

// NewProxyServer binds the worker listen address.
func NewProxyServer(cfg *config.Config, proxy *cache.Proxy, logger *zap.Logger) (*ProxyServer, error) {
	ln, err := net.Listen("tcp", cfg.Worker.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Worker.Listen, err)
	}
	return &ProxyServer{
		http: &http.Server{
			Handler:           proxy,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: ln,
		logger:   logger,
	}, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *ProxyServer) Addr() string { return s.listener.Addr().String() }

// Start serves until Stop. A clean shutdown returns nil.
func (s *ProxyServer) Start() error {
	s.logger.Info("proxy listening", zap.String("addr", s.Addr()))
	if err := s.http.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests until ctx ends.
func (s *ProxyServer) Stop(ctx context.Context) {
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("proxy shutdown", zap.Error(err))
	}
}
