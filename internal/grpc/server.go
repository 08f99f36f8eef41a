package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-checked service name.
const ServiceName = "payments"

// Pinger reports store reachability. *sql.DB implements it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	DB     Pinger
	Log    *zap.Logger
}

func NewServer(db Pinger, log *zap.Logger) *Server {
	s := &Server{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		DB:     db,
		Log:    log.Named("grpc"),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	return s
}

// Check pings the store and publishes the result for ServiceName and the
// overall server.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.DB.PingContext(ctx); err != nil {
		s.Log.Warn("database ping failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
	return status
}

// Watch re-runs Check every interval until ctx ends.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

func (s *Server) Serve(lis net.Listener) error {
	s.Check(context.Background())
	return s.grpc.Serve(lis)
}

// Stop marks the server as not serving and drains open calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// StartGRPCServer listens on port and serves in the background.
func StartGRPCServer(port string, db Pinger, log *zap.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", port, err)
	}
	s := NewServer(db, log)
	go func() {
		if err := s.Serve(lis); err != nil {
			s.Log.Error("gRPC server stopped", zap.Error(err))
		}
	}()
	s.Log.Info("gRPC server listening", zap.String("port", port))
	return s, nil
}
