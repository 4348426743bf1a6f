// Package health отдает состояние сервиса по протоколу grpc.health.v1.
package health

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName имя сервиса для точечных проверок, пустое имя означает весь сервер
const ServiceName = "plantdetector.Detection"

// Server gRPC сервер проверки здоровья
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     *logrus.Logger
}

// NewServer создает сервер. Пока не вызван SetServing, статус NOT_SERVING.
func NewServer(logger *logrus.Logger) *Server {
	s := &Server{
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
		logger:     logger,
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.SetServing(false)
	return s
}

// SetServing переключает статус сервера и сервиса детекции
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Checker реализация grpc.health.v1.Health
func (s *Server) Checker() healthpb.HealthServer {
	return s.health
}

// Serve принимает соединения, пока сервер не остановлен
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Infof("gRPC health сервер слушает %s", listener.Addr())
	if err := s.grpcServer.Serve(listener); err != nil {
		return fmt.Errorf("ошибка gRPC сервера: %w", err)
	}
	return nil
}

// ListenAndServe открывает порт и запускает Serve
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("ошибка открытия порта %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Shutdown переводит статус в NOT_SERVING и останавливает сервер
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
