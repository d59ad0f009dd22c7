// Package discovery registers the engine with Consul and lets clients find it.
package discovery

import (
	"fmt"
	"net"

	consul "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

const (
	HTTPService = "auditor-http"
	GRPCService = "auditor-grpc"
)

type Registry struct {
	client *consul.Client
	logger *zap.Logger
}

func New(consulAddr string, logger *zap.Logger) (*Registry, error) {
	config := consul.DefaultConfig()
	config.Address = consulAddr

	client, err := consul.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}
	return &Registry{client: client, logger: logger}, nil
}

// Register announces the HTTP API and the gRPC health endpoint. Consul
// checks both and drops them after they stay critical.
func (r *Registry) Register(address string, httpPort, grpcPort int) error {
	if address == "" {
		address = LocalIP()
	}

	grpcReg := &consul.AgentServiceRegistration{
		ID:      GRPCService,
		Name:    GRPCService,
		Port:    grpcPort,
		Address: address,
		Check: &consul.AgentServiceCheck{
			GRPC:                           fmt.Sprintf("%s:%d", address, grpcPort),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		},
		Tags: []string{"auditor", "grpc"},
	}
	if err := r.client.Agent().ServiceRegister(grpcReg); err != nil {
		return fmt.Errorf("register %s: %w", GRPCService, err)
	}

	httpReg := &consul.AgentServiceRegistration{
		ID:      HTTPService,
		Name:    HTTPService,
		Port:    httpPort,
		Address: address,
		Check: &consul.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/api/playbooks/health", address, httpPort),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		},
		Tags: []string{"auditor", "http", "api"},
	}
	if err := r.client.Agent().ServiceRegister(httpReg); err != nil {
		return fmt.Errorf("register %s: %w", HTTPService, err)
	}

	r.logger.Info("registered with consul", zap.String("address", address),
		zap.Int("http_port", httpPort), zap.Int("grpc_port", grpcPort))
	return nil
}

func (r *Registry) Deregister() {
	for _, id := range []string{GRPCService, HTTPService} {
		if err := r.client.Agent().ServiceDeregister(id); err != nil {
			r.logger.Warn("consul deregistration failed", zap.String("service", id), zap.Error(err))
		}
	}
}

// Discover returns host:port of the first healthy instance of service.
func (r *Registry) Discover(service string) (string, error) {
	services, _, err := r.client.Health().Service(service, "", true, nil)
	if err != nil {
		return "", fmt.Errorf("query consul: %w", err)
	}
	if len(services) == 0 {
		return "", fmt.Errorf("no healthy %s services found", service)
	}

	s := services[0]
	addr := s.Service.Address
	if addr == "" {
		addr = s.Node.Address
	}
	return net.JoinHostPort(addr, fmt.Sprint(s.Service.Port)), nil
}

// LocalIP returns the first non-loopback IPv4 address, or 127.0.0.1.
func LocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return "127.0.0.1"
}
