package server

import (
	"fmt"

	capi "github.com/hashicorp/consul/api"
	"github.com/hashicorp/go-hclog"
)

// RegisterServer announces the notebook service to the local Consul agent
// with a gRPC health check.
type RegisterServer struct {
	ServiceID   string
	ServiceName string
	Addr        string
	Port        int
	client      *capi.Client
	logger      hclog.Logger
}

func NewRegisterServer(serviceID, serviceName, addr string, port int, logger hclog.Logger) (*RegisterServer, error) {
	client, err := capi.NewClient(capi.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &RegisterServer{
		ServiceID:   serviceID,
		ServiceName: serviceName,
		Addr:        addr,
		Port:        port,
		client:      client,
		logger:      logger,
	}, nil
}

func (r *RegisterServer) registration() *capi.AgentServiceRegistration {
	return &capi.AgentServiceRegistration{
		ID:      r.ServiceID,
		Name:    r.ServiceName,
		Address: r.Addr,
		Port:    r.Port,
		Tags:    []string{"grpc", "notebook"},
		Check: &capi.AgentServiceCheck{
			GRPC:                           fmt.Sprintf("%s:%d/%s", r.Addr, r.Port, r.ServiceName),
			Interval:                       "10s",
			Timeout:                        "1s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
}

func (r *RegisterServer) Register() error {
	if err := r.client.Agent().ServiceRegister(r.registration()); err != nil {
		return fmt.Errorf("failed to register service %s: %w", r.ServiceID, err)
	}
	r.logger.Info("registered in consul", "service", r.ServiceID)
	return nil
}

func (r *RegisterServer) Deregister() error {
	if err := r.client.Agent().ServiceDeregister(r.ServiceID); err != nil {
		return fmt.Errorf("failed to deregister %s: %w", r.ServiceID, err)
	}
	r.logger.Info("deregistered from consul", "service", r.ServiceID)
	return nil
}
