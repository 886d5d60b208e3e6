// Package consul registers the service instance with a local consul agent.
// Registration is optional: if CONSUL_HTTP_ADDR is unset the service simply
// runs unregistered.
package consul

import (
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
)

type Registration struct {
	client *consulapi.Client
	id     string
	name   string
}

func Register(addr, serviceName, host string, port int) (*Registration, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = addr

	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	id := fmt.Sprintf("%s-%d", serviceName, port)
	reg := &consulapi.AgentServiceRegistration{
		ID:      id,
		Name:    serviceName,
		Address: host,
		Port:    port,
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/api/health", host, port),
			Interval:                       "10s",
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
	if err := client.Agent().ServiceRegister(reg); err != nil {
		return nil, fmt.Errorf("failed to register service: %w", err)
	}
	return &Registration{client: client, id: id, name: serviceName}, nil
}

func (r *Registration) Deregister() error {
	if r == nil {
		return nil
	}
	if err := r.client.Agent().ServiceDeregister(r.id); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}
	return nil
}
