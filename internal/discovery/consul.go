package discovery

import (
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/rs/zerolog"
)

type Registration struct {
	ServiceID string
	Name      string
	Host      string
	Port      int
	// HealthPath is polled by the Consul agent.
	HealthPath string
	Tags       []string
}

func (r Registration) agentRegistration() *consulapi.AgentServiceRegistration {
	return &consulapi.AgentServiceRegistration{
		ID:      r.ServiceID,
		Name:    r.Name,
		Address: r.Host,
		Port:    r.Port,
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d%s", r.Host, r.Port, r.HealthPath),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "1m",
		},
		Tags: r.Tags,
	}
}

type Registrar struct {
	client    *consulapi.Client
	serviceID string
	log       zerolog.Logger
}

// Register announces the service to the Consul agent at addr.
func Register(addr string, reg Registration, log zerolog.Logger) (*Registrar, error) {
	config := consulapi.DefaultConfig()
	config.Address = addr

	client, err := consulapi.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}

	if err := client.Agent().ServiceRegister(reg.agentRegistration()); err != nil {
		return nil, fmt.Errorf("failed to register service: %w", err)
	}

	log = log.With().Str("component", "discovery").Logger()
	log.Info().
		Str("service_id", reg.ServiceID).
		Str("address", addr).
		Msg("registered with Consul")

	return &Registrar{client: client, serviceID: reg.ServiceID, log: log}, nil
}

func (r *Registrar) Deregister() error {
	if err := r.client.Agent().ServiceDeregister(r.serviceID); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}
	r.log.Info().Str("service_id", r.serviceID).Msg("deregistered from Consul")
	return nil
}
