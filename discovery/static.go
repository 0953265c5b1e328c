package discovery

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// StaticRegistry serves a fixed service to endpoint mapping, typically
// from the configuration file. It mainly serves small deployments and
// tests.
type StaticRegistry struct {
	services map[string][]Instance
}

// NewStaticRegistry parses the endpoint URLs of each service.
func NewStaticRegistry(services map[string][]string) (*StaticRegistry, error) {
	m := make(map[string][]Instance, len(services))
	for service, endpoints := range services {
		for _, e := range endpoints {
			in, err := parseEndpoint(e)
			if err != nil {
				return nil, fmt.Errorf("service %s: %w", service, err)
			}

			in.Service = service
			m[service] = append(m[service], in)
		}
	}

	return &StaticRegistry{services: m}, nil
}

func parseEndpoint(e string) (Instance, error) {
	u, err := url.Parse(e)
	if err != nil {
		return Instance{}, fmt.Errorf("invalid endpoint %q: %w", e, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return Instance{}, fmt.Errorf("invalid endpoint scheme in %q", e)
	}

	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		host = u.Host
		portStr = "80"
		if u.Scheme == "https" {
			portStr = "443"
		}
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Instance{}, fmt.Errorf("invalid endpoint port in %q", e)
	}

	return Instance{Host: host, Port: port, Scheme: u.Scheme, Healthy: true}, nil
}

// Lookup implements Registry.
func (r *StaticRegistry) Lookup(_ context.Context, service string) ([]Instance, error) {
	instances := r.services[service]
	out := make([]Instance, len(instances))
	copy(out, instances)
	return out, nil
}
