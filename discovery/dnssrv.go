package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// SRVRegistry resolves services through DNS SRV records, the way
// Consul and Kubernetes headless services expose them. A service named
// "product-catalog" in domain "cluster.local" is looked up as
// _product-catalog._tcp.cluster.local.
type SRVRegistry struct {
	server string
	domain string
	scheme string
	client *dns.Client

	// exchange is swapped out in tests
	exchange func(ctx context.Context, m *dns.Msg, server string) (*dns.Msg, time.Duration, error)
}

// NewSRVRegistry initializes a registry querying the given DNS server
// (host:port) within the given domain. An empty server falls back to
// the first nameserver of the system resolver config. Discovered
// instances are assumed to speak plain http.
func NewSRVRegistry(server, domain string) *SRVRegistry {
	if server == "" {
		if cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(cfg.Servers) > 0 {
			server = net.JoinHostPort(cfg.Servers[0], cfg.Port)
		}
	}

	c := &dns.Client{Timeout: 3 * time.Second}

	return &SRVRegistry{
		server:   server,
		domain:   strings.TrimSuffix(domain, "."),
		scheme:   "http",
		client:   c,
		exchange: c.ExchangeContext,
	}
}

func (r *SRVRegistry) srvName(service string) string {
	if r.domain == "" {
		return dns.Fqdn(service)
	}

	return dns.Fqdn(fmt.Sprintf("_%s._tcp.%s", service, r.domain))
}

// Lookup implements Registry.
func (r *SRVRegistry) Lookup(ctx context.Context, service string) ([]Instance, error) {
	m := &dns.Msg{}
	m.SetQuestion(r.srvName(service), dns.TypeSRV)

	in, _, err := r.exchange(ctx, m, r.server)
	if err != nil {
		return nil, fmt.Errorf("SRV lookup for %s failed: %w", service, err)
	}

	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("SRV lookup for %s failed: %s", service, dns.RcodeToString[in.Rcode])
	}

	// map additional A/AAAA records to their owner names
	addrs := make(map[string]string)
	for _, rr := range in.Extra {
		switch a := rr.(type) {
		case *dns.A:
			addrs[a.Hdr.Name] = a.A.String()
		case *dns.AAAA:
			addrs[a.Hdr.Name] = a.AAAA.String()
		}
	}

	var instances []Instance
	for _, rr := range in.Answer {
		srv, ok := rr.(*dns.SRV)
		if !ok {
			continue
		}

		host := strings.TrimSuffix(srv.Target, ".")
		if addr, ok := addrs[srv.Target]; ok {
			host = addr
		}

		instances = append(instances, Instance{
			Host:    host,
			Port:    int(srv.Port),
			Scheme:  r.scheme,
			Healthy: true,
		})
	}

	return instances, nil
}
