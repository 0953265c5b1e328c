package discovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"
)

const (
	DefaultCacheTTL    = 10 * time.Second
	DefaultGracePeriod = time.Minute
)

// ErrNoInstances is returned when a service resolves to no healthy
// instance. The proxy accounts it as an upstream failure.
var ErrNoInstances = errors.New("no healthy instances")

// Instance is one live endpoint of an upstream service.
type Instance struct {
	Service  string
	Host     string
	Port     int
	Scheme   string
	Healthy  bool
	LastSeen time.Time
}

// Address returns the host:port of the instance.
func (i Instance) Address() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

func (i Instance) key() string {
	return i.Scheme + "://" + i.Address()
}

// Registry is the consumed discovery interface. Lookup returns the
// current snapshot of instances for a service, implementations bound
// their latency through the context.
type Registry interface {
	Lookup(ctx context.Context, service string) ([]Instance, error)
}

// Subscriber is optionally implemented by registries that push change
// events instead of being polled.
type Subscriber interface {
	Subscribe(service string, onChange func([]Instance)) (cancel func())
}
