package gateway

import (
	stdlibcontext "context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/modacart/gateway/auth"
	"github.com/modacart/gateway/circuit"
	"github.com/modacart/gateway/discovery"
	"github.com/modacart/gateway/logging"
	"github.com/modacart/gateway/metrics"
	"github.com/modacart/gateway/proxy"
	"github.com/modacart/gateway/routing"
)

const (
	// DefaultAddress of the gateway listener.
	DefaultAddress = ":9090"

	// DefaultSupportListener exposes /health and /metrics.
	DefaultSupportListener = ":9911"

	defaultShutdownGrace = 15 * time.Second
)

// Options to start the gateway edge.
type Options struct {

	// Address of the main listener.
	Address string

	// SupportListener is the address of the listener serving
	// /health and /metrics. An empty value disables it.
	SupportListener string

	// Routes of the gateway route table.
	Routes []*routing.Rule

	// BreakerDefaults apply to every circuit breaker, unless a
	// route overrides them.
	BreakerDefaults circuit.BreakerSettings

	// RouteBreakers contains breaker overrides keyed by route id.
	RouteBreakers map[string]circuit.BreakerSettings

	// TokenKeys configures token signature verification: a JWKS
	// URL, an inline JWKS document or a shared HMAC secret.
	// Required when any route requires authentication.
	TokenKeys string

	// TokenClockSkew is the accepted leeway on token time claims.
	TokenClockSkew time.Duration

	// RevocationStoreURI points to the redis instance holding the
	// revoked token ids. Empty disables the revocation check.
	RevocationStoreURI string

	// RevocationCacheTTL bounds the staleness of cached revocation
	// lookups.
	RevocationCacheTTL time.Duration

	// StaticEndpoints maps service names to fixed endpoint URLs,
	// bypassing DNS discovery.
	StaticEndpoints map[string][]string

	// DiscoveryDomain is the DNS domain queried for SRV records of
	// the upstream services.
	DiscoveryDomain string

	// DiscoveryServer is the DNS server answering the SRV queries,
	// as host:port. Empty uses the system resolver config.
	DiscoveryServer string

	// DiscoveryCacheTTL bounds the staleness of cached instance
	// snapshots.
	DiscoveryCacheTTL time.Duration

	// DiscoveryGracePeriod keeps disappeared instances around,
	// marked unhealthy, before dropping them.
	DiscoveryGracePeriod time.Duration

	// CORS settings of the edge. The zero value disables CORS
	// handling.
	CORS proxy.CORSOptions

	// MaxAttempts, ConnectTimeout, ResponseTimeout, TotalTimeout
	// and BufferThreshold tune the upstream client. Zero values
	// fall back to the proxy package defaults.
	MaxAttempts     int
	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration
	TotalTimeout    time.Duration
	BufferThreshold int64

	// ShutdownGrace is the time given to in-flight requests on
	// termination.
	ShutdownGrace time.Duration

	// ApplicationLogOutput is the path of the application log
	// file. Empty means stderr.
	ApplicationLogOutput string

	// ApplicationLogPrefix is prepended to every application log
	// entry.
	ApplicationLogPrefix string

	// ApplicationLogLevel is one of the logrus level names.
	ApplicationLogLevel string

	// AccessLogOutput is the path of the access log file. Empty
	// means stderr.
	AccessLogOutput string

	// AccessLogDisabled turns the access log off.
	AccessLogDisabled bool

	// AccessLogJSONEnabled prints access log entries as JSON.
	AccessLogJSONEnabled bool

	// MetricsPrefix overrides the metric namespace.
	MetricsPrefix string

	// EnableRuntimeMetrics adds the Go runtime collectors to
	// /metrics.
	EnableRuntimeMetrics bool
}

func logOutput(path string) (io.Writer, error) {
	if path == "" {
		return os.Stderr, nil
	}

	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func initLog(o Options) error {
	appOut, err := logOutput(o.ApplicationLogOutput)
	if err != nil {
		return fmt.Errorf("failed to open application log file: %w", err)
	}

	accessOut, err := logOutput(o.AccessLogOutput)
	if err != nil {
		return fmt.Errorf("failed to open access log file: %w", err)
	}

	return logging.Init(logging.Options{
		ApplicationLogPrefix: o.ApplicationLogPrefix,
		ApplicationLogOutput: appOut,
		ApplicationLogLevel:  o.ApplicationLogLevel,
		AccessLogOutput:      accessOut,
		AccessLogDisabled:    o.AccessLogDisabled,
		AccessLogJSONEnabled: o.AccessLogJSONEnabled,
	})
}

func createRegistry(o Options) (discovery.Registry, error) {
	switch {
	case len(o.StaticEndpoints) > 0:
		return discovery.NewStaticRegistry(o.StaticEndpoints)
	case o.DiscoveryDomain != "":
		return discovery.NewSRVRegistry(o.DiscoveryServer, o.DiscoveryDomain), nil
	default:
		return nil, errors.New("no discovery source configured")
	}
}

func createTokenValidator(o Options) (*auth.Validator, func(), error) {
	requireAuth := false
	for _, r := range o.Routes {
		if r.RequireAuth {
			requireAuth = true
			break
		}
	}

	if !requireAuth {
		return nil, func() {}, nil
	}

	if o.TokenKeys == "" {
		return nil, nil, errors.New("protected routes configured without token verification keys")
	}

	var (
		revocations auth.RevocationStore
		closeStore  = func() {}
	)

	if o.RevocationStoreURI != "" {
		store, err := auth.NewRedisRevocationStore(o.RevocationStoreURI)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect the revocation store: %w", err)
		}

		revocations = auth.NewCachedRevocations(store, o.RevocationCacheTTL)
		closeStore = func() {
			if err := store.Close(); err != nil {
				log.Errorf("failed to close the revocation store: %v", err)
			}
		}
	}

	v, err := auth.NewValidator(auth.Options{
		Keys:        o.TokenKeys,
		ClockSkew:   o.TokenClockSkew,
		Revocations: revocations,
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	return v, func() {
		v.Close()
		closeStore()
	}, nil
}

func upstreams(routes []*routing.Rule) []string {
	seen := make(map[string]struct{})
	var services []string
	for _, r := range routes {
		if _, ok := seen[r.Upstream]; ok {
			continue
		}

		seen[r.Upstream] = struct{}{}
		services = append(services, r.Upstream)
	}

	return services
}

func startSupportListener(address string, m *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK\n"))
	})

	go func() {
		if err := http.ListenAndServe(address, mux); err != nil {
			log.Errorf("support listener failed: %v", err)
		}
	}()
}

// Run starts the gateway and blocks until SIGINT or SIGTERM, then
// shuts down gracefully.
func Run(o Options) error {
	if o.Address == "" {
		o.Address = DefaultAddress
	}

	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = defaultShutdownGrace
	}

	if err := initLog(o); err != nil {
		return err
	}

	rt, err := routing.New(o.Routes)
	if err != nil {
		return fmt.Errorf("invalid route table: %w", err)
	}

	m := metrics.New(metrics.Options{
		Prefix:               o.MetricsPrefix,
		EnableRuntimeMetrics: o.EnableRuntimeMetrics,
	})

	breakers := circuit.NewRegistry(o.BreakerDefaults)
	breakers.OnStateChange(func(name, from, to string) {
		log.Infof("circuit breaker %s: %s -> %s", name, from, to)
		m.IncBreakerTransition(name, from, to)
	})

	registry, err := createRegistry(o)
	if err != nil {
		return err
	}

	resolver := discovery.NewResolver(discovery.ResolverOptions{
		Registry:    registry,
		CacheTTL:    o.DiscoveryCacheTTL,
		GracePeriod: o.DiscoveryGracePeriod,
	})

	tokens, closeTokens, err := createTokenValidator(o)
	if err != nil {
		return err
	}
	defer closeTokens()

	ctx, stop := signal.NotifyContext(stdlibcontext.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, service := range upstreams(o.Routes) {
		go resolver.Watch(ctx, service)
	}

	params := proxy.Params{
		Routing:         rt,
		Breakers:        breakers,
		RouteBreakers:   o.RouteBreakers,
		Resolver:        resolver,
		Metrics:         m,
		CORS:            o.CORS,
		MaxAttempts:     o.MaxAttempts,
		ConnectTimeout:  o.ConnectTimeout,
		ResponseTimeout: o.ResponseTimeout,
		TotalTimeout:    o.TotalTimeout,
		BufferThreshold: o.BufferThreshold,
	}

	if tokens != nil {
		params.Tokens = tokens
	}

	p := proxy.WithParams(params)
	defer p.Close()

	if o.SupportListener != "" {
		startSupportListener(o.SupportListener, m)
	}

	server := &http.Server{Addr: o.Address, Handler: p}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("gateway listening on %s", o.Address)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Infof("shutting down, waiting up to %v for in-flight requests", o.ShutdownGrace)

	shutdownCtx, cancel := stdlibcontext.WithTimeout(stdlibcontext.Background(), o.ShutdownGrace)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
