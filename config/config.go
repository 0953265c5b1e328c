package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/modacart/gateway"
	"github.com/modacart/gateway/circuit"
	"github.com/modacart/gateway/proxy"
)

type Config struct {
	ConfigFile string
	Flags      *flag.FlagSet

	// listeners:
	Address         string        `yaml:"address"`
	SupportListener string        `yaml:"support-listener"`
	ShutdownGrace   time.Duration `yaml:"shutdown-grace"`

	// routing:
	Routes          routeFlags               `yaml:"routes"`
	BreakerDefaults *circuit.BreakerSettings `yaml:"breaker-defaults"`
	RouteBreakers   breakerFlags             `yaml:"route-breakers"`

	// authentication:
	TokenKeys          string        `yaml:"jwt-keys"`
	TokenClockSkew     time.Duration `yaml:"jwt-clock-skew"`
	RevocationStoreURI string        `yaml:"revocation-store-uri"`
	RevocationCacheTTL time.Duration `yaml:"revocation-cache-ttl"`

	// discovery:
	StaticEndpoints      endpointFlags `yaml:"static-endpoints"`
	DiscoveryDomain      string        `yaml:"discovery-domain"`
	DiscoveryServer      string        `yaml:"discovery-server"`
	DiscoveryCacheTTL    time.Duration `yaml:"discovery-cache-ttl"`
	DiscoveryGracePeriod time.Duration `yaml:"discovery-grace-period"`

	// cors:
	CorsAllowedOrigins   *listFlag `yaml:"cors-allowed-origins"`
	CorsAllowedMethods   *listFlag `yaml:"cors-allowed-methods"`
	CorsAllowedHeaders   *listFlag `yaml:"cors-allowed-headers"`
	CorsExposedHeaders   *listFlag `yaml:"cors-exposed-headers"`
	CorsAllowCredentials bool      `yaml:"cors-allow-credentials"`
	CorsMaxAgeSeconds    int       `yaml:"cors-max-age"`

	// upstream client:
	MaxAttempts     int           `yaml:"max-attempts"`
	ConnectTimeout  time.Duration `yaml:"connect-timeout"`
	ResponseTimeout time.Duration `yaml:"response-timeout"`
	TotalTimeout    time.Duration `yaml:"total-timeout"`
	BufferThreshold int64         `yaml:"buffer-threshold"`

	// logging, metrics:
	ApplicationLogOutput string `yaml:"application-log"`
	ApplicationLogPrefix string `yaml:"application-log-prefix"`
	ApplicationLogLevel  string `yaml:"application-log-level"`
	AccessLogOutput      string `yaml:"access-log"`
	AccessLogDisabled    bool   `yaml:"access-log-disabled"`
	AccessLogJSONEnabled bool   `yaml:"access-log-json-enabled"`
	MetricsPrefix        string `yaml:"metrics-prefix"`
	EnableRuntimeMetrics bool   `yaml:"enable-runtime-metrics"`
}

func NewConfig() *Config {
	cfg := new(Config)
	cfg.CorsAllowedOrigins = commaListFlag()
	cfg.CorsAllowedMethods = commaListFlag()
	cfg.CorsAllowedHeaders = commaListFlag()
	cfg.CorsExposedHeaders = commaListFlag()

	flags := flag.NewFlagSet("", flag.ExitOnError)
	flags.StringVar(&cfg.ConfigFile, "config-file", "", "if provided the flags will be loaded/overwritten by the values on the file (yaml)")

	// listeners:
	flags.StringVar(&cfg.Address, "address", gateway.DefaultAddress, "network address that the gateway should listen on")
	flags.StringVar(&cfg.SupportListener, "support-listener", gateway.DefaultSupportListener, "network address used for exposing the /health and /metrics endpoints. An empty value disables the support endpoint")
	flags.DurationVar(&cfg.ShutdownGrace, "shutdown-grace", 0, "maximum time given to in-flight requests on termination")

	// routing:
	flags.Var(&cfg.Routes, "routes", "the route table entries as an inline yaml list, typically set through the config file instead")
	flags.Var(newYamlFlag(&cfg.BreakerDefaults), "breaker-defaults", "default circuit breaker settings as an inline yaml document")
	flags.Var(&cfg.RouteBreakers, "route-breakers", "per route circuit breaker overrides as an inline yaml list, selected by the name field")

	// authentication:
	flags.StringVar(&cfg.TokenKeys, "jwt-keys", "", "token verification keys: a JWKS URL, an inline JWKS document or a shared HMAC secret")
	flags.DurationVar(&cfg.TokenClockSkew, "jwt-clock-skew", 0, "accepted leeway when checking token time claims")
	flags.StringVar(&cfg.RevocationStoreURI, "revocation-store-uri", "", "redis URI of the token revocation store, empty disables the revocation check")
	flags.DurationVar(&cfg.RevocationCacheTTL, "revocation-cache-ttl", 0, "how long revocation lookups are cached")

	// discovery:
	flags.Var(&cfg.StaticEndpoints, "static-endpoints", "fixed service endpoints as service=url|url pairs, comma separated, bypassing DNS discovery")
	flags.StringVar(&cfg.DiscoveryDomain, "discovery-domain", "", "DNS domain queried for SRV records of the upstream services")
	flags.StringVar(&cfg.DiscoveryServer, "discovery-server", "", "DNS server answering the SRV queries as host:port, empty uses the system resolver config")
	flags.DurationVar(&cfg.DiscoveryCacheTTL, "discovery-cache-ttl", 0, "how long resolved instance snapshots are cached")
	flags.DurationVar(&cfg.DiscoveryGracePeriod, "discovery-grace-period", 0, "how long disappeared instances are kept around, marked unhealthy")

	// cors:
	flags.Var(cfg.CorsAllowedOrigins, "cors-allowed-origins", "comma separated list of origins allowed for cross-origin requests, * allows any")
	flags.Var(cfg.CorsAllowedMethods, "cors-allowed-methods", "comma separated list of methods announced on preflight responses")
	flags.Var(cfg.CorsAllowedHeaders, "cors-allowed-headers", "comma separated list of request headers announced on preflight responses")
	flags.Var(cfg.CorsExposedHeaders, "cors-exposed-headers", "comma separated list of response headers exposed to browsers")
	flags.BoolVar(&cfg.CorsAllowCredentials, "cors-allow-credentials", false, "allow credentials on cross-origin requests")
	flags.IntVar(&cfg.CorsMaxAgeSeconds, "cors-max-age", 0, "how long browsers may cache preflight responses, in seconds")

	// upstream client:
	flags.IntVar(&cfg.MaxAttempts, "max-attempts", 0, "total number of tries against the upstream for retryable requests")
	flags.DurationVar(&cfg.ConnectTimeout, "connect-timeout", 0, "maximum time for dialing an upstream instance")
	flags.DurationVar(&cfg.ResponseTimeout, "response-timeout", 0, "maximum time waiting for the upstream response headers on a single attempt")
	flags.DurationVar(&cfg.TotalTimeout, "total-timeout", 0, "end-to-end budget of a request, retries included")
	flags.Int64Var(&cfg.BufferThreshold, "buffer-threshold", 0, "largest request body buffered in memory to stay replayable across retries")

	// logging, metrics:
	flags.StringVar(&cfg.ApplicationLogOutput, "application-log", "", "output file for the application log, empty means stderr")
	flags.StringVar(&cfg.ApplicationLogPrefix, "application-log-prefix", "[APP]", "prefix for the application log entries")
	flags.StringVar(&cfg.ApplicationLogLevel, "application-log-level", "INFO", "log level for the application log, possible values: PANIC, FATAL, ERROR, WARN, INFO, DEBUG")
	flags.StringVar(&cfg.AccessLogOutput, "access-log", "", "output file for the access log, empty means stderr")
	flags.BoolVar(&cfg.AccessLogDisabled, "access-log-disabled", false, "disable the access log")
	flags.BoolVar(&cfg.AccessLogJSONEnabled, "access-log-json-enabled", false, "print the access log entries as JSON")
	flags.StringVar(&cfg.MetricsPrefix, "metrics-prefix", "", "overrides the metric namespace")
	flags.BoolVar(&cfg.EnableRuntimeMetrics, "enable-runtime-metrics", false, "add the Go runtime collectors to /metrics")

	cfg.Flags = flags
	return cfg
}

func (c *Config) Parse() error {
	return c.ParseArgs(os.Args[0], os.Args[1:])
}

func (c *Config) ParseArgs(progname string, args []string) error {
	c.Flags.Init(progname, flag.ExitOnError)
	err := c.Flags.Parse(args)
	if err != nil {
		return err
	}

	// check if arguments were correctly parsed.
	if len(c.Flags.Args()) != 0 {
		return fmt.Errorf("invalid arguments: %s", c.Flags.Args())
	}

	if c.ConfigFile != "" {
		yamlFile, err := os.ReadFile(c.ConfigFile)
		if err != nil {
			return fmt.Errorf("invalid config file: %w", err)
		}

		err = yaml.Unmarshal(yamlFile, c)
		if err != nil {
			return fmt.Errorf("unmarshalling config file error: %w", err)
		}

		// flags take precedence over the file
		err = c.Flags.Parse(args)
		if err != nil {
			return err
		}
	}

	return validate(c)
}

func validate(c *Config) error {
	if _, err := log.ParseLevel(c.ApplicationLogLevel); err != nil {
		return err
	}

	if len(c.Routes) == 0 {
		return fmt.Errorf("no routes configured")
	}

	if len(c.StaticEndpoints.values) == 0 && c.DiscoveryDomain == "" {
		return fmt.Errorf("no discovery source configured, set static-endpoints or discovery-domain")
	}

	if _, err := c.RouteBreakers.toOverrides(); err != nil {
		return err
	}

	return nil
}

func (c *Config) ToOptions() (gateway.Options, error) {
	overrides, err := c.RouteBreakers.toOverrides()
	if err != nil {
		return gateway.Options{}, err
	}

	var breakerDefaults circuit.BreakerSettings
	if c.BreakerDefaults != nil {
		breakerDefaults = *c.BreakerDefaults
	}

	return gateway.Options{
		Address:         c.Address,
		SupportListener: c.SupportListener,
		ShutdownGrace:   c.ShutdownGrace,

		Routes:          c.Routes.toRules(),
		BreakerDefaults: breakerDefaults,
		RouteBreakers:   overrides,

		TokenKeys:          c.TokenKeys,
		TokenClockSkew:     c.TokenClockSkew,
		RevocationStoreURI: c.RevocationStoreURI,
		RevocationCacheTTL: c.RevocationCacheTTL,

		StaticEndpoints:      c.StaticEndpoints.values,
		DiscoveryDomain:      c.DiscoveryDomain,
		DiscoveryServer:      c.DiscoveryServer,
		DiscoveryCacheTTL:    c.DiscoveryCacheTTL,
		DiscoveryGracePeriod: c.DiscoveryGracePeriod,

		CORS: proxy.CORSOptions{
			AllowedOrigins:   c.CorsAllowedOrigins.values,
			AllowedMethods:   c.CorsAllowedMethods.values,
			AllowedHeaders:   c.CorsAllowedHeaders.values,
			ExposedHeaders:   c.CorsExposedHeaders.values,
			AllowCredentials: c.CorsAllowCredentials,
			MaxAgeSeconds:    c.CorsMaxAgeSeconds,
		},

		MaxAttempts:     c.MaxAttempts,
		ConnectTimeout:  c.ConnectTimeout,
		ResponseTimeout: c.ResponseTimeout,
		TotalTimeout:    c.TotalTimeout,
		BufferThreshold: c.BufferThreshold,

		ApplicationLogOutput: c.ApplicationLogOutput,
		ApplicationLogPrefix: c.ApplicationLogPrefix,
		ApplicationLogLevel:  c.ApplicationLogLevel,
		AccessLogOutput:      c.AccessLogOutput,
		AccessLogDisabled:    c.AccessLogDisabled,
		AccessLogJSONEnabled: c.AccessLogJSONEnabled,
		MetricsPrefix:        c.MetricsPrefix,
		EnableRuntimeMetrics: c.EnableRuntimeMetrics,
	}, nil
}
