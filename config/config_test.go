package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modacart/gateway/circuit"
)

const testConfig = `
address: ":8080"
support-listener: ":8081"

routes:
  - id: products
    path-prefix: /api/products
    rewrite-match: ^/api
    rewrite-replacement: ""
    upstream: catalog
  - id: orders
    path-prefix: /api/orders
    upstream: orders
    require-auth: true
    allowed-roles: [customer, admin]
    fallback-uri: https://status.example.org/degraded

breaker-defaults:
  window-size: 40
  min-requests: 20

route-breakers:
  - name: orders
    failure-ratio: 0.25
    cooldown: 10s

jwt-keys: secret
jwt-clock-skew: 10s
revocation-store-uri: redis://localhost:6379/0

static-endpoints:
  catalog:
    - http://10.0.0.1:8080
    - http://10.0.0.2:8080
  orders:
    - http://10.0.1.1:8081

cors-allowed-origins: ["https://shop.example.org"]
cors-allowed-methods: [GET, POST]
cors-max-age: 600

total-timeout: 45s
application-log-level: DEBUG
access-log-json-enabled: true
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseConfigFile(t *testing.T) {
	cfg := NewConfig()
	err := cfg.ParseArgs("gateway", []string{"-config-file", writeConfigFile(t, testConfig)})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, ":8081", cfg.SupportListener)
	require.Len(t, cfg.Routes, 2)
	assert.Equal(t, "products", cfg.Routes[0].ID)
	assert.Equal(t, []string{"customer", "admin"}, cfg.Routes[1].AllowedRoles)
	assert.True(t, cfg.Routes[1].RequireAuth)

	require.NotNil(t, cfg.BreakerDefaults)
	assert.Equal(t, 40, cfg.BreakerDefaults.Window)
	assert.Equal(t, 20, cfg.BreakerDefaults.MinRequests)

	assert.Equal(t, 45*time.Second, cfg.TotalTimeout)
	assert.Equal(t, "DEBUG", cfg.ApplicationLogLevel)
	assert.True(t, cfg.AccessLogJSONEnabled)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	cfg := NewConfig()
	err := cfg.ParseArgs("gateway", []string{
		"-config-file", writeConfigFile(t, testConfig),
		"-address", ":7070",
		"-jwt-clock-skew", "1m",
	})
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Address)
	assert.Equal(t, time.Minute, cfg.TokenClockSkew)
	assert.Equal(t, ":8081", cfg.SupportListener, "file value lost on flag overlay")
}

func TestParseFlagsOnly(t *testing.T) {
	cfg := NewConfig()
	err := cfg.ParseArgs("gateway", []string{
		"-routes", "[{id: products, path-prefix: /api/products, upstream: catalog}]",
		"-static-endpoints", "catalog=http://10.0.0.1:8080|http://10.0.0.2:8080",
		"-cors-allowed-origins", "https://shop.example.org,https://admin.example.org",
	})
	require.NoError(t, err)

	require.Len(t, cfg.Routes, 1)
	assert.Equal(t, "catalog", cfg.Routes[0].Upstream)
	assert.Equal(t, []string{"http://10.0.0.1:8080", "http://10.0.0.2:8080"}, cfg.StaticEndpoints.values["catalog"])
	assert.Equal(t, []string{"https://shop.example.org", "https://admin.example.org"}, cfg.CorsAllowedOrigins.values)
}

func TestValidation(t *testing.T) {
	for _, tc := range []struct {
		name string
		args []string
	}{
		{
			name: "no routes",
			args: []string{"-static-endpoints", "catalog=http://10.0.0.1:8080"},
		},
		{
			name: "no discovery source",
			args: []string{"-routes", "[{id: products, path-prefix: /api/products, upstream: catalog}]"},
		},
		{
			name: "invalid log level",
			args: []string{
				"-routes", "[{id: products, path-prefix: /api/products, upstream: catalog}]",
				"-static-endpoints", "catalog=http://10.0.0.1:8080",
				"-application-log-level", "CHATTY",
			},
		},
		{
			name: "breaker override without route id",
			args: []string{
				"-routes", "[{id: products, path-prefix: /api/products, upstream: catalog}]",
				"-static-endpoints", "catalog=http://10.0.0.1:8080",
				"-route-breakers", "[{cooldown: 10s}]",
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewConfig()
			assert.Error(t, cfg.ParseArgs("gateway", tc.args))
		})
	}
}

func TestToOptions(t *testing.T) {
	cfg := NewConfig()
	err := cfg.ParseArgs("gateway", []string{"-config-file", writeConfigFile(t, testConfig)})
	require.NoError(t, err)

	o, err := cfg.ToOptions()
	require.NoError(t, err)

	assert.Equal(t, ":8080", o.Address)
	require.Len(t, o.Routes, 2)
	assert.Equal(t, "orders", o.Routes[1].ID)
	assert.Equal(t, "https://status.example.org/degraded", o.Routes[1].FallbackURI)

	assert.Equal(t, 40, o.BreakerDefaults.Window)
	require.Contains(t, o.RouteBreakers, "orders")
	assert.Equal(t, circuit.BreakerSettings{
		Name:         "orders",
		FailureRatio: 0.25,
		Cooldown:     10 * time.Second,
	}, o.RouteBreakers["orders"])

	assert.Equal(t, []string{"https://shop.example.org"}, o.CORS.AllowedOrigins)
	assert.Equal(t, 600, o.CORS.MaxAgeSeconds)
	assert.Equal(t, "secret", o.TokenKeys)
	assert.Equal(t, 10*time.Second, o.TokenClockSkew)
	assert.Equal(t, []string{"http://10.0.1.1:8081"}, o.StaticEndpoints["orders"])
}
