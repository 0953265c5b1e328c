/*
Package gateway provides an HTTP edge gateway for a service based
e-commerce platform: it terminates client traffic, matches requests
against a route table, authenticates them, and forwards them to the
upstream services with client-side load balancing, retries and circuit
breaking.

The gateway is started with the Run function, taking the Options that
wire the route table, the token verification keys, the discovery
source and the listener addresses together:

	gateway.Run(gateway.Options{
		Address: ":9090",
		Routes: []*routing.Rule{{
			ID:         "products",
			PathPrefix: "/api/products",
			Upstream:   "catalog",
		}},
		StaticEndpoints: map[string][]string{
			"catalog": {"http://10.0.0.1:8080"},
		},
	})

The gateway binary in cmd/gateway reads the same options from command
line flags and an optional yaml configuration file.

Every request is tagged with a correlation id, echoed on the response
and propagated to the upstream, and every error originated inside the
gateway is answered with a stable JSON envelope. The subdirectories
contain the individual building blocks: routing holds the route table,
auth the token validation, discovery the instance resolution, circuit
the breakers and proxy the forwarding pipeline tying them together.
*/
package gateway
