/*
Package proxy implements the HTTP reverse proxy of the gateway edge.

For every inbound request the proxy assigns a correlation id, answers
CORS preflight directly, matches the route table, enforces the
authentication policy, injects the verified identity headers, passes
the per-rule circuit breaker gate, resolves the upstream service to a
live instance and forwards the request with a bounded retry budget.
Responses stream back to the client, failures are answered with the
platform error envelope or, when a breaker is open, by the per-rule
fallback.
*/
package proxy
