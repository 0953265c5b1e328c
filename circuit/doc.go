/*
Package circuit implements per-route circuit breakers for the gateway.

Every route rule owns one breaker, identified by the rule's breaker
name. A breaker samples the outcomes of the proxied requests in a
sliding window bounded both by a maximum number of outcomes and by a
maximum age. When the failure ratio in the window reaches the
configured threshold and the window holds enough outcomes, the breaker
opens and requests against the rule are short-circuited to the
fallback. After the cooldown, a limited number of probe requests is let
through, and the breaker closes again when all of them succeed.

The open/half-open lifecycle is delegated to the gobreaker library,
while the sliding window lives outside of it, keeping the trip decision
fully under the control of the window statistics. Half-open probes
whose outcome is never reported, typically because the client
disconnected, are reclaimed after the cooldown so that an abandoned
probe cannot block the half-open state.

Breakers are held in a Registry that applies the configured defaults,
synchronizes access and recycles breakers that have been idle for
longer than the idle TTL.
*/
package circuit
