package proxy

import "net/http"

// serveFallback answers a request that was short-circuited by an open
// breaker. Rules may configure a redirect to a degraded endpoint,
// otherwise the canned envelope is served. Either way the response
// carries the correlation id.
func (p *Proxy) serveFallback(c *context) {
	if c.rule != nil && c.rule.FallbackURI != "" {
		h := c.responseWriter.Header()
		p.cors.applyResponseHeaders(h, c.request)
		h.Set("Location", c.rule.FallbackURI)
		c.responseWriter.WriteHeader(http.StatusFound)
		c.statusCode = http.StatusFound
		return
	}

	p.cors.applyResponseHeaders(c.responseWriter.Header(), c.request)

	e := newEnvelope(
		c.request,
		c.correlationID,
		CodeServiceUnavailable,
		"service temporarily degraded, please retry later",
		http.StatusServiceUnavailable,
	)
	c.bytesOut = writeEnvelope(c.responseWriter, e)
	c.statusCode = e.Status
}
