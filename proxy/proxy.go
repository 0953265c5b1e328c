package proxy

import (
	"bytes"
	stdlibcontext "context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/modacart/gateway/auth"
	"github.com/modacart/gateway/circuit"
	"github.com/modacart/gateway/discovery"
	"github.com/modacart/gateway/logging"
	"github.com/modacart/gateway/metrics"
	"github.com/modacart/gateway/routing"
)

const (
	// DefaultMaxAttempts is the total number of tries against the
	// upstream for retryable requests, the first attempt included.
	DefaultMaxAttempts = 3

	// DefaultConnectTimeout limits dialing an upstream instance.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultResponseTimeout limits waiting for the upstream response
	// headers on a single attempt.
	DefaultResponseTimeout = 30 * time.Second

	// DefaultTotalTimeout is the end-to-end budget of a request,
	// retries included.
	DefaultTotalTimeout = 60 * time.Second

	// DefaultBufferThreshold is the largest request body that gets
	// buffered in memory to stay replayable across retries.
	DefaultBufferThreshold = 1 << 20

	proxyBufferSize = 8192
)

// TokenValidator checks the Authorization header of a request and
// returns the authenticated identity.
type TokenValidator interface {
	Validate(ctx stdlibcontext.Context, authorization string) (*auth.Identity, error)
}

// Params contains the wiring and tuning of the proxy instance.
type Params struct {

	// Routing holds the route table used to match incoming requests.
	Routing *routing.Routing

	// Breakers is the registry of per-route circuit breakers. When
	// nil, requests are never short-circuited.
	Breakers *circuit.Registry

	// RouteBreakers contains route-level breaker overrides, keyed by
	// the rule id.
	RouteBreakers map[string]circuit.BreakerSettings

	// Resolver looks up healthy instances of the upstream services.
	Resolver *discovery.Resolver

	// Tokens validates bearer tokens on routes that require
	// authentication.
	Tokens TokenValidator

	// Metrics receives the request, breaker and retry measurements.
	// Optional.
	Metrics *metrics.Metrics

	// CORS configures browser cross-origin handling. The zero value
	// disables it.
	CORS CORSOptions

	// AccessLogDisabled turns off the access log stream for this
	// proxy instance.
	AccessLogDisabled bool

	MaxAttempts     int
	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration
	TotalTimeout    time.Duration
	BufferThreshold int64

	// IdleConnectionsPerHost limits the pooled idle connections per
	// upstream instance.
	IdleConnectionsPerHost int

	// CloseIdleConnsPeriod sets the idle timeout of pooled upstream
	// connections.
	CloseIdleConnsPeriod time.Duration
}

// Proxy instances implement the gateway edge: route matching, the auth
// filter, circuit breaking, discovery-aware load balancing with
// retries, and the error envelope. They implement http.Handler.
type Proxy struct {
	routing       *routing.Routing
	breakers      *circuit.Registry
	routeBreakers map[string]circuit.BreakerSettings
	resolver      *discovery.Resolver
	tokens        TokenValidator
	metrics       *metrics.Metrics
	cors          CORSOptions
	accessLog     bool

	maxAttempts     int
	totalTimeout    time.Duration
	bufferThreshold int64

	roundTripper http.RoundTripper
	transport    *http.Transport
	ids          *ulidGenerator

	mx         sync.Mutex
	lbCounters map[string]*uint64
}

// gatewayDialer wraps the connection dialing so that transport errors
// raised before any HTTP data was written can be recognized as safe to
// retry.
type gatewayDialer struct {
	net.Dialer
}

func (d *gatewayDialer) DialContext(ctx stdlibcontext.Context, network, addr string) (net.Conn, error) {
	con, err := d.Dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, &proxyError{
			code:          CodeServiceUnavailable,
			status:        http.StatusServiceUnavailable,
			message:       "dialing failed",
			err:           err,
			dialingFailed: true,
		}
	}

	return con, nil
}

// WithParams creates a proxy instance. Zero valued tunables fall back
// to the package defaults.
func WithParams(p Params) *Proxy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}

	if p.ConnectTimeout <= 0 {
		p.ConnectTimeout = DefaultConnectTimeout
	}

	if p.ResponseTimeout <= 0 {
		p.ResponseTimeout = DefaultResponseTimeout
	}

	if p.TotalTimeout <= 0 {
		p.TotalTimeout = DefaultTotalTimeout
	}

	if p.BufferThreshold <= 0 {
		p.BufferThreshold = DefaultBufferThreshold
	}

	if p.IdleConnectionsPerHost <= 0 {
		p.IdleConnectionsPerHost = http.DefaultMaxIdleConnsPerHost
	}

	if p.CloseIdleConnsPeriod <= 0 {
		p.CloseIdleConnsPeriod = 20 * time.Second
	}

	tr := &http.Transport{
		DialContext: (&gatewayDialer{net.Dialer{
			Timeout:   p.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}}).DialContext,
		ResponseHeaderTimeout: p.ResponseTimeout,
		TLSHandshakeTimeout:   p.ConnectTimeout,
		IdleConnTimeout:       p.CloseIdleConnsPeriod,
		MaxIdleConnsPerHost:   p.IdleConnectionsPerHost,
		ForceAttemptHTTP2:     true,
	}

	return &Proxy{
		routing:         p.Routing,
		breakers:        p.Breakers,
		routeBreakers:   p.RouteBreakers,
		resolver:        p.Resolver,
		tokens:          p.Tokens,
		metrics:         p.Metrics,
		cors:            p.CORS,
		accessLog:       !p.AccessLogDisabled,
		maxAttempts:     p.MaxAttempts,
		totalTimeout:    p.TotalTimeout,
		bufferThreshold: p.BufferThreshold,
		roundTripper:    tr,
		transport:       tr,
		ids:             newULIDGenerator(),
		lbCounters:      make(map[string]*uint64),
	}
}

// Close releases the pooled upstream connections.
func (p *Proxy) Close() {
	p.transport.CloseIdleConnections()
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c := newContext(w, r, p.correlationID(r), time.Now())
	w.Header().Set(HeaderCorrelationID, c.correlationID)
	defer p.finish(c)

	if p.cors.enabled() && isPreflight(r) {
		p.cors.servePreflight(w, r)
		c.statusCode = http.StatusNoContent
		return
	}

	if p.totalTimeout > 0 {
		ctx, cancel := stdlibcontext.WithTimeout(r.Context(), p.totalTimeout)
		defer cancel()
		c.request = r.WithContext(ctx)
	}

	if err := p.do(c); err != nil {
		p.serveError(c, err)
	}
}

// correlationID echoes a well-formed inbound id and generates a fresh
// ULID otherwise.
func (p *Proxy) correlationID(r *http.Request) string {
	if v := r.Header.Get(HeaderCorrelationID); wellFormedCorrelationID(v) {
		return v
	}

	return p.ids.MustGenerate()
}

func (p *Proxy) finish(c *context) {
	if p.metrics != nil {
		route := c.ruleID()
		if route == "" {
			route = "unknown"
		}

		p.metrics.MeasureServe(route, c.statusCode, c.startTime)
	}

	if !p.accessLog {
		return
	}

	ruleID := c.ruleID()
	if ruleID == "" {
		ruleID = "-"
	}

	logging.LogAccess(&logging.AccessEntry{
		Request:         c.request,
		CorrelationID:   c.correlationID,
		RuleID:          ruleID,
		Upstream:        c.upstream(),
		Instance:        c.instance,
		Attempts:        c.attempts,
		BreakerStateIn:  c.breakerStateIn,
		BreakerStateOut: c.breakerStateOut,
		StatusCode:      c.statusCode,
		BytesIn:         c.bytesIn(),
		BytesOut:        c.bytesOut,
		Duration:        time.Since(c.startTime),
		RequestTime:     c.startTime,
	})
}

func (p *Proxy) do(c *context) error {
	r := c.request

	rule := p.routing.Route(r)
	if rule == nil {
		if p.metrics != nil {
			p.metrics.IncRoutingFailures()
		}

		return errRouteNotFound()
	}

	c.rule = rule

	// inbound identity headers are never trusted
	auth.StripIdentityHeaders(r.Header)

	if rule.RequireAuth {
		if err := p.authenticate(c); err != nil {
			return err
		}
	}

	var (
		breaker *circuit.Breaker
		report  func(bool)
	)

	if p.breakers != nil {
		settings := p.routeBreakers[rule.ID]
		settings.Name = rule.BreakerName
		breaker = p.breakers.Get(settings)
	}

	if breaker != nil {
		c.breakerStateIn = breaker.State()

		done, ok := breaker.Allow()
		if !ok {
			c.breakerStateOut = breaker.State()
			if p.metrics != nil {
				p.metrics.IncBreakerRejected(breaker.Name())
			}

			return errBreakerOpen()
		}

		report = done
	}

	rsp, perr := p.backendRoundTrip(c, report)
	if breaker != nil {
		c.breakerStateOut = breaker.State()
	}

	if perr != nil {
		return perr
	}

	p.serveResponse(c, rsp)
	return nil
}

func (p *Proxy) authenticate(c *context) error {
	if p.tokens == nil {
		return errInternal("authentication is not configured", nil)
	}

	r := c.request

	id, err := p.tokens.Validate(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		var terr *auth.TokenError
		if errors.As(err, &terr) {
			if p.metrics != nil {
				p.metrics.IncAuthFailure(string(terr.Reason))
			}

			return errInvalidToken(terr.Error())
		}

		return errInternal("token validation failed", err)
	}

	if err := auth.Authorize(id, c.rule.AllowedRoles); err != nil {
		if p.metrics != nil {
			p.metrics.IncAuthFailure("forbidden")
		}

		return errUnauthorizedAccess()
	}

	c.identity = id
	return nil
}

// backendRoundTrip resolves the upstream, rewrites the path and runs
// the attempt loop. The breaker outcome is reported through report,
// exactly once, except when the client went away or the failure was a
// gateway misconfiguration.
func (p *Proxy) backendRoundTrip(c *context, report func(bool)) (*http.Response, *proxyError) {
	r := c.request
	rule := c.rule

	fail := func(perr *proxyError) (*http.Response, *proxyError) {
		if report != nil && !perr.cancelled {
			report(false)
		}

		return nil, perr
	}

	instances, err := p.resolver.Resolve(r.Context(), rule.Upstream)
	if err != nil {
		return fail(errServiceUnavailable("no healthy instances of "+rule.Upstream, err))
	}

	backendPath, err := rule.Rewrite(r.URL.Path)
	if err != nil {
		// gateway misconfiguration, not an upstream fault
		return nil, errInternal("invalid route rewrite", err)
	}

	var (
		bodyBuf   []byte
		streaming bool
	)

	if r.Body != nil && r.ContentLength != 0 {
		if r.ContentLength > 0 && r.ContentLength <= p.bufferThreshold {
			bodyBuf, err = io.ReadAll(r.Body)
			if err != nil {
				if r.Context().Err() != nil {
					return nil, errClientCancelled(err)
				}

				return nil, errInternal("failed to read the request body", err)
			}
		} else {
			streaming = true
		}
	}

	maxAttempts := p.maxAttempts
	if streaming || !retryable(r.Method, rule.IdempotentSafe) {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		in := p.nextInstance(rule.Upstream, instances)
		c.attempts = attempt
		c.instance = in.Address()

		if attempt > 1 && p.metrics != nil {
			p.metrics.IncBackendRetry(rule.Upstream)
		}

		var body io.Reader
		if streaming {
			body = r.Body
		} else if bodyBuf != nil {
			body = bytes.NewReader(bodyBuf)
		}

		req, err := p.mapRequest(c, in, backendPath, body, int64(len(bodyBuf)), streaming)
		if err != nil {
			return nil, errInternal("could not map the backend request", err)
		}

		rsp, err := p.roundTripper.RoundTrip(req)
		if err == nil {
			if report != nil {
				report(rsp.StatusCode < http.StatusInternalServerError)
			}

			return rsp, nil
		}

		switch cerr := r.Context().Err(); {
		case errors.Is(cerr, stdlibcontext.DeadlineExceeded):
			return fail(errGatewayTimeout(err))
		case cerr != nil:
			return nil, errClientCancelled(err)
		}

		var perr *proxyError
		if errors.As(err, &perr) && perr.DialError() && attempt < maxAttempts {
			log.Warnf(
				"retrying %s %s against %s, instance %s unreachable: %v",
				r.Method, r.URL.Path, rule.Upstream, in.Address(), err,
			)
			continue
		}

		return fail(errServiceUnavailable("upstream request failed", err))
	}
}

func (p *Proxy) mapRequest(c *context, in discovery.Instance, path string, body io.Reader, bodyLen int64, streaming bool) (*http.Request, error) {
	r := c.request

	u := url.URL{
		Scheme:   in.Scheme,
		Host:     in.Address(),
		Path:     path,
		RawQuery: r.URL.RawQuery,
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, u.String(), body)
	if err != nil {
		return nil, err
	}

	if streaming {
		req.ContentLength = r.ContentLength
	} else {
		req.ContentLength = bodyLen
	}

	h := cloneHeaderExcluding(r.Header, hopHeaders)
	dropConnectionHeaders(h)
	setForwardedHeaders(h, r)
	h.Set(HeaderCorrelationID, c.correlationID)
	req.Header = h

	if c.identity != nil {
		auth.SetIdentityHeaders(req.Header, c.identity)
	}

	req.Host = r.Host
	return req, nil
}

// nextInstance advances the per-service round-robin counter.
func (p *Proxy) nextInstance(service string, instances []discovery.Instance) discovery.Instance {
	if len(instances) == 1 {
		return instances[0]
	}

	p.mx.Lock()
	ctr, ok := p.lbCounters[service]
	if !ok {
		ctr = new(uint64)
		p.lbCounters[service] = ctr
	}
	p.mx.Unlock()

	n := atomic.AddUint64(ctr, 1) - 1
	return instances[n%uint64(len(instances))]
}

// retryable tells if a request may be repeated against another
// instance after a connection-level failure. Requests with
// non-idempotent methods are only retried when the route marks them
// safe.
func retryable(method string, idempotentSafe bool) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace, http.MethodPut, http.MethodDelete:
		return true
	default:
		return idempotentSafe
	}
}

func (p *Proxy) serveResponse(c *context, rsp *http.Response) {
	defer rsp.Body.Close()

	if rsp.StatusCode >= http.StatusBadRequest && !usableErrorBody(rsp) {
		io.Copy(io.Discard, io.LimitReader(rsp.Body, proxyBufferSize))

		p.cors.applyResponseHeaders(c.responseWriter.Header(), c.request)
		e := newEnvelope(
			c.request,
			c.correlationID,
			codeForUpstreamStatus(rsp.StatusCode),
			"upstream service error",
			rsp.StatusCode,
		)
		c.bytesOut = writeEnvelope(c.responseWriter, e)
		c.statusCode = e.Status
		return
	}

	h := c.responseWriter.Header()
	copyHeaderExcluding(h, rsp.Header, hopHeaders)
	dropConnectionHeaders(h)
	h.Set(HeaderCorrelationID, c.correlationID)
	p.cors.applyResponseHeaders(h, c.request)

	c.responseWriter.WriteHeader(rsp.StatusCode)
	c.statusCode = rsp.StatusCode

	n, err := copyStream(c.responseWriter, rsp.Body)
	c.bytesOut = n
	if err != nil {
		log.Errorf("error while copying the response stream: %v", err)
	}
}

// usableErrorBody tells if an upstream error response carries a JSON
// body that can be passed through verbatim. Anything else gets wrapped
// in the gateway envelope.
func usableErrorBody(rsp *http.Response) bool {
	if rsp.ContentLength == 0 {
		return false
	}

	return isJSONContentType(rsp.Header.Get("Content-Type"))
}

func codeForUpstreamStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return CodeInvalidToken
	case status == http.StatusForbidden:
		return CodeUnauthorizedAccess
	case status == http.StatusNotFound:
		return CodeRouteNotFound
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status == http.StatusGatewayTimeout:
		return CodeGatewayTimeout
	case status >= http.StatusInternalServerError:
		return CodeServiceUnavailable
	default:
		return synthesizedCode(status)
	}
}

// synthesizedCode derives an error code from the status text for
// upstream statuses without a gateway code of their own, e.g. CONFLICT
// for 409.
func synthesizedCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return CodeInternalError
	}

	return strings.NewReplacer(" ", "_", "-", "_", "'", "").Replace(strings.ToUpper(text))
}

func (p *Proxy) serveError(c *context, err error) {
	var perr *proxyError
	if !errors.As(err, &perr) {
		perr = errInternal("unexpected gateway failure", err)
	}

	if perr.cancelled {
		// the client is gone, there is nobody to answer
		c.statusCode = perr.status
		return
	}

	if perr.breakerOpen {
		p.serveFallback(c)
		return
	}

	if perr.status >= http.StatusInternalServerError {
		log.Errorf("%s %s: %v", c.request.Method, c.request.URL.Path, perr)
	}

	p.cors.applyResponseHeaders(c.responseWriter.Header(), c.request)
	e := newEnvelope(c.request, c.correlationID, perr.code, perr.message, perr.status)
	c.bytesOut = writeEnvelope(c.responseWriter, e)
	c.statusCode = perr.status
}

func copyStream(to http.ResponseWriter, from io.Reader) (int64, error) {
	flusher, _ := to.(http.Flusher)
	b := make([]byte, proxyBufferSize)

	var total int64
	for {
		l, rerr := from.Read(b)
		if rerr != nil && rerr != io.EOF {
			return total, rerr
		}

		if l > 0 {
			n, werr := to.Write(b[:l])
			total += int64(n)
			if werr != nil {
				return total, werr
			}

			if flusher != nil {
				flusher.Flush()
			}
		}

		if rerr == io.EOF {
			return total, nil
		}
	}
}
