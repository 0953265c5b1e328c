package routing

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule is one entry of the route table. Rules are immutable once the
// containing table was built, concurrent reads are safe.
type Rule struct {
	// ID identifies the rule in logs, metrics and breaker state.
	ID string

	// PathPrefix is matched against the inbound request path. The
	// prefix matches on path segment boundaries only.
	PathPrefix string

	// Methods restricts the rule to the listed HTTP methods. An
	// empty list matches any method.
	Methods []string

	// RewriteMatch and RewriteReplacement define the regex rewrite
	// applied to the matched path before proxying. When
	// RewriteMatch is empty, the path is forwarded unchanged.
	RewriteMatch       string
	RewriteReplacement string

	// Upstream is the logical name of the target service, resolved
	// through the discovery registry.
	Upstream string

	// BreakerName selects the circuit breaker guarding this rule.
	// Defaults to the rule ID.
	BreakerName string

	// FallbackURI, when set, turns the degraded response into a
	// redirect instead of the canned JSON payload.
	FallbackURI string

	// RequireAuth marks the rule as protected: requests must carry
	// a valid bearer token.
	RequireAuth bool

	// AllowedRoles, when non-empty, requires the token to carry at
	// least one of the listed roles.
	AllowedRoles []string

	// IdempotentSafe marks non-idempotent methods on this rule as
	// safe to retry on another instance.
	IdempotentSafe bool

	rewrite *regexp.Regexp
	methods map[string]struct{}
}

func (r *Rule) init() error {
	if r.ID == "" {
		return fmt.Errorf("route rule without id")
	}

	if !strings.HasPrefix(r.PathPrefix, "/") {
		return fmt.Errorf("rule %s: path prefix must start with /", r.ID)
	}

	if r.Upstream == "" {
		return fmt.Errorf("rule %s: missing upstream service name", r.ID)
	}

	if r.BreakerName == "" {
		r.BreakerName = r.ID
	}

	if len(r.Methods) > 0 {
		r.methods = make(map[string]struct{}, len(r.Methods))
		for _, m := range r.Methods {
			r.methods[strings.ToUpper(m)] = struct{}{}
		}
	}

	if r.RewriteMatch == "" {
		return nil
	}

	rx, err := regexp.Compile(r.RewriteMatch)
	if err != nil {
		return fmt.Errorf("rule %s: invalid rewrite expression: %w", r.ID, err)
	}

	r.rewrite = rx
	return nil
}

func (r *Rule) matchMethod(method string) bool {
	if len(r.methods) == 0 {
		return true
	}

	_, ok := r.methods[method]
	return ok
}

func (r *Rule) matchPath(path string) bool {
	if !strings.HasPrefix(path, r.PathPrefix) {
		return false
	}

	if len(path) == len(r.PathPrefix) {
		return true
	}

	// segment boundary
	return strings.HasSuffix(r.PathPrefix, "/") || path[len(r.PathPrefix)] == '/'
}

// Rewrite applies the rule's rewrite pair to the request path. The
// query string is not part of the input. An empty result indicates a
// broken rewrite configuration and is returned as an error.
func (r *Rule) Rewrite(path string) (string, error) {
	if r.rewrite == nil {
		return path, nil
	}

	out := r.rewrite.ReplaceAllString(path, r.RewriteReplacement)
	if out == "" {
		return "", fmt.Errorf("rule %s: rewrite of %q yields an empty upstream path", r.ID, path)
	}

	return out, nil
}
