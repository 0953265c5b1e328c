package config

import (
	"fmt"

	"gopkg.in/yaml.v2"

	"github.com/modacart/gateway/routing"
)

// routeConfig is the yaml shape of one route table entry.
type routeConfig struct {
	ID                 string   `yaml:"id"`
	PathPrefix         string   `yaml:"path-prefix"`
	Methods            []string `yaml:"methods"`
	RewriteMatch       string   `yaml:"rewrite-match"`
	RewriteReplacement string   `yaml:"rewrite-replacement"`
	Upstream           string   `yaml:"upstream"`
	BreakerName        string   `yaml:"breaker-name"`
	FallbackURI        string   `yaml:"fallback-uri"`
	RequireAuth        bool     `yaml:"require-auth"`
	AllowedRoles       []string `yaml:"allowed-roles"`
	IdempotentSafe     bool     `yaml:"idempotent-safe"`
}

func (rc routeConfig) toRule() *routing.Rule {
	return &routing.Rule{
		ID:                 rc.ID,
		PathPrefix:         rc.PathPrefix,
		Methods:            rc.Methods,
		RewriteMatch:       rc.RewriteMatch,
		RewriteReplacement: rc.RewriteReplacement,
		Upstream:           rc.Upstream,
		BreakerName:        rc.BreakerName,
		FallbackURI:        rc.FallbackURI,
		RequireAuth:        rc.RequireAuth,
		AllowedRoles:       rc.AllowedRoles,
		IdempotentSafe:     rc.IdempotentSafe,
	}
}

// routeFlags hold the route table entries, set either as an inline
// yaml document on the command line or from the config file.
type routeFlags []routeConfig

func (r routeFlags) String() string {
	b, err := yaml.Marshal(r)
	if err != nil {
		return ""
	}

	return string(b)
}

func (r *routeFlags) Set(value string) error {
	var routes routeFlags
	if err := yaml.Unmarshal([]byte(value), &routes); err != nil {
		return fmt.Errorf("failed to parse routes: %w", err)
	}

	*r = routes
	return nil
}

func (r *routeFlags) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var routes []routeConfig
	if err := unmarshal(&routes); err != nil {
		return err
	}

	*r = routes
	return nil
}

func (r routeFlags) toRules() []*routing.Rule {
	rules := make([]*routing.Rule, 0, len(r))
	for _, rc := range r {
		rules = append(rules, rc.toRule())
	}

	return rules
}
