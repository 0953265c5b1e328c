package config

import (
	"fmt"

	"gopkg.in/yaml.v2"

	"github.com/modacart/gateway/circuit"
)

// breakerFlags hold per-route breaker overrides, set either as an
// inline yaml document on the command line or from the config file.
// The name field of each entry selects the route id it applies to.
type breakerFlags []circuit.BreakerSettings

func (b breakerFlags) String() string {
	out, err := yaml.Marshal(b)
	if err != nil {
		return ""
	}

	return string(out)
}

func (b *breakerFlags) Set(value string) error {
	var settings breakerFlags
	if err := yaml.Unmarshal([]byte(value), &settings); err != nil {
		return fmt.Errorf("failed to parse breaker settings: %w", err)
	}

	*b = settings
	return nil
}

func (b *breakerFlags) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var settings []circuit.BreakerSettings
	if err := unmarshal(&settings); err != nil {
		return err
	}

	*b = settings
	return nil
}

func (b breakerFlags) toOverrides() (map[string]circuit.BreakerSettings, error) {
	if len(b) == 0 {
		return nil, nil
	}

	overrides := make(map[string]circuit.BreakerSettings, len(b))
	for _, s := range b {
		if s.Name == "" {
			return nil, fmt.Errorf("breaker override without a route id: %s", s)
		}

		if _, ok := overrides[s.Name]; ok {
			return nil, fmt.Errorf("duplicate breaker override for route: %s", s.Name)
		}

		overrides[s.Name] = s
	}

	return overrides, nil
}
