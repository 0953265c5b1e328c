package config

import (
	"fmt"
	"sort"
	"strings"
)

// endpointFlags map service names to their fixed endpoint URLs. On the
// command line the format is
// "catalog=http://10.0.0.1:8080|http://10.0.0.2:8080,orders=http://10.0.1.1:8081".
type endpointFlags struct {
	values map[string][]string
}

func (e endpointFlags) String() string {
	var pairs []string
	for service, endpoints := range e.values {
		pairs = append(pairs, fmt.Sprint(service, "=", strings.Join(endpoints, "|")))
	}

	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (e *endpointFlags) Set(value string) error {
	if e == nil {
		return nil
	}

	e.values = make(map[string][]string)

	for _, pair := range strings.Split(value, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return fmt.Errorf("invalid service endpoint pair, expected service=url|url but got: %q", pair)
		}

		service := strings.TrimSpace(kv[0])
		if service == "" {
			return fmt.Errorf("invalid service endpoint pair, empty service name in: %q", pair)
		}

		for _, endpoint := range strings.Split(kv[1], "|") {
			endpoint = strings.TrimSpace(endpoint)
			if endpoint == "" {
				continue
			}

			e.values[service] = append(e.values[service], endpoint)
		}

		if len(e.values[service]) == 0 {
			return fmt.Errorf("invalid service endpoint pair, no endpoints for service: %q", service)
		}
	}

	return nil
}

func (e *endpointFlags) UnmarshalYAML(unmarshal func(interface{}) error) error {
	values := make(map[string][]string)
	if err := unmarshal(&values); err != nil {
		return err
	}

	e.values = values
	return nil
}
