package routing

import "fmt"

// Table holds the validated rule set. A table is immutable, updates
// happen by building a new table and swapping it in via Routing.
type Table struct {
	rules []*Rule
}

// NewTable validates and indexes the provided rules, preserving their
// declaration order for tie-breaking.
func NewTable(rules []*Rule) (*Table, error) {
	seenID := make(map[string]struct{}, len(rules))
	seenBreaker := make(map[string]string, len(rules))

	for _, r := range rules {
		if err := r.init(); err != nil {
			return nil, err
		}

		if _, ok := seenID[r.ID]; ok {
			return nil, fmt.Errorf("duplicate route rule id: %s", r.ID)
		}
		seenID[r.ID] = struct{}{}

		if other, ok := seenBreaker[r.BreakerName]; ok {
			return nil, fmt.Errorf("rules %s and %s share breaker %s", other, r.ID, r.BreakerName)
		}
		seenBreaker[r.BreakerName] = r.ID
	}

	return &Table{rules: rules}, nil
}

// Match returns the best matching rule for the method and path, or nil
// when no rule matches. Ties are broken by the longest prefix, then the
// most specific method set, then declaration order.
func (t *Table) Match(method, path string) *Rule {
	var best *Rule
	for _, r := range t.rules {
		if !r.matchMethod(method) || !r.matchPath(path) {
			continue
		}

		if best == nil || moreSpecific(r, best) {
			best = r
		}
	}

	return best
}

// moreSpecific reports whether a should win over the earlier declared b.
func moreSpecific(a, b *Rule) bool {
	if len(a.PathPrefix) != len(b.PathPrefix) {
		return len(a.PathPrefix) > len(b.PathPrefix)
	}

	return methodSpecificity(a) < methodSpecificity(b)
}

// fewer methods is more specific, any-method is least specific
func methodSpecificity(r *Rule) int {
	if len(r.methods) == 0 {
		return int(^uint(0) >> 1)
	}

	return len(r.methods)
}

// Rules returns the rules in declaration order.
func (t *Table) Rules() []*Rule {
	return t.rules
}
