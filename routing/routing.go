package routing

import (
	"net/http"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Routing provides concurrent, lock-free read access to the current
// route table and the hook for replacing it atomically.
type Routing struct {
	table atomic.Pointer[Table]
}

// New builds the initial table from the rules and wraps it for
// concurrent access.
func New(rules []*Rule) (*Routing, error) {
	rt := &Routing{}
	if err := rt.Swap(rules); err != nil {
		return nil, err
	}

	return rt, nil
}

// Swap validates the rules and replaces the active table. On error the
// previous table stays in effect.
func (rt *Routing) Swap(rules []*Rule) error {
	t, err := NewTable(rules)
	if err != nil {
		return err
	}

	rt.table.Store(t)
	log.Infof("route table loaded with %d rules", len(rules))
	return nil
}

// Route matches the request against the active table.
func (rt *Routing) Route(req *http.Request) *Rule {
	return rt.table.Load().Match(req.Method, req.URL.Path)
}

// Get returns the current table snapshot.
func (rt *Routing) Get() *Table {
	return rt.table.Load()
}
