package proxy

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid"
)

// HeaderCorrelationID carries the per-request correlation id on both
// the inbound and the upstream leg.
const HeaderCorrelationID = "X-Correlation-Id"

type ulidGenerator struct {
	sync.Mutex
	r io.Reader
}

func newULIDGenerator() *ulidGenerator {
	return &ulidGenerator{r: rand.New(rand.NewSource(time.Now().UTC().UnixNano()))}
}

func (g *ulidGenerator) Generate() (string, error) {
	g.Lock()
	id, err := ulid.New(ulid.Now(), g.r)
	g.Unlock()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (g *ulidGenerator) MustGenerate() string {
	id, err := g.Generate()
	if err != nil {
		panic(err)
	}
	return id
}

// wellFormedCorrelationID accepts ULIDs and UUIDs.
func wellFormedCorrelationID(s string) bool {
	if s == "" {
		return false
	}

	if _, err := ulid.Parse(s); err == nil {
		return true
	}

	_, err := uuid.Parse(s)
	return err == nil
}
