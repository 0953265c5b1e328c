package proxy

import (
	"io"
	"net/http"
	"time"

	"github.com/modacart/gateway/auth"
	"github.com/modacart/gateway/routing"
)

// context holds the state of one in-flight request: the request
// envelope of the access log and the intermediate results of the
// proxying pipeline.
type context struct {
	responseWriter http.ResponseWriter
	request        *http.Request
	bodyCounter    *countingReader

	correlationID string
	startTime     time.Time

	rule     *routing.Rule
	identity *auth.Identity

	attempts        int
	instance        string
	breakerStateIn  string
	breakerStateOut string

	statusCode int
	bytesOut   int64
}

type countingReader struct {
	reader io.ReadCloser
	n      int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) Close() error {
	return c.reader.Close()
}

func newContext(w http.ResponseWriter, r *http.Request, correlationID string, start time.Time) *context {
	ctx := &context{
		responseWriter: w,
		request:        r,
		correlationID:  correlationID,
		startTime:      start,
	}

	if r.Body != nil {
		ctx.bodyCounter = &countingReader{reader: r.Body}
		r.Body = ctx.bodyCounter
	}

	return ctx
}

func (c *context) ruleID() string {
	if c.rule == nil {
		return ""
	}

	return c.rule.ID
}

func (c *context) upstream() string {
	if c.rule == nil {
		return ""
	}

	return c.rule.Upstream
}

func (c *context) bytesIn() int64 {
	if c.bodyCounter == nil {
		return 0
	}

	return c.bodyCounter.n
}
