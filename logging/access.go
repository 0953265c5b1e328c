package logging

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	dateFormat      = "02/Jan/2006:15:04:05 -0700"
	commonLogFormat = `%s - - [%s] "%s %s %s" %d %d`
	// format:
	// remote_host - - [date] "method uri proto" status bytes-out
	//   bytes-in correlation-id rule upstream instance attempts breaker-in>breaker-out duration-ms
	accessLogFormat = commonLogFormat + " %d %s %s %s %s %d %s>%s %d\n"
)

type accessLogFormatter struct {
	format string
}

// AccessEntry is one access log record, emitted exactly once per
// inbound request.
type AccessEntry struct {

	// The client request.
	Request *http.Request

	// CorrelationID of the request, as echoed to the client.
	CorrelationID string

	// RuleID of the matched route rule, "-" when none matched.
	RuleID string

	// Upstream is the logical service name of the target.
	Upstream string

	// Instance is the upstream endpoint the request was sent to.
	Instance string

	// Attempts made against the upstream, 0 when short-circuited.
	Attempts int

	// Breaker states observed at entry and at exit.
	BreakerStateIn  string
	BreakerStateOut string

	// The status code of the response.
	StatusCode int

	// Bytes received with the request body and sent with the
	// response body.
	BytesIn  int64
	BytesOut int64

	// The time spent processing the request.
	Duration time.Duration

	// The time that the request was received.
	RequestTime time.Time
}

var accessLog *logrus.Logger

// strip port from addresses with hostname, ipv4 or ipv6
func stripPort(address string) string {
	if h, _, err := net.SplitHostPort(address); err == nil {
		return h
	}

	return address
}

// The remote address of the client. When the 'X-Forwarded-For'
// header is set, then it is used instead.
func remoteAddr(r *http.Request) string {
	ff := r.Header.Get("X-Forwarded-For")
	if ff != "" {
		return ff
	}

	return r.RemoteAddr
}

func remoteHost(r *http.Request) string {
	a := remoteAddr(r)
	h := stripPort(a)
	if h != "" {
		return h
	}

	return "-"
}

func (f *accessLogFormatter) Format(e *logrus.Entry) ([]byte, error) {
	keys := []string{
		"host", "timestamp", "method", "uri", "proto", "status",
		"bytes-out", "bytes-in", "correlation-id", "rule", "upstream",
		"instance", "attempts", "breaker-in", "breaker-out", "duration"}

	values := make([]interface{}, len(keys))
	for i, key := range keys {
		values[i] = e.Data[key]
	}

	return []byte(fmt.Sprintf(f.format, values...)), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

// LogAccess logs an access event with the gateway specific fields
// appended to the Apache common log fields.
func LogAccess(entry *AccessEntry) {
	if accessLog == nil || entry == nil {
		return
	}

	host := "-"
	method := ""
	uri := ""
	proto := ""

	if entry.Request != nil {
		host = remoteHost(entry.Request)
		method = entry.Request.Method
		uri = entry.Request.RequestURI
		proto = entry.Request.Proto
	}

	accessLog.WithFields(logrus.Fields{
		"timestamp":      entry.RequestTime.Format(dateFormat),
		"host":           host,
		"method":         method,
		"uri":            uri,
		"proto":          proto,
		"status":         entry.StatusCode,
		"bytes-in":       entry.BytesIn,
		"bytes-out":      entry.BytesOut,
		"correlation-id": orDash(entry.CorrelationID),
		"rule":           orDash(entry.RuleID),
		"upstream":       orDash(entry.Upstream),
		"instance":       orDash(entry.Instance),
		"attempts":       entry.Attempts,
		"breaker-in":     orDash(entry.BreakerStateIn),
		"breaker-out":    orDash(entry.BreakerStateOut),
		"duration":       int64(entry.Duration / time.Millisecond),
	}).Infoln()
}
