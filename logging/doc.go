/*
Package logging implements application log and access log support for
the gateway. The access log carries one record per proxied request with
the correlation id, the matched rule, the chosen upstream instance and
the breaker states, so that a client report can be tied to the
back-end service logs.
*/
package logging
