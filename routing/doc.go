/*
Package routing implements the gateway route table: an immutable set of
route rules matched against the incoming request method and path, with
per-rule path rewriting towards the upstream service.

The table is replaced as a whole on configuration changes, readers
always observe a consistent rule set.
*/
package routing
