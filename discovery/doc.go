/*
Package discovery maps logical service names to live upstream
instances.

The external registry is abstracted behind the Registry interface with
pluggable implementations: a static table and DNS SRV lookups. The
Resolver caches registry snapshots in-process with a TTL, deduplicates
concurrent refreshes and keeps lost instances around, unhealthy, for a
grace period before dropping them.
*/
package discovery
