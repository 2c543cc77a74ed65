/*
Package metrics provides Prometheus metrics and health endpoints.

All metrics are registered against the default registry at package init
and exposed through Handler (promhttp). The Collector refreshes entity
gauges (components by status, sessions by status, catalog sizes) from
the store every 15 seconds using the same bounded scans the rest of the
service uses, so a large fleet never makes the collector load the whole
keyspace.

The health checker tracks per-component health flags and serves
liveness, readiness, and aggregate health handlers; "store" and "api"
are the critical components for readiness.
*/
package metrics
