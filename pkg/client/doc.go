// Package client is a thin Go client for the v3 HTTP API. It covers the
// read and single-record write paths; bulk mutations and the legacy v2
// surface are intentionally out of scope.
package client
