// Package daemon hosts the long-running service: the HTTP API, the worker
// pool, the maintenance loop, and signal handling for reload and graceful
// shutdown. A data-dir lock keeps a second daemon from sharing the catalog.
package daemon
