// Package worker runs the job queue: a pool of goroutines claiming queued
// jobs, running them through registered handlers, and writing terminal
// status back to the catalog. Maintenance (stale-claim reclaim, retention
// purge, log rotation) runs on start and on demand from the daemon.
package worker
