// Package catalog persists the media library and job queue in SQLite.
//
// The catalog is the single source of truth for scanned files, their track
// structure, queued and running jobs, executed operations, and cached
// analysis results. All writes go through retry helpers that absorb
// transient SQLITE_BUSY errors from concurrent workers.
package catalog
