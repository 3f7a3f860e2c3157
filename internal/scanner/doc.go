// Package scanner walks the library roots, probes media files, and keeps
// the catalog in sync: new and changed files are probed and upserted,
// unchanged files are skipped in incremental mode, and files that vanished
// from disk are marked missing or pruned.
package scanner
