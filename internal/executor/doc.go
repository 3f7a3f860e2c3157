// Package executor applies evaluated plans to media files. Every execution
// runs inside a per-file advisory lock with a disk-space guard and a backup
// taken before any in-place rewrite. Structural changes are written to a
// temporary sibling file and installed with a single rename.
package executor
