// Package workflow runs the ordered processing phases for one file:
// analyze, apply, transcode, synthesize, move, timestamp. Each phase is
// gated by its skip_when conditions and conditional rules before the body
// runs, and a per-phase on_error mode decides whether a failure stops the
// file or only that phase.
package workflow
