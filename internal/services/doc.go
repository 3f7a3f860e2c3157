// Package services defines shared utilities consumed by the workflow phases
// and executors.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, phase names, and file paths for
//     logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent retry classes (permanent vs transient vs fatal).
//
// Use these helpers when wiring new phase logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
