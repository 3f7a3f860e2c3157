// Package logging centralizes slog construction and the structured field
// vocabulary used across the orchestrator.
//
// Components never build loggers themselves; they receive a *slog.Logger and
// derive scoped loggers via NewComponentLogger and WithContext. Standardized
// field keys keep the daemon's JSON output queryable: component, job_id,
// phase, file, event_type.
//
// The package also owns log retention: plain-text logs past the compression
// age are gzipped in place, and archives past the deletion age are removed.
package logging
