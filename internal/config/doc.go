// Package config loads, validates, and normalizes the orchestrator's TOML
// configuration.
//
// The default data directory is ~/.vpo; the catalog database, plugin
// directory, capability cache, and logs all live under it unless overridden.
// Load returns a fully normalized config: every path field is absolute and
// tilde-expanded, and all defaults are applied before validation runs.
//
// Reload support lives here too: Diff classifies changed fields into
// hot-reloadable and restart-required sets so the daemon can apply what it
// safely can on SIGHUP.
package config
