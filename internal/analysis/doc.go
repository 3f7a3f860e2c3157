// Package analysis runs per-track language analysis over the transcription
// detector and persists the verdicts in the catalog. Results are cached by
// (track id, file hash) so re-running a policy against an unchanged file
// never re-extracts audio.
package analysis
