// Package ffprobe wraps the external probe tool and converts its JSON output
// into a typed, sanitized IntrospectionResult.
//
// Tool output is untrusted: all strings pass a UTF-8 replacing filter, tag
// keys are case-folded and size-limited, and numeric fields are validated
// with invalid values nulled out and recorded as warnings rather than errors.
package ffprobe
