// Package transcribe defines the language detection plugin contract and the
// multi-sample aggregator that turns several short audio probes into a single
// language verdict with a confidence score.
package transcribe
