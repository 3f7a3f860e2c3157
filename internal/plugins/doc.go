// Package plugins hosts the plugin registry and the synchronous event bus.
// Subscribers are failure-isolated: a panicking or erroring plugin is logged
// and the remaining subscribers still run.
package plugins
