// Package tlsroots builds the TLS client configuration used to reach the
// trace collector.
//
//   - roots.go: system roots plus an optional CA bundle
//   - watcher.go: client certificate reload on file change
package tlsroots
