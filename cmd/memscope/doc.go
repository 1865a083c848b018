// Package main provides the entry point for memscope.
//
// memscope inspects managed heap snapshots:
//
//   - Type catalog, per-type statistics and instance lists
//   - Outgoing and incoming object references
//   - Field values decoded from snapshot memory
//   - Threads, roots, handles, finalizer queue, locks and memory regions
//   - Persisted heap indexes and per-dump bookmarks
//
// Usage:
//
//	memscope --dump app.dump.json heap stats --top 20
//	memscope --dump app.dump.json heap refs 0x10000 --referrers
//	memscope --dump app.dump.json -o json runtime threads --props
//	memscope --dump app.dump.json shell
//
// Exit status is 1 on error, 2 on invalid arguments and 130 when an
// index build was interrupted.
package main
