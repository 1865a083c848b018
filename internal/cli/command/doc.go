// Package command provides the memscope CLI commands.
//
// This package defines all CLI commands using urfave/cli/v2:
//
//   - root.go: Root command, global flags, environment setup
//   - env.go: Shared state: configuration, session cache, output
//   - heap.go: Type catalog, statistics, instances, references, values
//   - runtime.go: Threads, roots, handles, finalizers, locks, memory
//   - index.go: Heap index build, status, drop
//   - bookmark.go: Per-dump bookmarks
//   - dump.go: Synthetic dump generation
//   - config.go: Effective configuration and validation
//   - shell.go: Interactive shell
//   - version.go: Build information
//
// Commands resolve the dump from --dump (or MEMSCOPE_DUMP), open it
// through the session manager, and print with the --output formatter.
// Commands that query the heap index build it first when needed.
package command
