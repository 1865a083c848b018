// Package repl is the interactive shell of memscope.
//
//   - repl.go: Read-eval-print loop and line splitting
//   - completer.go: Command-path suggestions for unknown input
//   - history.go: Command history persistence
//
// The shell keeps one dump open across commands, so the heap index is
// built once and reused. Each line runs under its own signal context:
// Ctrl-C cancels the running command, not the shell.
package repl
