// Package logger provides structured logging for memscope on top of
// log/slog.
//
// Every logger shares one level, which the shell adjusts when the
// configuration file changes. Attributes that look like credentials are
// redacted before they reach the handler. L tags a context's logger with
// its session id and trace id.
//
// Library packages (worker, heap index, storage) take a *slog.Logger; the
// CLI works with Logger and hands Slog(l) down.
package logger
