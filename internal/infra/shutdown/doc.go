// Package shutdown coordinates process termination for memscope.
//
// A heap index build runs under WithSignals, so an interrupt stops it at
// its next cancellation check. Cleanup (closing sessions, flushing
// traces, stopping the metrics listener) is registered as named hooks and
// runs once:
//
//	h := shutdown.NewHandler(10 * time.Second)
//	h.OnShutdown("sessions", func(context.Context) error { return mgr.CloseAll() })
//	defer h.Shutdown()
package shutdown
