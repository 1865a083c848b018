package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memscope-go/internal/cli/output"
	"github.com/yndnr/memscope-go/internal/config"
	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/core/session"
	"github.com/yndnr/memscope-go/internal/dac"
	"github.com/yndnr/memscope-go/internal/infra/shutdown"
	"github.com/yndnr/memscope-go/internal/infra/tlsroots"
	"github.com/yndnr/memscope-go/internal/storage/heapindex"
	"github.com/yndnr/memscope-go/internal/telemetry/logger"
	"github.com/yndnr/memscope-go/internal/telemetry/metric"
	"github.com/yndnr/memscope-go/internal/telemetry/tracer"
)

const (
	envKey          = "env"
	shutdownTimeout = 10 * time.Second
)

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Dump    string
	Output  string // table, json, yaml
	Wide    bool
	Verbose bool
}

// Env is the state shared by every command of one process: the loaded
// configuration, telemetry, and the sessions opened so far.
type Env struct {
	Config     *config.Config
	ConfigPath string
	Logger     logger.Logger
	Metrics    *metric.Registry
	Tracer     *tracer.Provider
	Manager    *session.Manager
	Shutdown   *shutdown.Handler

	Stdout io.Writer
	Stderr io.Writer

	// Flags holds the global flags the process was started with. Shell
	// lines only carry the flags typed on them.
	Flags GlobalFlags

	mu       sync.Mutex
	sessions map[string]string // absolute dump path -> session id

	progress      atomic.Pointer[output.ProgressBar]
	progressShown atomic.Bool
}

// NewEnv initializes logging, tracing, metrics and the session manager
// from cfg. Close releases all of it.
func NewEnv(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) (*Env, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)

	var traceOpts []tracer.Option
	certs := tlsroots.ClientOptions{
		CAFile:   cfg.Telemetry.OTelCAFile,
		CertFile: cfg.Telemetry.OTelCertFile,
		KeyFile:  cfg.Telemetry.OTelKeyFile,
		Logger:   logger.Slog(log),
	}
	var certWatcher *tlsroots.Watcher
	if cfg.Telemetry.OTelEndpoint != "" && !certs.IsZero() {
		tlsCfg, w, err := tlsroots.ClientConfig(certs)
		if err != nil {
			return nil, fmt.Errorf("init tracer tls: %w", err)
		}
		traceOpts = append(traceOpts, tracer.WithTLSConfig(tlsCfg))
		certWatcher = w
	}

	tp, err := tracer.New(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTelEndpoint, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	e := &Env{
		Config:   cfg,
		Logger:   log,
		Metrics:  metric.NewRegistry(),
		Tracer:   tp,
		Shutdown: shutdown.NewHandler(shutdownTimeout),
		Stdout:   stdout,
		Stderr:   stderr,
		Flags:    GlobalFlags{Output: string(output.FormatTable)},
		sessions: make(map[string]string),
	}
	e.Manager = session.NewManager(e.sessionOptions())
	e.Metrics.Prometheus().MustRegister(e.Manager.Collector())

	e.Shutdown.OnShutdown("tracer", tp.Shutdown)
	if certWatcher != nil {
		certWatcher.StartAsync()
		e.Shutdown.OnShutdown("collector certificate watcher", func(context.Context) error {
			certWatcher.Stop()
			return nil
		})
	}
	e.Shutdown.OnShutdown("sessions", func(context.Context) error { return e.Manager.CloseAll() })

	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		if err := e.serveMetrics(addr); err != nil {
			return nil, errors.Join(err, e.Close())
		}
	}

	log.Debug("configuration loaded", "config", config.Sanitize(cfg))
	return e, nil
}

func (e *Env) sessionOptions() session.Options {
	cfg := e.Config
	opts := session.Options{
		ThreadType:       cfg.Runtime.ThreadType,
		CheckInterval:    cfg.Index.CheckInterval,
		ProgressInterval: cfg.Index.ProgressInterval,
		Progress:         e.reportProgress,
		Logger:           logger.Slog(e.Logger),
		Metrics:          e.Metrics,
	}
	if cfg.Index.Persist {
		opts.CacheDir = cfg.Index.CacheDir
	}
	if cfg.Runtime.Component != "" {
		opts.Locator = dac.RegistryLocator{Force: cfg.Runtime.Component}
	}
	return opts
}

func (e *Env) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Error("metrics server stopped", "error", err)
		}
	}()
	e.Shutdown.OnShutdown("metrics server", srv.Shutdown)

	e.Logger.Info("serving metrics", "addr", ln.Addr().String())
	return nil
}

// Close disposes every open session and stops telemetry.
func (e *Env) Close() error {
	return e.Shutdown.Shutdown()
}

// GetEnv retrieves the environment installed by the root command.
func GetEnv(c *cli.Context) *Env {
	if env, ok := c.App.Metadata[envKey].(*Env); ok {
		return env
	}
	return nil
}

// withEnv adapts an action that needs the environment.
func withEnv(fn func(*cli.Context, *Env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		env := GetEnv(c)
		if env == nil {
			return errors.New("command environment not initialized")
		}
		c.Context = logger.WithLogger(c.Context, env.Logger)
		return fn(c, env)
	}
}

// ParseGlobalFlags returns the process flags overridden by the flags set
// on this command line.
func (e *Env) ParseGlobalFlags(c *cli.Context) GlobalFlags {
	f := e.Flags
	if c.IsSet("dump") {
		f.Dump = c.String("dump")
	}
	if c.IsSet("output") {
		f.Output = c.String("output")
	}
	if c.IsSet("wide") {
		f.Wide = c.Bool("wide")
	}
	if c.IsSet("verbose") {
		f.Verbose = c.Bool("verbose")
	}
	return f
}

// Print writes data in the selected output format.
func (e *Env) Print(c *cli.Context, data any) error {
	flags := e.ParseGlobalFlags(c)
	format, err := output.ParseFormat(flags.Output)
	if err != nil {
		return domain.ErrInvalidArgument.WithCause(err)
	}
	return output.NewFormatter(format, flags.Wide).Format(e.Stdout, data)
}

func (e *Env) tableOutput(c *cli.Context) bool {
	f, err := output.ParseFormat(e.ParseGlobalFlags(c).Output)
	return err == nil && f == output.FormatTable
}

// Printf writes a status line to stdout.
func (e *Env) Printf(format string, args ...any) {
	fmt.Fprintf(e.Stdout, format, args...)
}

// ============================================================================
// Sessions
// ============================================================================

// Session returns the session of the selected dump, opening it on first
// use.
func (e *Env) Session(ctx context.Context, c *cli.Context) (*session.Session, error) {
	path := e.ParseGlobalFlags(c).Dump
	if path == "" {
		return nil, domain.ErrInvalidArgument.WithDetails("no dump selected; use --dump or MEMSCOPE_DUMP")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, domain.ErrInvalidArgument.WithDetails(path).WithCause(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if id, ok := e.sessions[abs]; ok {
		if s, err := e.Manager.Get(id); err == nil && !s.Closed() {
			return s, nil
		}
		delete(e.sessions, abs)
	}

	done := e.startSpinner("Opening " + filepath.Base(abs))
	s, err := e.Manager.Open(ctx, abs)
	done(err)
	if err != nil {
		return nil, err
	}
	e.sessions[abs] = s.ID()
	logger.L(logger.WithSessionID(ctx, s.ID())).Debug("dump opened", "path", abs)
	return s, nil
}

// Sessions returns a session per path, opening the ones not open yet in
// parallel. Sessions come back in path order.
func (e *Env) Sessions(ctx context.Context, paths []string) ([]*session.Session, error) {
	abs := make([]string, len(paths))
	for i, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return nil, domain.ErrInvalidArgument.WithDetails(p).WithCause(err)
		}
		abs[i] = a
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*session.Session, len(abs))
	var missing []string
	for i, a := range abs {
		if id, ok := e.sessions[a]; ok {
			if s, err := e.Manager.Get(id); err == nil && !s.Closed() {
				out[i] = s
				continue
			}
			delete(e.sessions, a)
		}
		if !slices.Contains(missing, a) {
			missing = append(missing, a)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	done := e.startSpinner(fmt.Sprintf("Opening %d dumps", len(missing)))
	opened, err := e.Manager.OpenAll(ctx, missing)
	done(err)
	if err != nil {
		return nil, err
	}
	for i, s := range opened {
		e.sessions[missing[i]] = s.ID()
		logger.L(logger.WithSessionID(ctx, s.ID())).Debug("dump opened", "path", missing[i])
	}
	for i, a := range abs {
		if out[i] == nil {
			out[i] = opened[slices.Index(missing, a)]
		}
	}
	return out, nil
}

// startSpinner animates msg on stderr when it is a terminal. The returned
// func stops it, reporting err.
func (e *Env) startSpinner(msg string) func(err error) {
	f, ok := e.Stderr.(*os.File)
	if !ok {
		return func(error) {}
	}
	if fi, err := f.Stat(); err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		return func(error) {}
	}

	sp := output.NewSpinner(f, msg)
	sp.Start()
	return func(err error) {
		if err != nil {
			sp.Fail(msg)
			return
		}
		sp.Stop()
	}
}

// Indexed returns the session of the selected dump with its heap index
// built.
func (e *Env) Indexed(ctx context.Context, c *cli.Context) (*session.Session, error) {
	s, err := e.Session(ctx, c)
	if err != nil {
		return nil, err
	}
	if s.CacheStatus() != heapindex.StatusReady {
		if err := e.BuildIndex(ctx, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// BuildIndex builds the heap index of s, drawing a progress bar on
// stderr while the heap is walked. An interrupt signal cancels the build
// with domain.ErrBuildCancelled.
func (e *Env) BuildIndex(ctx context.Context, s *session.Session) error {
	ctx, stop := shutdown.WithSignals(ctx)
	defer stop()

	bar := output.NewProgressBar(e.Stderr, "Indexing heap")
	e.progressShown.Store(false)
	e.progress.Store(bar)
	defer e.progress.Store(nil)

	err := s.InitCache(ctx)
	if e.progressShown.Load() {
		if err != nil {
			bar.Abort()
		} else {
			bar.Finish()
		}
	}
	return err
}

func (e *Env) reportProgress(p heapindex.Progress) {
	bar := e.progress.Load()
	if bar == nil {
		return
	}
	e.progressShown.Store(true)
	bar.SetDetail(fmt.Sprintf("segment %d/%d, %d objects", p.Segment, p.Segments, p.Objects))
	bar.Update(int64(p.BytesDone), int64(p.BytesTotal))
}

// Release disposes s and forgets it. With destroy set, the persisted
// heap index of its dump is deleted too.
func (e *Env) Release(s *session.Session, destroy bool) error {
	e.mu.Lock()
	for path, id := range e.sessions {
		if id == s.ID() {
			delete(e.sessions, path)
		}
	}
	e.mu.Unlock()

	err := e.Manager.Close(s.ID())
	if errors.Is(err, domain.ErrSessionNotFound) {
		err = s.Dispose()
	}
	if destroy {
		// Destroy reports the Dispose result again.
		return s.Destroy()
	}
	return err
}
