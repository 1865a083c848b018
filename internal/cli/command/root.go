package command

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memscope-go/internal/cli/output"
	"github.com/yndnr/memscope-go/internal/config"
	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/infra/buildinfo"
)

// Exit codes returned by ExitCode.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitUsage       = 2
	ExitInterrupted = 130
)

// App creates the CLI application.
func App() *cli.App {
	return newApp(nil)
}

// newApp builds the command tree. With env set, the app reuses it instead
// of loading configuration and leaves it open after the command; the
// shell runs every line through such an app.
func newApp(env *Env) *cli.App {
	app := &cli.App{
		Name:     "memscope",
		Usage:    "Inspect managed heap snapshots",
		Version:  buildinfo.String(),
		Flags:    globalFlags(),
		Commands: commands(),
		Metadata: map[string]any{},
		Before:   setup,
		After:    teardown,
		Suggest:  true,
		// Errors are returned to main, which picks the exit code.
		ExitErrHandler: func(*cli.Context, error) {},
	}
	if env != nil {
		app.Metadata[envKey] = env
		app.After = nil
		app.HideVersion = true
		app.Writer = env.Stdout
		app.ErrWriter = env.Stderr
	}
	return app
}

func commands() []*cli.Command {
	return []*cli.Command{
		HeapCommand(),
		RuntimeCommand(),
		IndexCommand(),
		BookmarkCommand(),
		DumpCommand(),
		ConfigCommand(),
		ShellCommand(),
		VersionCommand(),
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Configuration file (YAML)",
			EnvVars: []string{"MEMSCOPE_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "dump",
			Aliases: []string{"d"},
			Usage:   "Dump file to inspect",
			EnvVars: []string{"MEMSCOPE_DUMP"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   string(output.FormatTable),
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable debug logging",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "cache-dir",
			Usage: "Directory for persisted heap indexes",
		},
		&cli.BoolFlag{
			Name:  "persist",
			Usage: "Load and save heap indexes under the cache directory",
		},
		&cli.StringFlag{
			Name:  "component",
			Usage: "Force a diagnostic component instead of matching the runtime version",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Serve Prometheus metrics on this address",
		},
		&cli.StringFlag{
			Name:  "otel-endpoint",
			Usage: "OTLP/HTTP trace endpoint",
		},
	}
}

// setup loads the configuration, applies flag overrides and installs the
// environment. It does nothing when an environment is already present.
func setup(c *cli.Context) error {
	if GetEnv(c) != nil {
		return nil
	}

	cfg, err := config.LoadWithOverrides(c.String("config"), flagOverrides(c))
	if errors.Is(err, config.ErrInvalid) {
		return domain.ErrInvalidArgument.WithDetails("configuration").WithCause(err)
	}
	if err != nil {
		return err
	}
	if _, err := output.ParseFormat(c.String("output")); err != nil {
		return domain.ErrInvalidArgument.WithCause(err)
	}

	stdout, stderr := c.App.Writer, c.App.ErrWriter
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	env, err := NewEnv(c.Context, cfg, stdout, stderr)
	if err != nil {
		return err
	}
	env.ConfigPath = c.String("config")
	env.Flags = GlobalFlags{
		Dump:    c.String("dump"),
		Output:  c.String("output"),
		Wide:    c.Bool("wide"),
		Verbose: c.Bool("verbose"),
	}
	c.App.Metadata[envKey] = env
	return nil
}

// flagOverrides maps the configuration flags set on the command line to
// their configuration keys.
func flagOverrides(c *cli.Context) map[string]any {
	m := make(map[string]any)
	for flag, key := range map[string]string{
		"log-level":     "log.level",
		"cache-dir":     "index.cache_dir",
		"component":     "runtime.component",
		"metrics-addr":  "telemetry.metrics_addr",
		"otel-endpoint": "telemetry.otel_endpoint",
	} {
		if c.IsSet(flag) {
			m[key] = c.String(flag)
		}
	}
	if c.IsSet("persist") {
		m["index.persist"] = c.Bool("persist")
	}
	if c.Bool("verbose") {
		m["log.level"] = "debug"
	}
	return m
}

func teardown(c *cli.Context) error {
	env := GetEnv(c)
	if env == nil {
		return nil
	}
	return env.Close()
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	var exitErr cli.ExitCoder
	switch {
	case err == nil:
		return ExitOK
	case domain.IsCancelled(err):
		return ExitInterrupted
	case errors.Is(err, domain.ErrInvalidArgument):
		return ExitUsage
	case errors.As(err, &exitErr):
		return exitErr.ExitCode()
	}
	return ExitError
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
