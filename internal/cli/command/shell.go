package command

import (
	"context"
	"errors"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memscope-go/internal/cli/repl"
	"github.com/yndnr/memscope-go/internal/config"
	"github.com/yndnr/memscope-go/internal/infra/buildinfo"
	"github.com/yndnr/memscope-go/internal/infra/confloader"
	"github.com/yndnr/memscope-go/internal/telemetry/logger"
)

// ShellCommand returns the interactive shell command.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Run commands interactively against one open dump",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "history",
				Usage: "History file (default ~/.memscope/history)",
			},
		},
		Action: withEnv(runShell),
	}
}

func runShell(c *cli.Context, env *Env) error {
	history := repl.NewHistory(c.String("history"))
	if err := history.Load(); err != nil {
		env.Logger.Warn("failed to load history", "error", err)
	}
	defer func() {
		if err := history.Save(); err != nil {
			env.Logger.Warn("failed to save history", "error", err)
		}
	}()

	if env.ConfigPath != "" {
		stop, err := env.watchConfig()
		if err != nil {
			env.Logger.Warn("configuration watcher disabled", "error", err)
		} else {
			defer stop()
		}
	}

	// Fail early on a bad dump rather than on the first command.
	if env.Flags.Dump != "" {
		if _, err := env.Session(c.Context, c); err != nil {
			return err
		}
	}

	env.Printf("memscope %s. Type \"help\" for commands, \"exit\" to leave.\n", buildinfo.Get().Version)

	r := repl.New(env.execLine,
		repl.WithIO(c.App.Reader, env.Stdout),
		repl.WithHistory(history),
		repl.WithCompleter(repl.NewCompleter(commandPaths(commands(), ""))),
	)
	return r.Run(c.Context)
}

// execLine runs one shell line through a fresh command tree that shares
// env.
func (e *Env) execLine(ctx context.Context, args []string) error {
	if args[0] == "shell" {
		return errors.New("already in the shell")
	}

	app := newApp(e)
	app.Setup()
	if !strings.HasPrefix(args[0], "-") && app.Command(args[0]) == nil {
		return repl.ErrUnknownCommand
	}
	return app.RunContext(ctx, append([]string{app.Name}, args...))
}

// commandPaths lists every command as its space-separated path, e.g.
// "heap stats".
func commandPaths(cmds []*cli.Command, prefix string) []string {
	var paths []string
	for _, cmd := range cmds {
		if cmd.Hidden || cmd.Name == "shell" {
			continue
		}
		path := strings.TrimSpace(prefix + " " + cmd.Name)
		paths = append(paths, path)
		paths = append(paths, commandPaths(cmd.Subcommands, path)...)
	}
	return paths
}

// watchConfig reloads the log level whenever the configuration file
// changes.
func (e *Env) watchConfig() (func() error, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(logger.Slog(e.Logger)))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(e.ConfigPath); err != nil {
		return nil, errors.Join(err, w.Stop())
	}
	w.OnChange(func(string) { e.reloadConfig() })
	w.StartAsync()
	return w.Stop, nil
}

func (e *Env) reloadConfig() {
	cfg, err := config.Load(e.ConfigPath)
	if err != nil {
		e.Logger.Warn("configuration reload failed", "error", err)
		return
	}
	if e.Flags.Verbose {
		return
	}
	logger.SetLevel(cfg.Log.Level)
	e.Logger.Info("configuration reloaded", "log_level", cfg.Log.Level)
}
