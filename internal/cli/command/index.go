package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/core/session"
	"github.com/yndnr/memscope-go/internal/storage/heapindex"
)

// IndexCommand returns the index subcommand group.
func IndexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Manage the heap index of the dump",
		Subcommands: []*cli.Command{
			{
				Name:        "build",
				Usage:       "Build the heap index (Ctrl-C cancels)",
				ArgsUsage:   "[DUMP...]",
				Description: "Indexes the --dump dump, or every DUMP given. Dumps are opened in parallel.",
				Action:      withEnv(indexBuild),
			},
			{
				Name:   "status",
				Usage:  "Show the heap index state",
				Action: withEnv(indexStatus),
			},
			{
				Name:   "drop",
				Usage:  "Release the heap index and delete its persisted copy",
				Action: withEnv(indexDrop),
			},
		},
	}
}

func indexBuild(c *cli.Context, env *Env) error {
	sessions, err := indexTargets(c, env)
	if err != nil {
		return err
	}
	if len(sessions) == 1 {
		return buildOne(c, env, sessions[0], false)
	}
	for _, s := range sessions {
		if err := buildOne(c, env, s, true); err != nil {
			return fmt.Errorf("%s: %w", s.Path(), err)
		}
	}
	return nil
}

// indexTargets returns the sessions named on the command line, or the
// --dump session when there are none.
func indexTargets(c *cli.Context, env *Env) ([]*session.Session, error) {
	paths := c.Args().Slice()
	for _, p := range paths {
		if strings.HasPrefix(p, "-") {
			return nil, domain.ErrInvalidArgument.WithDetailsf("%s: flags must precede arguments", p)
		}
	}
	if len(paths) == 0 {
		s, err := env.Session(c.Context, c)
		if err != nil {
			return nil, err
		}
		return []*session.Session{s}, nil
	}
	return env.Sessions(c.Context, paths)
}

func buildOne(c *cli.Context, env *Env, s *session.Session, named bool) error {
	prefix := ""
	if named {
		prefix = s.Path() + ": "
	}
	if s.CacheStatus() == heapindex.StatusReady {
		env.Printf("%sHeap index of %s is already built.\n", prefix, s.Path())
		return nil
	}

	start := time.Now()
	if err := env.BuildIndex(c.Context, s); err != nil {
		return err
	}
	sum, err := s.CacheSummary()
	if err != nil {
		return err
	}
	env.Printf("%sIndexed %d objects, %d references in %d types (%s).\n",
		prefix, sum.Objects, sum.Edges, sum.Types, time.Since(start).Round(time.Millisecond))
	return nil
}

func indexStatus(c *cli.Context, env *Env) error {
	s, err := env.Session(c.Context, c)
	if err != nil {
		return err
	}
	return env.Print(c, sessionInfo(s))
}

func indexDrop(c *cli.Context, env *Env) error {
	s, err := env.Session(c.Context, c)
	if err != nil {
		return err
	}
	if err := env.Release(s, true); err != nil {
		return err
	}
	env.Printf("Dropped heap index of %s.\n", s.Path())
	return nil
}
