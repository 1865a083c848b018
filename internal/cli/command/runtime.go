package command

import (
	"iter"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/core/session"
)

// RuntimeCommand returns the runtime subcommand group.
func RuntimeCommand() *cli.Command {
	return &cli.Command{
		Name:    "runtime",
		Aliases: []string{"rt"},
		Usage:   "Inspect runtime state captured in the dump",
		Subcommands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "Show the dump, its runtime and its heap index",
				Action: withEnv(runtimeInfo),
			},
			{
				Name:  "threads",
				Usage: "List threads",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "props",
						Aliases: []string{"p"},
						Usage:   "Decode name, priority and managed id from the thread objects",
					},
				},
				Action: withEnv(runtimeThreads),
			},
			{
				Name:   "roots",
				Usage:  "List GC roots",
				Action: viewAction((*session.Session).Roots),
			},
			{
				Name:   "handles",
				Usage:  "List GC handles",
				Action: viewAction((*session.Session).Handles),
			},
			{
				Name:  "finalizers",
				Usage: "List the finalizer queue",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "by-type",
						Aliases: []string{"t"},
						Usage:   "Group the queue by object type",
					},
				},
				Action: withEnv(runtimeFinalizers),
			},
			{
				Name:   "locks",
				Usage:  "List blocking objects",
				Action: viewAction((*session.Session).BlockingObjects),
			},
			{
				Name:   "regions",
				Usage:  "List runtime memory regions",
				Action: viewAction((*session.Session).Regions),
			},
			{
				Name:   "segments",
				Usage:  "List heap segments",
				Action: viewAction((*session.Session).Segments),
			},
			{
				Name:   "modules",
				Usage:  "List loaded modules",
				Action: viewAction((*session.Session).Modules),
			},
			{
				Name:   "threadpool",
				Usage:  "Show the thread pool summary",
				Action: withEnv(runtimeThreadPool),
			},
		},
	}
}

// collect drains a session view. The first error ends it.
func collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	out := make([]T, 0)
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// viewAction prints every element of a session view.
func viewAction[T any](view func(*session.Session) iter.Seq2[T, error]) cli.ActionFunc {
	return withEnv(func(c *cli.Context, env *Env) error {
		s, err := env.Session(c.Context, c)
		if err != nil {
			return err
		}
		items, err := collect(view(s))
		if err != nil {
			return err
		}
		return env.Print(c, items)
	})
}

type runtimeInfoView struct {
	Dump    string `json:"dump"`
	Session string `json:"session"`
	Runtime string `json:"runtime"`
	Index   string `json:"index"`
	Types   int    `json:"types,omitempty"`
	Objects uint64 `json:"objects,omitempty"`
	Edges   uint64 `json:"edges,omitempty"`
}

func sessionInfo(s *session.Session) runtimeInfoView {
	info := runtimeInfoView{
		Dump:    s.Path(),
		Session: s.ID(),
		Runtime: s.RuntimeVersion().String(),
		Index:   s.CacheStatus().String(),
	}
	if sum, err := s.CacheSummary(); err == nil {
		info.Types, info.Objects, info.Edges = sum.Types, sum.Objects, sum.Edges
	}
	return info
}

func runtimeInfo(c *cli.Context, env *Env) error {
	s, err := env.Session(c.Context, c)
	if err != nil {
		return err
	}
	return env.Print(c, sessionInfo(s))
}

func runtimeThreads(c *cli.Context, env *Env) error {
	if !c.Bool("props") {
		return viewAction((*session.Session).Threads)(c)
	}
	s, err := env.Indexed(c.Context, c)
	if err != nil {
		return err
	}
	props, err := s.ThreadProperties()
	if err != nil {
		return err
	}
	return env.Print(c, props)
}

type finalizerGroupRow struct {
	Type      string           `json:"type_name"`
	Count     int              `json:"count"`
	Addresses []domain.Address `json:"addresses" table:"wide"`
}

func runtimeFinalizers(c *cli.Context, env *Env) error {
	if !c.Bool("by-type") {
		return viewAction((*session.Session).FinalizerQueue)(c)
	}
	s, err := env.Session(c.Context, c)
	if err != nil {
		return err
	}
	groups, err := collect(s.FinalizerQueueByType())
	if err != nil {
		return err
	}
	if !env.tableOutput(c) {
		return env.Print(c, groups)
	}
	rows := make([]finalizerGroupRow, len(groups))
	for i, g := range groups {
		rows[i] = finalizerGroupRow{Type: g.TypeName, Count: len(g.Addresses), Addresses: g.Addresses}
	}
	return env.Print(c, rows)
}

func runtimeThreadPool(c *cli.Context, env *Env) error {
	s, err := env.Session(c.Context, c)
	if err != nil {
		return err
	}
	pool, err := s.ThreadPool()
	if err != nil {
		return err
	}
	return env.Print(c, pool)
}
