package command

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memscope-go/internal/cli/output"
	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/core/session"
)

// HeapCommand returns the heap subcommand group.
func HeapCommand() *cli.Command {
	return &cli.Command{
		Name:  "heap",
		Usage: "Inspect the managed heap",
		Subcommands: []*cli.Command{
			{
				Name:  "types",
				Usage: "List the types the runtime knows",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "filter",
						Aliases: []string{"f"},
						Usage:   "Only types whose name contains this text",
					},
				},
				Action: withEnv(heapTypes),
			},
			{
				Name:      "type",
				Usage:     "Show the field layout of a type",
				ArgsUsage: "TYPE_NAME",
				Action:    withEnv(heapType),
			},
			{
				Name:  "stats",
				Usage: "Show instance counts and sizes per type",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "sort",
						Value: "size",
						Usage: "Sort by size, count or name",
					},
					&cli.IntFlag{
						Name:    "top",
						Aliases: []string{"n"},
						Usage:   "Show only the first N types",
					},
					&cli.BoolFlag{
						Name:  "skip-empty",
						Usage: "Hide types without instances",
					},
				},
				Action: withEnv(heapStats),
			},
			{
				Name:      "instances",
				Aliases:   []string{"inst"},
				Usage:     "List the instances of a type",
				ArgsUsage: "TYPE_NAME",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Stop after N instances",
					},
				},
				Action: withEnv(heapInstances),
			},
			{
				Name:      "refs",
				Usage:     "List the objects an object references",
				ArgsUsage: "ADDRESS",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "referrers",
						Aliases: []string{"r"},
						Usage:   "List the objects referencing it instead",
					},
				},
				Action: withEnv(heapRefs),
			},
			{
				Name:      "value",
				Aliases:   []string{"show"},
				Usage:     "Decode an object",
				ArgsUsage: "ADDRESS",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "field",
						Aliases: []string{"f"},
						Usage:   "Dotted field path to follow (e.g. Next.Label)",
					},
				},
				Action: withEnv(heapValue),
			},
		},
	}
}

type typeRow struct {
	Handle   string      `json:"handle"`
	Name     string      `json:"name"`
	Kind     domain.Kind `json:"kind"`
	BaseSize uint32      `json:"base_size"`
	Fields   int         `json:"fields" table:"wide"`
}

func heapTypes(c *cli.Context, env *Env) error {
	s, err := env.Session(c.Context, c)
	if err != nil {
		return err
	}
	types, err := s.GetTypes()
	if err != nil {
		return err
	}

	if filter := c.String("filter"); filter != "" {
		types = slices.DeleteFunc(types, func(t domain.TypeDescriptor) bool {
			return !strings.Contains(t.Name, filter)
		})
	}
	slices.SortFunc(types, func(a, b domain.TypeDescriptor) int { return strings.Compare(a.Name, b.Name) })

	if !env.tableOutput(c) {
		return env.Print(c, types)
	}
	rows := make([]typeRow, len(types))
	for i, t := range types {
		rows[i] = typeRow{
			Handle:   fmt.Sprintf("%#x", t.Handle),
			Name:     t.Name,
			Kind:     t.Kind,
			BaseSize: t.BaseSize,
			Fields:   len(t.Fields),
		}
	}
	return env.Print(c, rows)
}

func heapType(c *cli.Context, env *Env) error {
	name, err := requiredArg(c, "type name")
	if err != nil {
		return err
	}
	s, err := env.Session(c.Context, c)
	if err != nil {
		return err
	}
	t, err := s.GetType(name)
	if err != nil {
		return err
	}

	if !env.tableOutput(c) {
		return env.Print(c, t)
	}
	env.Printf("%s (%s, base size %d)\n\n", t.Name, t.Kind, t.BaseSize)
	if len(t.Fields) == 0 {
		env.Printf("(no instance fields)\n")
		return nil
	}
	return env.Print(c, t.Fields)
}

func heapStats(c *cli.Context, env *Env) error {
	s, err := env.Indexed(c.Context, c)
	if err != nil {
		return err
	}
	stats, err := s.GetTypeStats()
	if err != nil {
		return err
	}

	if c.Bool("skip-empty") {
		stats = slices.DeleteFunc(stats, func(st domain.TypeStat) bool { return st.Count == 0 })
	}
	if err := sortStats(stats, c.String("sort")); err != nil {
		return err
	}
	if n := c.Int("top"); n > 0 && n < len(stats) {
		stats = stats[:n]
	}

	if !env.tableOutput(c) {
		return env.Print(c, stats)
	}

	table := &output.Table{Headers: []string{"COUNT", "TOTAL SIZE", "TYPE"}}
	var count, size uint64
	for _, st := range stats {
		table.AddRow(fmt.Sprint(st.Count), fmt.Sprint(st.TotalSize), st.Name)
		count += st.Count
		size += st.TotalSize
	}
	if err := env.Print(c, table); err != nil {
		return err
	}
	env.Printf("\nTotal: %d objects, %d bytes in %d types\n", count, size, len(stats))
	return nil
}

func sortStats(stats []domain.TypeStat, by string) error {
	var fn func(a, b domain.TypeStat) int
	switch by {
	case "size", "":
		fn = func(a, b domain.TypeStat) int {
			return cmp.Or(cmp.Compare(b.TotalSize, a.TotalSize), strings.Compare(a.Name, b.Name))
		}
	case "count":
		fn = func(a, b domain.TypeStat) int {
			return cmp.Or(cmp.Compare(b.Count, a.Count), strings.Compare(a.Name, b.Name))
		}
	case "name":
		fn = func(a, b domain.TypeStat) int { return strings.Compare(a.Name, b.Name) }
	default:
		return domain.ErrInvalidArgument.WithDetailsf("unknown sort key %q (want size, count or name)", by)
	}
	slices.SortStableFunc(stats, fn)
	return nil
}

type objectRow struct {
	Address domain.Address `json:"address"`
	Type    string         `json:"type"`
}

func heapInstances(c *cli.Context, env *Env) error {
	name, err := requiredArg(c, "type name")
	if err != nil {
		return err
	}
	s, err := env.Indexed(c.Context, c)
	if err != nil {
		return err
	}
	seq, err := s.EnumerateInstances(name)
	if err != nil {
		return err
	}

	type instanceRow struct {
		Address domain.Address `json:"address"`
	}
	limit := c.Int("limit")
	rows := make([]instanceRow, 0)
	for addr := range seq {
		if limit > 0 && len(rows) == limit {
			break
		}
		rows = append(rows, instanceRow{Address: addr})
	}
	return env.Print(c, rows)
}

func heapRefs(c *cli.Context, env *Env) error {
	addr, err := addressArg(c)
	if err != nil {
		return err
	}
	s, err := env.Indexed(c.Context, c)
	if err != nil {
		return err
	}

	var addrs []domain.Address
	if c.Bool("referrers") {
		addrs, err = s.GetReferrers(addr)
	} else {
		addrs, err = s.GetReferences(addr)
	}
	if err != nil {
		return err
	}

	rows := make([]objectRow, len(addrs))
	for i, a := range addrs {
		rows[i] = objectRow{Address: a, Type: typeNameOf(s, a)}
	}
	return env.Print(c, rows)
}

// typeNameOf returns the type name of the object at addr, or
// session.UnknownTypeName when it cannot be resolved.
func typeNameOf(s *session.Session, addr domain.Address) string {
	name, err := s.GetObjectTypeName(addr)
	if err != nil {
		return session.UnknownTypeName
	}
	return name
}

type valueRow struct {
	Address domain.Address `json:"address"`
	Type    string         `json:"type"`
	Path    string         `json:"path,omitempty"`
	Value   any            `json:"value"`
}

type fieldRow struct {
	Name   string      `json:"name"`
	Kind   domain.Kind `json:"kind"`
	Offset uint32      `json:"offset" table:"wide"`
	Value  any         `json:"value"`
}

func heapValue(c *cli.Context, env *Env) error {
	addr, err := addressArg(c)
	if err != nil {
		return err
	}
	s, err := env.Session(c.Context, c)
	if err != nil {
		return err
	}
	t, err := s.GetObjectType(addr)
	if err != nil {
		return err
	}

	if path := c.String("field"); path != "" {
		v, err := s.GetFieldValue(addr, t, strings.Split(path, "."))
		if err != nil {
			return err
		}
		return env.Print(c, valueRow{Address: addr, Type: t.Name, Path: path, Value: v})
	}

	if len(t.Fields) == 0 {
		v, err := s.GetSimpleValue(addr, t)
		if err != nil {
			return err
		}
		return env.Print(c, valueRow{Address: addr, Type: t.Name, Value: v})
	}

	rows := make([]fieldRow, len(t.Fields))
	for i, f := range t.Fields {
		v, err := s.GetFieldValue(addr, t, []string{f.Name})
		if err != nil {
			return err
		}
		rows[i] = fieldRow{Name: f.Name, Kind: f.Kind, Offset: f.Offset, Value: v}
	}
	if env.tableOutput(c) {
		env.Printf("%v %s\n\n", addr, t.Name)
	}
	return env.Print(c, rows)
}
