package command

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/core/session"
	"github.com/yndnr/memscope-go/internal/dac/dumpfile"
)

// Type names written by dump synth.
const (
	SynthNodeType  = "Synth.Node"
	SynthArrayType = "System.Object[]"
)

// DumpCommand returns the dump subcommand group.
func DumpCommand() *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "Create and describe dump files",
		Subcommands: []*cli.Command{
			{
				Name:      "synth",
				Usage:     "Write a synthetic dump (a .zst suffix compresses it)",
				ArgsUsage: "OUTPUT",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "nodes",
						Value: 1000,
						Usage: "Number of linked list nodes",
					},
					&cli.IntFlag{
						Name:  "threads",
						Value: 4,
						Usage: "Number of threads",
					},
					&cli.StringFlag{
						Name:  "runtime",
						Value: "coreclr/8.0.4",
						Usage: "Runtime as FLAVOR/VERSION",
					},
				},
				Action: dumpSynth,
			},
			{
				Name:      "info",
				Usage:     "Describe a dump file without initializing its runtime",
				ArgsUsage: "[DUMP]",
				Action:    withEnv(dumpInfo),
			},
		},
	}
}

type synthOptions struct {
	Nodes   int
	Threads int
	Flavor  string
	Version string
}

// synthDump builds a dump holding a linked list of nodes in gen0, an
// object array referencing every eighth node, and one thread object per
// thread in gen2. Every fourth node has a label string and every
// sixteenth is finalizable.
func synthDump(o synthOptions) *dumpfile.Builder {
	b := dumpfile.NewBuilder().Runtime(o.Flavor, o.Version)
	b.DefineString()
	node := b.DefineObject(SynthNodeType,
		dumpfile.Field{Name: "Next", Kind: domain.KindObject, TypeName: SynthNodeType},
		dumpfile.Field{Name: "Id", Kind: domain.KindInt32},
		dumpfile.Field{Name: "Label", Kind: domain.KindString, TypeName: dumpfile.StringTypeName},
	)
	thread := b.DefineObject(session.DefaultThreadType,
		dumpfile.Field{Name: "m_Name", Kind: domain.KindString, TypeName: dumpfile.StringTypeName},
		dumpfile.Field{Name: "m_Priority", Kind: domain.KindInt32},
		dumpfile.Field{Name: "m_ManagedThreadId", Kind: domain.KindInt32},
	)
	arr := b.DefineArray(SynthArrayType, domain.KindObject, "System.Object")

	b.Segment("gen0")
	nodes := make([]domain.Address, o.Nodes)
	for i := range o.Nodes {
		n := b.New(node)
		b.Set(n, "Id", int32(i))
		if i%4 == 0 {
			b.Set(n, "Label", b.String(fmt.Sprintf("node-%d", i)))
		}
		if i > 0 {
			b.Set(nodes[i-1], "Next", n)
		}
		if i%16 == 0 {
			b.Finalizable(n)
		}
		nodes[i] = n
	}
	index := b.NewArray(arr, (o.Nodes+7)/8)
	for i := 0; i*8 < o.Nodes; i++ {
		b.SetElement(index, i, nodes[i*8])
	}

	b.Segment("gen2")
	for i := range o.Threads {
		name := "Main"
		if i > 0 {
			name = fmt.Sprintf("Worker-%d", i)
		}
		t := b.New(thread)
		b.Set(t, "m_Name", b.String(name)).
			Set(t, "m_Priority", int32(2)).
			Set(t, "m_ManagedThreadId", int32(i+1))
		b.Thread(domain.Thread{
			OSID:         uint32(1000 + i),
			ManagedID:    int32(i + 1),
			Address:      t,
			IsAlive:      true,
			IsBackground: i > 0,
		})
	}

	b.Root(domain.Root{Address: 0x7ffe0000, Object: nodes[0], Kind: "stack", Thread: 1000}).
		Handle(domain.Handle{Address: 0x6000, Object: index, Kind: "strong"}).
		Region(domain.MemoryRegion{Address: 0x10000, Size: 0x100000, Kind: "gc-heap"}).
		Module(domain.Module{Name: "Synth", FileName: "Synth.dll", ImageBase: 0x7f0000000000, Size: 0x4000}).
		ThreadPool(domain.ThreadPool{MinThreads: o.Threads, MaxThreads: 32, RunningThreads: o.Threads})
	if o.Threads > 1 {
		b.BlockingObject(domain.BlockingObject{
			Object:         nodes[0],
			Reason:         "monitor",
			Taken:          true,
			RecursionCount: 1,
			Owners:         []uint32{1000},
			Waiters:        []uint32{1001},
		})
	}
	return b
}

func parseRuntime(s string) (flavor, version string, err error) {
	flavor, version, ok := strings.Cut(s, "/")
	if !ok || flavor == "" || version == "" {
		return "", "", domain.ErrInvalidArgument.WithDetailsf("runtime %q: want FLAVOR/VERSION", s)
	}
	return flavor, version, nil
}

func dumpSynth(c *cli.Context) error {
	path, err := requiredArg(c, "output path")
	if err != nil {
		return err
	}
	opts := synthOptions{Nodes: c.Int("nodes"), Threads: c.Int("threads")}
	if opts.Nodes < 1 || opts.Threads < 1 {
		return domain.ErrInvalidArgument.WithDetails("--nodes and --threads must be at least 1")
	}
	if opts.Flavor, opts.Version, err = parseRuntime(c.String("runtime")); err != nil {
		return err
	}

	if err := synthDump(opts).WriteFile(path); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s: %d nodes, %d threads (%s %s).\n",
		path, opts.Nodes, opts.Threads, opts.Flavor, opts.Version)
	return nil
}

type dumpInfoView struct {
	Path        string `json:"path"`
	Format      string `json:"format"`
	PointerSize int    `json:"pointer_size"`
	ByteOrder   string `json:"byte_order"`
	Runtimes    string `json:"runtimes"`
	Types       int    `json:"types"`
	Segments    int    `json:"segments"`
	HeapBytes   uint64 `json:"heap_bytes"`
	Threads     int    `json:"threads"`
	Roots       int    `json:"roots"`
	Handles     int    `json:"handles"`
}

func dumpInfo(c *cli.Context, env *Env) error {
	if err := checkArgs(c, 1); err != nil {
		return err
	}
	path := c.Args().First()
	if path == "" {
		path = env.ParseGlobalFlags(c).Dump
	}
	if path == "" {
		return domain.ErrInvalidArgument.WithDetails("dump path required")
	}

	target, err := dumpfile.Open(path)
	if err != nil {
		return err
	}
	defer target.Close()

	f := target.File()
	order := f.ByteOrder
	if order == "" {
		order = "little"
	}
	runtimes := make([]string, len(f.Runtimes))
	for i, rv := range f.Runtimes {
		runtimes[i] = rv.String()
	}
	info := dumpInfoView{
		Path:        target.Path(),
		Format:      f.Format,
		PointerSize: f.PointerSize,
		ByteOrder:   order,
		Runtimes:    strings.Join(runtimes, ", "),
		Types:       len(f.Types),
		Segments:    len(f.Segments),
		Threads:     len(f.Threads),
		Roots:       len(f.Roots),
		Handles:     len(f.Handles),
	}
	for _, seg := range f.Segments {
		info.HeapBytes += uint64(len(seg.Data))
	}
	return env.Print(c, info)
}
