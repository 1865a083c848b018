// Package dumptest builds small dump files for tests.
package dumptest

import (
	"path/filepath"
	"testing"

	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/dac/dumpfile"
)

// Type names used by Sample.
const (
	NodeType   = "App.Node"
	ThreadType = "System.Threading.Thread"
	ArrayType  = "System.Object[]"
	Int32Type  = "System.Int32"
	UnusedType = "App.Unused"
)

// Fixture records the addresses Sample allocated.
type Fixture struct {
	Path string

	// Head -> Tail; Tail.Next is null.
	Head, Tail domain.Address
	HeadLabel  domain.Address

	// Array holds {Head, null, Tail}.
	Array domain.Address

	Boxed domain.Address

	// MainThread has a name, Worker does not.
	MainThread, WorkerThread domain.Address
}

// Sample writes a two-segment dump to a temp dir:
//
//	gen0: Head(Node) "head"(String) Tail(Node) Array(Object[]) Boxed(Int32)
//	gen2: MainThread(Thread) "Main"(String) WorkerThread(Thread)
//
// App.Unused is defined but never instantiated.
func Sample(tb testing.TB) Fixture {
	tb.Helper()

	b := dumpfile.NewBuilder().Runtime("coreclr", "8.0.4")
	b.DefineString()
	node := b.DefineObject(NodeType,
		dumpfile.Field{Name: "Next", Kind: domain.KindObject, TypeName: NodeType},
		dumpfile.Field{Name: "Value", Kind: domain.KindInt32},
		dumpfile.Field{Name: "Label", Kind: domain.KindString, TypeName: dumpfile.StringTypeName},
	)
	thread := b.DefineObject(ThreadType,
		dumpfile.Field{Name: "m_Name", Kind: domain.KindString, TypeName: dumpfile.StringTypeName},
		dumpfile.Field{Name: "m_Priority", Kind: domain.KindInt32},
		dumpfile.Field{Name: "m_ManagedThreadId", Kind: domain.KindInt32},
	)
	arr := b.DefineArray(ArrayType, domain.KindObject, "System.Object")
	boxed := b.DefineBoxed(Int32Type, domain.KindInt32)
	b.DefineObject(UnusedType, dumpfile.Field{Name: "x", Kind: domain.KindInt64})

	var fx Fixture
	b.Segment("gen0")
	fx.Head = b.New(node)
	fx.HeadLabel = b.String("head")
	fx.Tail = b.New(node)
	b.Set(fx.Head, "Next", fx.Tail).Set(fx.Head, "Value", int32(1)).Set(fx.Head, "Label", fx.HeadLabel)
	b.Set(fx.Tail, "Value", int32(2))
	fx.Array = b.NewArray(arr, 3)
	b.SetElement(fx.Array, 0, fx.Head).SetElement(fx.Array, 2, fx.Tail)
	fx.Boxed = b.Box(boxed, int32(42))

	b.Segment("gen2")
	fx.MainThread = b.New(thread)
	name := b.String("Main")
	fx.WorkerThread = b.New(thread)
	b.Set(fx.MainThread, "m_Name", name).
		Set(fx.MainThread, "m_Priority", int32(2)).
		Set(fx.MainThread, "m_ManagedThreadId", int32(1))
	b.Set(fx.WorkerThread, "m_Priority", int32(1)).
		Set(fx.WorkerThread, "m_ManagedThreadId", int32(7))

	b.Thread(domain.Thread{OSID: 100, ManagedID: 1, Address: fx.MainThread, IsAlive: true}).
		Thread(domain.Thread{OSID: 101, ManagedID: 7, Address: fx.WorkerThread, IsAlive: true, IsBackground: true}).
		Root(domain.Root{Address: 0x5000, Object: fx.Head, Kind: "stack", Thread: 100}).
		Handle(domain.Handle{Address: 0x6000, Object: fx.Array, Kind: "strong"}).
		Finalizable(fx.Head).
		Finalizable(fx.Tail).
		Finalizable(fx.MainThread).
		BlockingObject(domain.BlockingObject{Object: fx.Tail, Reason: "monitor", Taken: true, RecursionCount: 1, Owners: []uint32{100}, Waiters: []uint32{101}}).
		Region(domain.MemoryRegion{Address: 0x10000, Size: 0x20000, Kind: "gc-heap"}).
		Module(domain.Module{Name: "App", FileName: "App.dll", ImageBase: 0x7f0000000000, Size: 0x4000}).
		ThreadPool(domain.ThreadPool{MinThreads: 4, MaxThreads: 32, IdleThreads: 3, RunningThreads: 1, CPUUtilization: 12})

	fx.Path = filepath.Join(tb.TempDir(), "sample.dump.json")
	if err := b.WriteFile(fx.Path); err != nil {
		tb.Fatalf("write sample dump: %v", err)
	}
	return fx
}

// Write builds b into a file under a temp dir and returns its path.
func Write(tb testing.TB, b *dumpfile.Builder, name string) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), name)
	if err := b.WriteFile(path); err != nil {
		tb.Fatalf("write dump: %v", err)
	}
	return path
}
