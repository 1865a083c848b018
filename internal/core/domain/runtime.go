package domain

// Segment is a contiguous range of the managed heap.
type Segment struct {
	Start Address `json:"start"`
	End   Address `json:"end"`
	Kind  string  `json:"kind"`
}

// Length returns the segment size in bytes.
func (s Segment) Length() uint64 {
	if s.End < s.Start {
		return 0
	}
	return uint64(s.End - s.Start)
}

// Contains reports whether addr falls inside the segment.
func (s Segment) Contains(addr Address) bool {
	return addr >= s.Start && addr < s.End
}

// MemoryRegion is a runtime-reserved region of the target's address space.
type MemoryRegion struct {
	Address Address `json:"address"`
	Size    uint64  `json:"size"`
	Kind    string  `json:"kind"`
}

// Module is a code module loaded in the target.
type Module struct {
	Name      string  `json:"name"`
	FileName  string  `json:"file_name"`
	ImageBase Address `json:"image_base"`
	Size      uint64  `json:"size"`
	IsDynamic bool    `json:"is_dynamic"`
}

// Thread is a runtime thread as seen by the diagnostic layer.
type Thread struct {
	OSID             uint32  `json:"os_id"`
	ManagedID        int32   `json:"managed_id"`
	Address          Address `json:"address"`
	IsAlive          bool    `json:"is_alive"`
	IsBackground     bool    `json:"is_background"`
	LockCount        uint32  `json:"lock_count"`
	CurrentException Address `json:"current_exception,omitempty"`
}

// Handle is a GC handle table entry.
type Handle struct {
	Address Address `json:"address"`
	Object  Address `json:"object"`
	Kind    string  `json:"kind"`
}

// Root is a GC root: something that keeps Object alive.
type Root struct {
	Address Address `json:"address"`
	Object  Address `json:"object"`
	Kind    string  `json:"kind"`
	Name    string  `json:"name,omitempty"`
	Thread  uint32  `json:"thread,omitempty"`
}

// BlockingObject is a lock or wait handle some threads hold or wait on.
type BlockingObject struct {
	Object         Address  `json:"object"`
	Reason         string   `json:"reason"`
	Taken          bool     `json:"taken"`
	RecursionCount int      `json:"recursion_count"`
	Owners         []uint32 `json:"owners,omitempty"`
	Waiters        []uint32 `json:"waiters,omitempty"`
}

// ThreadPool summarizes the runtime thread pool.
type ThreadPool struct {
	MinThreads     int `json:"min_threads"`
	MaxThreads     int `json:"max_threads"`
	IdleThreads    int `json:"idle_threads"`
	RunningThreads int `json:"running_threads"`
	CPUUtilization int `json:"cpu_utilization"`
}

// FinalizerGroup is the finalizer queue grouped by object type.
type FinalizerGroup struct {
	TypeName  string    `json:"type_name"`
	Addresses []Address `json:"addresses"`
}
