// Package graph holds the in-memory entity graph: executables (Exe), their
// mapped file regions (Region), and the pairwise four-state continuous-time
// Markov chains (Chain) that correlate their co-occurrence.
//
// Per the arena-with-indices design (see the project's design notes), all
// three entity kinds live in one Graph and reference each other by integer
// index rather than by pointer, so there are no ownership cycles. Indices
// are stable handles assigned at registration and never reused within a
// running process, even across removals — so a Graph is implemented with
// maps keyed by index rather than a dense, swap-removing slice.
package graph

// RegionKey is the identity of a Region: (path, offset, length). Two
// regions are equal, and order the same way, iff their keys are equal.
type RegionKey struct {
	Path   string
	Offset int64
	Length int64
}

// Region is a contiguous, file-backed, read-mapped byte range.
type Region struct {
	RegionKey

	UpdateTime float64 // logical seconds of last observation
	Lnprob     float64 // ordered log-probability, smaller = more likely needed
	Seq        int64   // assigned once at registration, never reused
	Block      int64   // disk/inode sort key, or -1 if not yet probed

	refcount int // number of ExeMaps referencing this region
}

// ExeMap is an Exe's use of a Region, with a usage probability.
type ExeMap struct {
	RegionIdx int
	Prob      float64
}

// Exe is an executable or shared library observed mapped into some
// process's address space.
type Exe struct {
	Path string

	Time             float64 // cumulative seconds observed running
	UpdateTime       float64
	RunningTimestamp float64 // last scan in which this exe was seen running
	ChangeTimestamp  float64 // last running<->not-running transition
	Lnprob           float64
	Seq              int64

	Maps   []ExeMap
	Chains []int // sorted chain indices this exe participates in

	Running bool
}

// ChainState encodes which of a chain's two endpoints are currently
// running: bit 0 is the 'a' endpoint, bit 1 is the 'b' endpoint.
type ChainState int

const (
	StateNeither ChainState = 0
	StateA       ChainState = 1
	StateB       ChainState = 2
	StateBoth    ChainState = 3
)

// ChainStateFor computes the two-bit running state for a pair of
// endpoints: bit 0 set if a is running, bit 1 set if b is running.
func ChainStateFor(aRunning, bRunning bool) ChainState {
	s := StateNeither
	if aRunning {
		s |= StateA
	}
	if bRunning {
		s |= StateB
	}
	return s
}

// Chain is the four-state continuous-time Markov process over the pair
// (Exe_a running, Exe_b running). A and B are exe indices; by convention
// the chain is stored once per unordered pair and iterated from the side
// whose exe index matches A ("canonical side"), per Graph.ForEachChain.
type Chain struct {
	A, B int

	State           ChainState
	Time            float64       // total seconds spent in state 3 (both running)
	Weight          [4][4]int32   // weight[i][i] = count of transitions out of i
	TimeToLeave     [4]float64    // exponentially weighted mean dwell time per state
	ChangeTimestamp float64       // when the current state was entered
	Cycle           uint32        // model period inherited from configuration
}
