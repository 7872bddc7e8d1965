// pkg/arraystore/store.go

// Package arraystore stores many revisions of a flat byte array while
// physically de-duplicating the bytes they share.
//
// Arrays are split into chunks which are reference counted and shared
// between states (copy-on-write), so storage cost scales with the difference
// between successive revisions rather than their size. Callers add whole
// arrays one revision at a time, optionally naming a previously added state
// as the reference to de-duplicate against, and get back an opaque handle
// the exact bytes can be read from later.
//
// A Store is single threaded; separate Stores are fully independent.
package arraystore

import (
	"github.com/zeebo/blake3"

	"github.com/creativeyann17/go-arraystore/internal/mempool"
)

const (
	// merge chunks smaller than chunkSize/chunkSizeMinDiv
	chunkSizeMinDiv = 8

	// disallow chunks bigger than chunkSize*chunkSizeMaxMul, must be >= 2
	chunkSizeMaxMul = 2
)

// Store holds any number of array states, as long as their stride matches.
type Store struct {
	// bytes per logical element, array lengths are always a multiple
	stride int

	// pre-calculated chunk geometry, min/max limits inclusive
	chunkSize    int
	chunkSizeMin int
	chunkSizeMax int

	// rolling-hash parameters derived from the stride
	accumSteps          int
	accumReadAheadLen   int
	accumReadAheadBytes int

	// split reference-free fills with FastCDC, see Options
	cdcFill bool

	// states may be in any order, logic never depends on it
	statesHead, statesTail *State

	statePool mempool.Pool[State]
	listPool  mempool.Pool[chunkList]
	refPool   mempool.Pool[chunkRef]
	chunkPool mempool.Pool[chunk]
}

// State is a handle to a single array added to a Store. It stays valid until
// removed with StateRemove or the Store is cleared.
type State struct {
	next, prev *State
	list       *chunkList
}

// New creates a store for arrays whose element size is stride bytes, split
// into chunks of chunkCount elements.
//
// A stride of 1 always works but de-duplicates less effectively, since
// matching runs are searched at positions unaligned with the element data.
// Small chunk counts increase the chance of finding shared chunks but add
// book-keeping overhead; large ones duplicate more data on small isolated
// changes.
//
// Panics if stride or chunkCount is less than 1.
func New(stride, chunkCount int) *Store {
	if stride < 1 || chunkCount < 1 {
		panic("arraystore: stride and chunk count must be at least 1")
	}
	return newStore(stride, chunkCount)
}

// NewWithOptions is New with tuning options applied. Unlike New it does not
// panic: a stride or chunk count below 1 returns ErrStrideSize or
// ErrChunkCount, and option problems, which are data dependent, also surface
// as errors.
func NewWithOptions(stride, chunkCount int, opts *Options) (*Store, error) {
	if stride < 1 {
		return nil, ErrStrideSize
	}
	if chunkCount < 1 {
		return nil, ErrChunkCount
	}
	s := newStore(stride, chunkCount)
	if opts == nil {
		return s, nil
	}
	if err := opts.validate(s); err != nil {
		return nil, err
	}
	s.cdcFill = opts.ContentDefinedFill
	return s, nil
}

func newStore(stride, chunkCount int) *Store {
	accumSteps := hashTableAccumulateSteps - 1
	// triangle number, identifying how much read-ahead is needed
	accumReadAheadLen := accumSteps*(accumSteps+1)/2 + 1

	return &Store{
		stride:       stride,
		chunkSize:    chunkCount * stride,
		chunkSizeMin: max(1, chunkCount/chunkSizeMinDiv) * stride,
		chunkSizeMax: chunkCount * chunkSizeMaxMul * stride,

		accumSteps:          accumSteps,
		accumReadAheadLen:   accumReadAheadLen,
		accumReadAheadBytes: accumReadAheadLen * stride,
	}
}

// StateAdd stores data and returns its handle. reference is the state to
// de-duplicate against, typically the previous revision, though any live
// state of this store works; nil stores without de-duplication.
//
// len(data) must be a multiple of the stride.
func (s *Store) StateAdd(data []byte, reference *State) *State {
	if len(data)%s.stride != 0 {
		panic("arraystore: data length is not a multiple of the stride")
	}

	var list *chunkList
	if reference != nil {
		// reuse reference chunks, without modifying the reference
		list = s.listFromDataMerge(data, reference.list)
	} else {
		list = s.newChunkList()
		s.fillFromArray(list, data)
	}
	list.users++

	st := s.statePool.Get()
	st.list = list

	st.prev = s.statesTail
	if s.statesTail != nil {
		s.statesTail.next = st
	} else {
		s.statesHead = st
	}
	s.statesTail = st

	return st
}

// StateRemove removes a state and frees any chunks no other state shares.
// States can be removed in any order.
func (s *Store) StateRemove(st *State) {
	s.listDecref(st.list)

	if st.prev != nil {
		st.prev.next = st.next
	} else {
		s.statesHead = st.next
	}
	if st.next != nil {
		st.next.prev = st.prev
	} else {
		s.statesTail = st.prev
	}

	s.statePool.Put(st)
}

// Clear frees all states and chunks. The store remains usable.
func (s *Store) Clear() {
	s.statesHead, s.statesTail = nil, nil
	s.statePool.Clear()
	s.listPool.Clear()
	s.refPool.Clear()
	s.chunkPool.Clear()
}

// Size returns the expanded length of the array in bytes, the size the
// buffer passed to Data must have.
func (st *State) Size() int {
	return st.list.totalSize
}

// Data fills dst with the contents of the state. len(dst) must equal Size.
func (st *State) Data(dst []byte) {
	if len(dst) != st.list.totalSize {
		panic("arraystore: destination length does not match the state size")
	}
	off := 0
	for cref := st.list.head; cref != nil; cref = cref.next {
		off += copy(dst[off:], cref.link.data)
	}
}

// Bytes allocates and returns the contents of the state.
func (st *State) Bytes() []byte {
	dst := make([]byte, st.list.totalSize)
	st.Data(dst)
	return dst
}

// SizeExpanded returns the total logical bytes across all states, the memory
// reading every array back would take.
func (s *Store) SizeExpanded() int {
	size := 0
	for st := s.statesHead; st != nil; st = st.next {
		size += st.list.totalSize
	}
	return size
}

// SizeCompacted returns the physical bytes held by all chunks, counting
// shared chunks once.
func (s *Store) SizeCompacted() int {
	size := 0
	for c := range s.chunkPool.All() {
		size += len(c.data)
	}
	return size
}

// Stats returns a snapshot of the store's element counts and sizes.
func (s *Store) Stats() Stats {
	return Stats{
		States:        s.statePool.Len(),
		ChunkLists:    s.listPool.Len(),
		ChunkRefs:     s.refPool.Len(),
		Chunks:        s.chunkPool.Len(),
		SizeExpanded:  s.SizeExpanded(),
		SizeCompacted: s.SizeCompacted(),
	}
}

// IsValid exhaustively cross-checks the store's internal consistency: cached
// list sizes and counts against recomputation, every refcount against the
// reachable set that owns it, pool populations against reachability, the
// minimum-chunk-size merge invariant, and every chunk's content digest.
// Intended for tests; it never mutates the store.
func (s *Store) IsValid() bool {
	// cached lengths
	for st := s.statesHead; st != nil; st = st.next {
		l := st.list
		size, count := 0, 0
		for cref := l.head; cref != nil; cref = cref.next {
			size += len(cref.link.data)
			count++
		}
		if size != l.totalSize || count != l.refsLen {
			return false
		}

		// ensure everything that could be merged was
		if l.totalSize > s.chunkSizeMin {
			for cref := l.head; cref != nil; cref = cref.next {
				if len(cref.link.data) < s.chunkSizeMin {
					return false
				}
			}
		}
	}

	// user counts and lost references
	listUsers := make(map[*chunkList]int)
	stateCount := 0
	for st := s.statesHead; st != nil; st = st.next {
		listUsers[st.list]++
		stateCount++
	}
	if stateCount != s.statePool.Len() {
		return false
	}
	for l, users := range listUsers {
		if l.users != users {
			return false
		}
	}
	if s.listPool.Len() != len(listUsers) {
		return false
	}

	chunkUsers := make(map[*chunk]int)
	totalRefs := 0
	for l := range listUsers {
		for cref := l.head; cref != nil; cref = cref.next {
			chunkUsers[cref.link]++
			totalRefs++
		}
	}
	if s.chunkPool.Len() != len(chunkUsers) {
		return false
	}
	if s.refPool.Len() != totalRefs {
		return false
	}
	for c, users := range chunkUsers {
		if c.users != users {
			return false
		}
	}

	// content digests
	for c := range s.chunkPool.All() {
		if blake3.Sum256(c.data) != c.sum {
			return false
		}
	}

	return true
}
