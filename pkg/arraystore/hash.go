// pkg/arraystore/hash.go
package arraystore

// Chunks are compared in two tiers: a 64-bit rolling content key built from
// the first accumReadAheadBytes of the chunk filters candidates cheaply, and
// a full byte compare decides. A key collision only costs the extra compare.

const (
	// number of times to propagate hashes back, effectively a triangle number
	hashTableAccumulateSteps = 4

	// calculate the key once and reuse it
	hashTableKeyUnset    = ^uint64(0)
	hashTableKeyFallback = ^uint64(0) - 1

	// how much larger the lookup table is than the number of chunks
	hashTableMul = 3

	hashInit = 5381
)

// hashDataSingle is the one-byte fast path of hashData.
func hashDataSingle(b byte) uint32 {
	return (hashInit<<5 + hashInit) + uint32(int32(int8(b)))
}

// hashData is a djb2 step over one stride, with signed-byte widening.
func hashData(key []byte) uint32 {
	h := uint32(hashInit)
	for _, b := range key {
		h = (h << 5) + h + uint32(int32(int8(b)))
	}
	return h
}

// hashArrayFromData fills out with the per-stride hashes of data.
// len(data) must be len(out)*stride.
func (s *Store) hashArrayFromData(data []byte, out []uint64) {
	if s.stride != 1 {
		i := 0
		for step := 0; step != len(data); step += s.stride {
			out[i] = uint64(hashData(data[step : step+s.stride]))
			i++
		}
	} else {
		// fast path for bytes
		for i, b := range data {
			out[i] = uint64(hashDataSingle(b))
		}
	}
}

// hashAccum propagates trailing hashes back through the array, one pass per
// step. Every position followed by at least iterSteps*(iterSteps+1)/2 more
// entries ends up with the same value hashAccumSingle computes for a window
// of that many entries plus one starting there.
func hashAccum(h []uint64, iterSteps int) {
	// can happen with very small chunk sizes
	if iterSteps > len(h) {
		iterSteps = len(h)
	}
	searchLen := len(h) - iterSteps
	for ; iterSteps != 0; iterSteps-- {
		offset := iterSteps
		for i := 0; i < searchLen; i++ {
			h[i] += h[i+offset] * ((h[i] & 0xff) + 1)
		}
	}
}

// hashAccumSingle is hashAccum when only h[0] is needed: each pass skips the
// tail positions that can no longer influence the head.
func hashAccumSingle(h []uint64, iterSteps int) {
	if iterSteps > len(h) {
		iterSteps = len(h)
	}
	iterStepsSub := iterSteps
	for iterSteps != 0 {
		searchLen := len(h) - iterStepsSub
		offset := iterSteps
		for i := 0; i < searchLen; i++ {
			h[i] += h[i+offset] * ((h[i] & 0xff) + 1)
		}
		iterSteps--
		iterStepsSub += iterSteps
	}
}

// keyForChunk returns the chunk's content key, computing and caching it on
// first use. The chunk must be at least accumReadAheadBytes long; shorter
// chunks never enter the lookup table.
func (s *Store) keyForChunk(c *chunk, scratch []uint64) uint64 {
	if c.key != hashTableKeyUnset {
		return c.key
	}
	h := scratch[:s.accumReadAheadLen]
	s.hashArrayFromData(c.data[:s.accumReadAheadBytes], h)
	hashAccumSingle(h, s.accumSteps)
	key := h[0]
	if key == hashTableKeyUnset {
		key = hashTableKeyFallback
	}
	c.key = key
	return key
}
