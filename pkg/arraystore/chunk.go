// pkg/arraystore/chunk.go
package arraystore

import (
	"bytes"
	"io"

	"github.com/jotfs/fastcdc-go"
	"github.com/zeebo/blake3"
)

// chunk is an immutable byte buffer shared across chunk lists.
// users counts the chunkRefs pointing at it; data is never modified after
// the chunk is published (a tail chunk may grow in place while it still has
// a single user, before any other list can see it).
type chunk struct {
	data  []byte
	users int

	// rolling-hash content key, keyUnset until first use
	key uint64

	// BLAKE3 digest of data, verified by Store.IsValid
	sum [32]byte
}

// chunkRef links one chunk into a chunkList. Each ref owns exactly one user
// of its chunk.
type chunkRef struct {
	next, prev *chunkRef
	link       *chunk
}

// chunkList is an ordered sequence of chunkRefs forming one logical array.
// users counts the States referencing it.
type chunkList struct {
	head, tail *chunkRef
	refsLen    int
	totalSize  int
	users      int
}

func (s *Store) newChunk(data []byte) *chunk {
	c := s.chunkPool.Get()
	c.data = data
	c.users = 0
	c.key = hashTableKeyUnset
	c.sum = blake3.Sum256(data)
	return c
}

func (s *Store) newChunkCopy(data []byte) *chunk {
	cp := make([]byte, len(data))
	copy(cp, data)
	return s.newChunk(cp)
}

func (s *Store) chunkDecref(c *chunk) {
	if c.users == 1 {
		c.data = nil
		s.chunkPool.Put(c)
	} else {
		c.users--
	}
}

func (s *Store) newChunkList() *chunkList {
	return s.listPool.Get()
}

func (s *Store) listDecref(l *chunkList) {
	if l.users == 1 {
		for cref := l.head; cref != nil; {
			next := cref.next
			s.chunkDecref(cref.link)
			s.refPool.Put(cref)
			cref = next
		}
		s.listPool.Put(l)
	} else {
		l.users--
	}
}

// chunkDataCompare reports whether data[offset:] begins with the chunk's
// exact bytes, bounded by dataLen.
func chunkDataCompare(c *chunk, data []byte, dataLen, offset int) bool {
	if offset+len(c.data) > dataLen {
		return false
	}
	return bytes.Equal(data[offset:offset+len(c.data)], c.data)
}

// listAppendOnly appends a ref to c at the tail. Never merges.
func (s *Store) listAppendOnly(l *chunkList, c *chunk) {
	cref := s.refPool.Get()
	cref.link = c
	cref.prev = l.tail
	if l.tail != nil {
		l.tail.next = cref
	} else {
		l.head = cref
	}
	l.tail = cref
	l.refsLen++
	l.totalSize += len(c.data)
	c.users++
}

// listAppend appends c and re-normalizes the tail pair.
func (s *Store) listAppend(l *chunkList, c *chunk) {
	s.listAppendOnly(l, c)
	s.ensureMinSizeLast(l)
}

// ensureMinSizeLast merges the last two chunks when either is undersized.
// When the pair won't fit in a single chunk, it is re-split instead: a left
// chunk of exactly the regular size and a right chunk holding the rest.
func (s *Store) ensureMinSizeLast(l *chunkList) {
	cref := l.tail
	if cref == nil || cref.prev == nil {
		return
	}
	chunkCurr := cref.link
	chunkPrev := cref.prev.link
	if min(len(chunkPrev.data), len(chunkCurr.data)) >= s.chunkSizeMin {
		return
	}
	mergeLen := len(chunkPrev.data) + len(chunkCurr.data)
	if mergeLen <= s.chunkSizeMax {
		// replace the pair with a single merged chunk, dropping the tail ref
		prevRef := cref.prev
		prevRef.next = nil
		l.tail = prevRef
		l.refsLen--

		merged := make([]byte, 0, mergeLen)
		merged = append(merged, chunkPrev.data...)
		merged = append(merged, chunkCurr.data...)
		prevRef.link = s.newChunk(merged)
		prevRef.link.users++
		s.refPool.Put(cref)
	} else {
		// Gradual expanding and contracting can accumulate an oversized
		// pair. Keep the left chunk a regular size, the right takes the rest.
		prevLen := s.chunkSize
		currLen := mergeLen - prevLen
		dataPrev := make([]byte, 0, prevLen)
		dataCurr := make([]byte, 0, currLen)
		if prevLen <= len(chunkPrev.data) {
			dataPrev = append(dataPrev, chunkPrev.data[:prevLen]...)
			dataCurr = append(dataCurr, chunkPrev.data[prevLen:]...)
			dataCurr = append(dataCurr, chunkCurr.data...)
		} else {
			grow := prevLen - len(chunkPrev.data)
			dataPrev = append(dataPrev, chunkPrev.data...)
			dataPrev = append(dataPrev, chunkCurr.data[:grow]...)
			dataCurr = append(dataCurr, chunkCurr.data[grow:]...)
		}
		cref.prev.link = s.newChunk(dataPrev)
		cref.prev.link.users++
		cref.link = s.newChunk(dataCurr)
		cref.link.users++
	}
	// free the zero-user originals
	s.chunkDecref(chunkCurr)
	s.chunkDecref(chunkPrev)
}

// trimCalc splits a length into a part aligned to the regular chunk size and
// the remainder, shifting one full chunk into the remainder when it would
// otherwise come out under the minimum. Post-condition: trim+last == dataLen
// and trim is either 0 or >= the regular chunk size.
func (s *Store) trimCalc(dataLen int) (trim, last int) {
	if dataLen > s.chunkSize {
		last = dataLen % s.chunkSize
		trim = dataLen - last
		if last != 0 && last < s.chunkSizeMin {
			trim -= s.chunkSize
			last += s.chunkSize
		}
		return trim, last
	}
	return 0, dataLen
}

// appendData writes a single span, folding it into the tail when either the
// tail or the span is undersized and the fold stays within the maximum chunk
// size.
//
// For large blocks of memory use appendDataN.
func (s *Store) appendData(l *chunkList, data []byte) {
	if cref := l.tail; cref != nil {
		chunkPrev := cref.link
		if min(len(chunkPrev.data), len(data)) < s.chunkSizeMin {
			mergeLen := len(chunkPrev.data) + len(data)
			if mergeLen <= s.chunkSizeMax {
				if chunkPrev.users == 1 {
					// single user, grow in place
					chunkPrev.data = append(chunkPrev.data, data...)
					chunkPrev.key = hashTableKeyUnset
					chunkPrev.sum = blake3.Sum256(chunkPrev.data)
				} else {
					merged := make([]byte, 0, mergeLen)
					merged = append(merged, chunkPrev.data...)
					merged = append(merged, data...)
					cref.link = s.newChunk(merged)
					cref.link.users++
					s.chunkDecref(chunkPrev)
				}
				l.totalSize += len(data)
				return
			}
			// a fold would overflow the maximum, append and re-normalize
			s.listAppendOnly(l, s.newChunkCopy(data))
			s.ensureMinSizeLast(l)
			return
		}
	}
	s.listAppendOnly(l, s.newChunkCopy(data))
}

// appendDataN writes an arbitrary sized block as full-sized chunks plus a
// remainder. Only the first chunk goes through appendData (it may need to
// merge with the existing tail); successive chunks are appended directly so
// fixed-size runs skip redundant merge checks.
func (s *Store) appendDataN(l *chunkList, data []byte) {
	trim, last := s.trimCalc(len(data))

	if trim != 0 {
		i := s.chunkSize
		s.appendData(l, data[:i])
		iPrev := i

		for iPrev != trim {
			i = iPrev + s.chunkSize
			s.listAppendOnly(l, s.newChunkCopy(data[iPrev:i]))
			iPrev = i
		}

		if last != 0 {
			s.listAppendOnly(l, s.newChunkCopy(data[iPrev:iPrev+last]))
		}
	} else if last != 0 {
		s.appendData(l, data)
	}
}

// fillFromArray populates an empty list with the full contents of data.
func (s *Store) fillFromArray(l *chunkList, data []byte) {
	if s.cdcFill && len(data) > s.chunkSizeMax {
		if s.fillContentDefined(l, data) {
			return
		}
	}

	trim, last := s.trimCalc(len(data))

	iPrev := 0
	for iPrev != trim {
		i := iPrev + s.chunkSize
		s.listAppendOnly(l, s.newChunkCopy(data[iPrev:i]))
		iPrev = i
	}

	if last != 0 {
		s.listAppendOnly(l, s.newChunkCopy(data[iPrev:iPrev+last]))
	}
}

// fillContentDefined splits data with FastCDC instead of fixed positions, so
// content shared between unrelated states still lands on the same chunk
// boundaries. Geometry was validated when the option was enabled; reports
// false only if the chunker rejects it anyway, in which case the caller
// falls back to fixed-size splitting.
func (s *Store) fillContentDefined(l *chunkList, data []byte) bool {
	chunker, err := fastcdc.NewChunker(bytes.NewReader(data), fastcdc.Options{
		MinSize:     s.chunkSizeMin,
		AverageSize: s.chunkSize,
		MaxSize:     s.chunkSizeMax,
	})
	if err != nil {
		return false
	}

	for {
		fc, err := chunker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// the reader is in-memory, Next cannot fail past construction
			panic("arraystore: content-defined chunker: " + err.Error())
		}

		// copy data (FastCDC reuses its buffer)
		cp := make([]byte, len(fc.Data))
		copy(cp, fc.Data)
		s.listAppendOnly(l, s.newChunk(cp))
	}

	// the final chunk may come out under the minimum
	s.ensureMinSizeLast(l)
	return true
}
