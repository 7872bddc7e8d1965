// pkg/arraystore/merge.go
package arraystore

// The merge engine: build a chunk list for data, reusing as many of the
// reference list's chunks as possible. Matches at either end of the array
// are found first with plain byte compares; for identical arrays that is all
// that's needed. Remaining chunks are de-duplicated through a hash table
// keyed on the rolling content key, stepped over the unmatched region at
// stride granularity. Once a match lands, the following reference chunks are
// tried directly, since runs tend to match together.

// tableEntry chains reference chunkRefs within one bucket. Buckets hold
// indexes into a flat entry slice rather than pointers, so growing the slice
// can never invalidate them. Entries point at the chunkRef, not the chunk,
// which lets a hit walk the reference list in order without further lookups.
type tableEntry struct {
	next int32
	cref *chunkRef
}

func (s *Store) tableLookup(table []int32, entries []tableEntry, iTableStart int,
	data []byte, dataLen, offset int, tableHashArray []uint64) *chunkRef {

	sizeLeft := dataLen - offset
	key := tableHashArray[(offset-iTableStart)/s.stride]
	for ei := table[key%uint64(len(table))]; ei != -1; ei = entries[ei].next {
		cref := entries[ei].cref
		if cref.link.key == key {
			if len(cref.link.data) <= sizeLeft &&
				chunkDataCompare(cref.link, data, dataLen, offset) {
				return cref
			}
		}
	}
	return nil
}

// listFromDataMerge returns a list reproducing data, sharing chunks with ref
// where the content allows. The caller is responsible for adding the user;
// when the arrays are identical the reference list itself is returned.
func (s *Store) listFromDataMerge(data []byte, ref *chunkList) *chunkList {
	dataLenOriginal := len(data)

	// ------------------------------------------------------------------
	// Fast path, scan matching chunks from the start

	var crefMatchFirst *chunkRef
	refSkipLen := 0
	refSkipBytes := 0
	iPrev := 0

	fullMatch := true
	for cref := ref.head; iPrev < dataLenOriginal; {
		if cref != nil && chunkDataCompare(cref.link, data, dataLenOriginal, iPrev) {
			crefMatchFirst = cref
			refSkipLen++
			refSkipBytes += len(cref.link.data)
			iPrev += len(cref.link.data)
			cref = cref.next
		} else {
			fullMatch = false
			break
		}
	}

	if fullMatch && ref.totalSize == dataLenOriginal {
		// identical array, share the whole list
		return ref
	}

	// copy the matched prefix into a fresh list
	list := s.newChunkList()
	if crefMatchFirst != nil {
		sizeStep := 0
		for cref := ref.head; ; cref = cref.next {
			sizeStep += len(cref.link.data)
			s.listAppendOnly(list, cref.link)
			if cref == crefMatchFirst {
				break
			}
		}
		// happens when bytes are removed from the end of the array
		if sizeStep == dataLenOriginal {
			return list
		}
		iPrev = sizeStep
	} else {
		iPrev = 0
	}

	// ------------------------------------------------------------------
	// Fast path, scan matching chunks from the end
	//
	// From here on dataLen ignores the matched tail; the suffix run is
	// appended last, once the middle has been resolved.

	dataLen := dataLenOriginal
	var crefMatchLast *chunkRef

	if ref.head != nil {
		cref := ref.tail
		for cref.prev != nil && cref != crefMatchFirst &&
			len(cref.link.data) <= dataLen-iPrev {
			offset := dataLen - len(cref.link.data)
			if !chunkDataCompare(cref.link, data, dataLen, offset) {
				break
			}
			dataLen = offset
			crefMatchLast = cref
			refSkipLen++
			refSkipBytes += len(cref.link.data)
			cref = cref.prev
		}
	}

	// ------------------------------------------------------------------
	// Aligned arrays: equal totals and only a small unmatched span mean the
	// chunks mostly line up, stepping both sides beats a lookup table.

	useAligned := false
	if dataLenOriginal == ref.totalSize {
		if dataLen-iPrev <= dataLenOriginal/4 {
			useAligned = true
		}
	}

	if useAligned {
		// copy matching chunks, keeping the reference's layout
		cref := ref.head
		if crefMatchFirst != nil {
			cref = crefMatchFirst.next
		}
		for iPrev != dataLen {
			i := iPrev + len(cref.link.data)
			if cref != crefMatchLast && chunkDataCompare(cref.link, data, dataLen, iPrev) {
				s.listAppend(list, cref.link)
			} else {
				s.appendData(list, data[iPrev:i])
			}
			cref = cref.next
			iPrev = i
		}
	} else if dataLen-iPrev >= s.chunkSize &&
		ref.refsLen >= refSkipLen && ref.head != nil {

		// --------------------------------------------------------------
		// Non-aligned de-duplication through the lookup table. Handles
		// re-arranged chunks; only worth building when at least one whole
		// chunk remains unmatched.

		iTableStart := iPrev
		tableHashArray := make([]uint64, (dataLen-iPrev)/s.stride)
		s.hashArrayFromData(data[iPrev:dataLen], tableHashArray)
		hashAccum(tableHashArray, s.accumSteps)

		// include the last matching prefix chunk, to allow repeating values
		refRemainingLen := ref.refsLen - refSkipLen + 1
		tableLen := refRemainingLen * hashTableMul
		table := make([]int32, tableLen)
		for i := range table {
			table[i] = -1
		}
		entries := make([]tableEntry, 0, refRemainingLen)

		scratch := make([]uint64, s.accumReadAheadLen)
		refBytesRemaining := ref.totalSize - refSkipBytes
		cref := ref.head
		if crefMatchFirst != nil {
			refBytesRemaining += len(crefMatchFirst.link.data)
			cref = crefMatchFirst
		}
		for cref != crefMatchLast && refBytesRemaining >= s.accumReadAheadBytes {
			// chunks too short to key can never match as body candidates
			if len(cref.link.data) >= s.accumReadAheadBytes {
				key := s.keyForChunk(cref.link, scratch)
				idx := key % uint64(tableLen)
				entries = append(entries, tableEntry{cref: cref, next: table[idx]})
				table[idx] = int32(len(entries) - 1)
			}
			refBytesRemaining -= len(cref.link.data)
			cref = cref.next
		}

		for i := iPrev; i < dataLen; {
			crefFound := s.tableLookup(
				table, entries, iTableStart, data, dataLen, i, tableHashArray)
			if crefFound == nil {
				i += s.stride
				continue
			}

			if i != iPrev {
				s.appendDataN(list, data[iPrev:i])
				iPrev = i
			}

			chunkFound := crefFound.link
			i += len(chunkFound.data)
			s.listAppend(list, chunkFound)
			iPrev = i

			// the next chunks in the list are likely to match too, consume
			// them directly instead of paying for more table lookups
			for crefFound.next != nil && crefFound.next != crefMatchLast {
				crefFound = crefFound.next
				chunkFound = crefFound.link
				if !chunkDataCompare(chunkFound, data, dataLen, iPrev) {
					break
				}
				i += len(chunkFound.data)
				// chunkFound may be merged away here
				s.listAppend(list, chunkFound)
				iPrev = i
			}
		}
	}

	// ------------------------------------------------------------------
	// Trailing bytes with no matches above, write new chunks

	if iPrev != dataLen {
		s.appendDataN(list, data[iPrev:dataLen])
		iPrev = dataLen
	}

	// the deferred suffix run, already well sized since it came from ref
	if crefMatchLast != nil {
		for cref := crefMatchLast; cref != nil; cref = cref.next {
			iPrev += len(cref.link.data)
			s.listAppendOnly(list, cref.link)
		}
	}

	return list
}
