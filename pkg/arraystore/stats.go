// pkg/arraystore/stats.go
package arraystore

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Stats is a snapshot of a store's element counts and sizes
type Stats struct {
	States     int // live state handles
	ChunkLists int // chunk lists, shared lists counted once
	ChunkRefs  int // list links
	Chunks     int // chunks, shared chunks counted once

	SizeExpanded  int // total logical bytes across all states
	SizeCompacted int // physical bytes held by chunks
}

// CompactionRatio returns the compacted size as a percentage of the expanded
// size; lower means better de-duplication.
func (s Stats) CompactionRatio() float64 {
	if s.SizeExpanded == 0 {
		return 0
	}
	return float64(s.SizeCompacted) / float64(s.SizeExpanded) * 100
}

func (s Stats) String() string {
	return fmt.Sprintf("%d states, %d chunks: %s expanded, %s compacted (%.1f%%)",
		s.States, s.Chunks,
		humanize.Bytes(uint64(s.SizeExpanded)),
		humanize.Bytes(uint64(s.SizeCompacted)),
		s.CompactionRatio())
}
