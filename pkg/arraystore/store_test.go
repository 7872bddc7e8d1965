// pkg/arraystore/store_test.go
package arraystore

import (
	"bytes"
	"testing"
)

func TestNop(t *testing.T) {
	bs := New(1, 32)
	bs.Clear()
}

func TestNopState(t *testing.T) {
	bs := New(1, 32)
	st := bs.StateAdd([]byte("test"), nil)
	if st.Size() != 4 {
		t.Errorf("expected state size 4, got %d", st.Size())
	}
	bs.StateRemove(st)
	if !bs.IsValid() {
		t.Error("store invalid after removing the only state")
	}
	bs.Clear()
}

func TestSingle(t *testing.T) {
	bs := New(1, 32)
	src := []byte("test")
	st := bs.StateAdd(src, nil)
	dst := st.Bytes()
	if !bytes.Equal(src, dst) {
		t.Errorf("round-trip mismatch: %q != %q", src, dst)
	}
}

func TestDoubleNop(t *testing.T) {
	bs := New(1, 32)
	src := []byte("test")

	stateA := bs.StateAdd(src, nil)
	stateB := bs.StateAdd(src, stateA)

	// the identical array shares the whole chunk list
	if got := bs.SizeCompacted(); got != len(src) {
		t.Errorf("compacted size %d, want %d", got, len(src))
	}
	if got := bs.SizeExpanded(); got != len(src)*2 {
		t.Errorf("expanded size %d, want %d", got, len(src)*2)
	}

	if !bytes.Equal(src, stateA.Bytes()) {
		t.Error("state A does not round-trip")
	}
	if !bytes.Equal(src, stateB.Bytes()) {
		t.Error("state B does not round-trip")
	}
	if !bs.IsValid() {
		t.Error("store failed validation")
	}
}

func TestDoubleDiff(t *testing.T) {
	bs := New(1, 32)
	srcA := []byte("test")
	srcB := []byte("####")

	stateA := bs.StateAdd(srcA, nil)
	stateB := bs.StateAdd(srcB, stateA)

	// nothing shared
	if got := bs.SizeCompacted(); got != len(srcA)*2 {
		t.Errorf("compacted size %d, want %d", got, len(srcA)*2)
	}
	if got := bs.SizeExpanded(); got != len(srcA)*2 {
		t.Errorf("expanded size %d, want %d", got, len(srcA)*2)
	}

	if !bytes.Equal(srcA, stateA.Bytes()) {
		t.Error("state A does not round-trip")
	}
	if !bytes.Equal(srcB, stateB.Bytes()) {
		t.Error("state B does not round-trip")
	}
}

func TestTextMixed(t *testing.T) {
	for _, strings := range [][]string{
		{""},
		{"test"},
		{"", "test"},
		{"test", ""},
		{"test", "", "test"},
		{"", "test", ""},
	} {
		runBuffersSimple(t, 1, 4, bufferListFromStrings(strings...))
	}
}

func TestTextSentences(t *testing.T) {
	// small edits against the previous revision share most chunks
	bs := New(1, 8)
	srcA := []byte("The quick brown fox jumps over the lazy dog")
	srcB := []byte("The quick brown fox almost jumps over the lazy dog")
	srcC := []byte("The little quick brown fox jumps over the lazy dog!")

	stateA := bs.StateAdd(srcA, nil)
	stateB := bs.StateAdd(srcB, stateA)
	stateC := bs.StateAdd(srcC, stateB)

	for i, tc := range []struct {
		src   []byte
		state *State
	}{{srcA, stateA}, {srcB, stateB}, {srcC, stateC}} {
		if !bytes.Equal(tc.src, tc.state.Bytes()) {
			t.Errorf("state %d does not round-trip", i)
		}
	}
	if !bs.IsValid() {
		t.Error("store failed validation")
	}
	if bs.SizeCompacted() >= bs.SizeExpanded() {
		t.Errorf("no sharing between close revisions: compacted %d, expanded %d",
			bs.SizeCompacted(), bs.SizeExpanded())
	}
}

func TestTextDupeIncreaseDecrease(t *testing.T) {
	const d = "#1#2#3#4"
	const chunkCount = 8
	cl := bufferListFromStrings(d, d+d, d+d+d, d+d+d+d)

	bs := New(1, chunkCount)

	// forward, the repeating block de-duplicates down to a single chunk
	bufferListPopulate(bs, cl)
	bufferListValidate(t, cl)
	if !bs.IsValid() {
		t.Fatal("store failed validation")
	}
	if got := bs.SizeCompacted(); got != chunkCount {
		t.Errorf("compacted size %d, want %d", got, chunkCount)
	}

	bufferListStatesRemove(bs, cl)
	for i, j := 0, len(cl)-1; i < j; i, j = i+1, j-1 {
		cl[i], cl[j] = cl[j], cl[i]
	}

	// backwards is larger, the first (biggest) state seeds the store and
	// truncation shares chunks without re-chunking
	bufferListPopulate(bs, cl)
	bufferListValidate(t, cl)
	if !bs.IsValid() {
		t.Fatal("store failed validation")
	}
	if got := bs.SizeCompacted(); got != chunkCount*4 {
		t.Errorf("compacted size %d, want %d", got, chunkCount*4)
	}
}

func TestStateAddPanicsOnStride(t *testing.T) {
	bs := New(4, 8)
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unaligned data length")
		}
	}()
	bs.StateAdd([]byte("12345"), nil) // 5 bytes, stride 4
}

func TestDataPanicsOnShortBuffer(t *testing.T) {
	bs := New(1, 8)
	st := bs.StateAdd([]byte("12345678"), nil)
	defer func() {
		if recover() == nil {
			t.Error("expected panic for wrong destination length")
		}
	}()
	st.Data(make([]byte, 4))
}

func TestClearReuse(t *testing.T) {
	bs := New(1, 8)
	src := []byte("some reusable content")
	bs.StateAdd(src, nil)
	bs.Clear()

	if got := bs.SizeExpanded(); got != 0 {
		t.Fatalf("expanded size %d after Clear, want 0", got)
	}
	st := bs.StateAdd(src, nil)
	if !bytes.Equal(src, st.Bytes()) {
		t.Error("store not reusable after Clear")
	}
	if !bs.IsValid() {
		t.Error("store failed validation after Clear and reuse")
	}
}

func TestRemoveInAnyOrder(t *testing.T) {
	bs := New(1, 8)
	cl := bufferListFromStrings("aaaa bbbb", "aaaa cccc bbbb", "cccc bbbb aaaa")
	bufferListPopulate(bs, cl)

	// middle first, then tail, then head
	bs.StateRemove(cl[1].state)
	if !bs.IsValid() {
		t.Fatal("store invalid after removing middle state")
	}
	bs.StateRemove(cl[2].state)
	if !bs.IsValid() {
		t.Fatal("store invalid after removing tail state")
	}
	if !bytes.Equal(cl[0].data, cl[0].state.Bytes()) {
		t.Error("surviving state no longer round-trips")
	}
	bs.StateRemove(cl[0].state)
	if bs.SizeCompacted() != 0 {
		t.Errorf("compacted size %d with no states, want 0", bs.SizeCompacted())
	}
}
