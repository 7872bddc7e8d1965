// pkg/arraystore/helpers_test.go
package arraystore

import (
	"bytes"
	"slices"
	"testing"

	"github.com/creativeyann17/go-arraystore/internal/randgen"
)

// testBuffer pairs locally held data with the state storing it, so the
// store's contents can be compared against the source of truth.
type testBuffer struct {
	data  []byte
	state *State
}

func bufferListAdd(cl *[]testBuffer, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	*cl = append(*cl, testBuffer{data: cp})
}

// bufferListAddStride expands every byte of data stride times, handy for
// testing the same inputs at different strides.
func bufferListAddStride(cl *[]testBuffer, data []byte, stride int) {
	if stride == 1 {
		bufferListAdd(cl, data)
		return
	}
	expanded := make([]byte, 0, len(data)*stride)
	for _, b := range data {
		for i := 0; i < stride; i++ {
			expanded = append(expanded, b)
		}
	}
	*cl = append(*cl, testBuffer{data: expanded})
}

func bufferListFromStrings(strings ...string) []testBuffer {
	var cl []testBuffer
	for _, s := range strings {
		bufferListAdd(&cl, []byte(s))
	}
	return cl
}

// bufferListPopulate adds every buffer, each referencing its predecessor.
func bufferListPopulate(bs *Store, cl []testBuffer) {
	var prev *State
	for i := range cl {
		cl[i].state = bs.StateAdd(cl[i].data, prev)
		prev = cl[i].state
	}
}

func bufferListStatesRemove(bs *Store, cl []testBuffer) {
	for i := range cl {
		bs.StateRemove(cl[i].state)
		cl[i].state = nil
	}
}

func bufferListValidate(t *testing.T, cl []testBuffer) {
	t.Helper()
	for i := range cl {
		tb := &cl[i]
		if got := tb.state.Size(); got != len(tb.data) {
			t.Fatalf("buffer %d: state size %d, want %d", i, got, len(tb.data))
		}
		if got := tb.state.Bytes(); !bytes.Equal(got, tb.data) {
			t.Fatalf("buffer %d: state data does not round-trip", i)
		}
		// the non-allocating read path must agree
		dst := make([]byte, len(tb.data))
		tb.state.Data(dst)
		if !bytes.Equal(dst, tb.data) {
			t.Fatalf("buffer %d: Data disagrees with Bytes", i)
		}
	}
}

func runBuffersSingle(t *testing.T, bs *Store, cl []testBuffer) {
	t.Helper()
	bufferListPopulate(bs, cl)
	bufferListValidate(t, cl)
	if !bs.IsValid() {
		t.Fatal("store failed validation")
	}
}

// runBuffers populates and validates in both directions, reversing the
// buffer order in between.
func runBuffers(t *testing.T, bs *Store, cl []testBuffer) {
	t.Helper()
	runBuffersSingle(t, bs, cl)
	bufferListStatesRemove(bs, cl)

	slices.Reverse(cl)

	runBuffersSingle(t, bs, cl)
	bufferListStatesRemove(bs, cl)
}

func runBuffersSimple(t *testing.T, stride, chunkCount int, cl []testBuffer) {
	t.Helper()
	bs := New(stride, chunkCount)
	runBuffers(t, bs, cl)
	bs.Clear()
}

// bufferListRandomize shuffles every buffer's content in place, each with
// its own seed.
func bufferListRandomize(cl []testBuffer, seed uint32) {
	rng := randgen.New(0)
	for i := range cl {
		rng.Seed(seed)
		randgen.Shuffle(rng, cl[i].data)
		seed++
	}
}
