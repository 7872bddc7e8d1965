// Package mempool provides typed element pools with O(1) allocation and
// release. Freed slots are kept on a free stack and handed out again before
// any new allocation, so workloads that churn elements in close succession
// reuse memory instead of growing the heap. Unlike sync.Pool, live elements
// can be counted and iterated, which callers use for aggregate statistics
// and teardown.
package mempool

import "iter"

// Pool holds elements of a single type. The zero value is ready to use.
type Pool[T any] struct {
	free []*T
	live map[*T]struct{}
}

// Get returns a zeroed element, reusing a freed slot when one is available.
func (p *Pool[T]) Get() *T {
	var v *T
	if n := len(p.free); n > 0 {
		v = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
	} else {
		v = new(T)
	}
	if p.live == nil {
		p.live = make(map[*T]struct{})
	}
	p.live[v] = struct{}{}
	return v
}

// Put releases an element back to the pool. The element is zeroed so no
// references are retained through the free stack.
func (p *Pool[T]) Put(v *T) {
	if _, ok := p.live[v]; !ok {
		panic("mempool: Put of element not allocated from this pool")
	}
	delete(p.live, v)
	var zero T
	*v = zero
	p.free = append(p.free, v)
}

// Len returns the number of live elements.
func (p *Pool[T]) Len() int {
	return len(p.live)
}

// All iterates over the live elements in unspecified order.
func (p *Pool[T]) All() iter.Seq[*T] {
	return func(yield func(*T) bool) {
		for v := range p.live {
			if !yield(v) {
				return
			}
		}
	}
}

// Clear drops all elements, live and free. The pool remains usable.
func (p *Pool[T]) Clear() {
	p.free = nil
	p.live = nil
}
