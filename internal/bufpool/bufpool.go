// Package bufpool provides a size-classed byte-slice pool used for the
// inbound frame window a Session asks a Connection to fill. The outbound
// chunks a Connection's backpressure queue holds are plain allocations, not
// drawn from this pool.
//
// It is the same bucketed-sync.Pool idiom the chatroom's closest relative in
// the example corpus (the vendored smux allocator) uses for its own framing
// buffers, reimplemented here rather than imported since that allocator is
// an unexported type of a dependency this module does not otherwise take on.
package bufpool

import "sync"

const (
	minClass = 6  // 64 bytes
	maxClass = 20 // 1 MiB
)

var pools [maxClass - minClass + 1]sync.Pool

func init() {
	for i := range pools {
		size := 1 << uint(minClass+i)
		pools[i].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
}

func classFor(size int) int {
	class := minClass
	for (1 << uint(class)) < size {
		class++
	}
	return class
}

// Get returns a *[]byte whose length is exactly size. Buffers larger than
// 1 MiB are allocated directly and never pooled.
func Get(size int) *[]byte {
	if size <= 0 {
		b := make([]byte, 0)
		return &b
	}
	class := classFor(size)
	if class > maxClass {
		b := make([]byte, size)
		return &b
	}
	p := pools[class-minClass].Get().(*[]byte)
	*p = (*p)[:size]
	return p
}

// Put returns a buffer obtained from Get back to its pool. Buffers whose cap
// does not match a pooled size class (i.e. oversized allocations) are
// dropped for the garbage collector to reclaim.
func Put(p *[]byte) {
	if p == nil {
		return
	}
	c := cap(*p)
	class := classFor(c)
	if class > maxClass || 1<<uint(class) != c {
		return
	}
	*p = (*p)[:c]
	pools[class-minClass].Put(p)
}
