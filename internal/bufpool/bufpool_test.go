package bufpool

import "testing"

func TestGetExactLength(t *testing.T) {
	for _, n := range []int{0, 1, 63, 64, 65, 4096, 1 << 20, 1<<20 + 1} {
		p := Get(n)
		if len(*p) != n {
			t.Fatalf("Get(%d): len = %d", n, len(*p))
		}
	}
}

func TestPutGetReuse(t *testing.T) {
	p := Get(128)
	(*p)[0] = 0xAB
	Put(p)
	q := Get(128)
	// Not a correctness requirement that the byte survives (pool may hand
	// back a fresh buffer), only that the size class round-trips cleanly.
	if len(*q) != 128 {
		t.Fatalf("Get(128) after Put: len = %d", len(*q))
	}
}
