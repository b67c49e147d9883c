package optimize

import "testing"

func TestBytePool(t *testing.T) {
	pool := NewBytePool(1024)

	buf := pool.Get()
	if len(buf) != 0 {
		t.Errorf("expected empty buffer, got len %d", len(buf))
	}
	if cap(buf) != 1024 {
		t.Errorf("expected cap 1024, got %d", cap(buf))
	}

	buf = append(buf, make([]byte, 512)...)
	pool.Put(buf)

	reused := pool.Get()
	if len(reused) != 0 {
		t.Errorf("reused buffer not reset, len %d", len(reused))
	}
}

func TestBytePoolDropsOversized(t *testing.T) {
	pool := NewBytePool(16)
	big := make([]byte, 0, 1024)
	pool.Put(big) // should be dropped, not pooled

	buf := pool.Get()
	if cap(buf) != 16 {
		t.Errorf("oversized buffer retained, cap %d", cap(buf))
	}
}
