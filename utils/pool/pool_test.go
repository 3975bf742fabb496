package pool

import "testing"

func TestGet(t *testing.T) {
	p := NewPool()
	a := p.Get(8192)
	b := p.Get(8192)
	if len(a) != 8192 || len(b) != 8192 {
		t.Fatalf("lengths %d %d", len(a), len(b))
	}
	a[0] = 1
	if b[0] == 1 {
		t.Error("consecutive buffers overlap")
	}
	if big := p.Get(maxpoolsize + 1); len(big) != maxpoolsize+1 {
		t.Errorf("oversized Get returned %d bytes", len(big))
	}
}

func TestGetWraps(t *testing.T) {
	p := NewPool()
	for i := 0; i < maxpoolsize/1000+2; i++ {
		if b := p.Get(1000); len(b) != 1000 {
			t.Fatalf("Get(1000) = %d bytes", len(b))
		}
	}
	if p.pos > maxpoolsize {
		t.Errorf("pos %d past end", p.pos)
	}
}
