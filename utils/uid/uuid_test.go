package uid

import "testing"

func TestNewId(t *testing.T) {
	a, b := NewId(), NewId()
	if a == "" || a == b {
		t.Errorf("ids %q %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("len(%q) = %d, want 16", a, len(a))
	}
}
