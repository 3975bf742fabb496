package hub

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gwuhaolin/livetc/av"
)

type testWriter struct {
	info     av.Info
	mu       sync.Mutex
	got      []av.Packet
	writeErr error
	alive    bool
	closed   error
}

func newTestWriter(key, uid string) *testWriter {
	return &testWriter{info: av.Info{Key: key, UID: uid}, alive: true}
}

func (w *testWriter) Info() av.Info { return w.info }
func (w *testWriter) Alive() bool   { return w.alive }

func (w *testWriter) Close(err error) {
	w.mu.Lock()
	w.closed = err
	w.mu.Unlock()
}

func (w *testWriter) Write(p *av.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeErr != nil {
		return w.writeErr
	}
	w.got = append(w.got, *p)
	return nil
}

type testStore struct {
	mu     sync.Mutex
	frames map[string]av.Frame
	block  chan struct{} // nil 이 아니면 닫힐 때까지 Set 이 멈춘다.
}

func newTestStore() *testStore {
	return &testStore{frames: map[string]av.Frame{}}
}

func (s *testStore) Set(source string, f av.Frame) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.frames[source] = f
	s.mu.Unlock()
	return nil
}

func (s *testStore) get(source string) (av.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.frames[source]
	return f, ok
}

// waitStored waits for the asynchronous store write of source.
func (s *testStore) waitStored(t *testing.T, source string, want av.Frame) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if f, ok := s.get(source); ok && f == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	f, _ := s.get(source)
	t.Errorf("store[%s] = %v, want %v", source, f, want)
}

func TestHubFanOut(t *testing.T) {
	store := newTestStore()
	h := NewHub(store)
	defer h.Close()

	a := newTestWriter("ltc", "a")
	b := newTestWriter("ltc", "b")
	other := newTestWriter("mtc", "c")
	h.HandleWriter(a)
	h.HandleWriter(b)
	h.HandleWriter(other)

	f := av.Frame{Hours: 1, Seconds: 2, Frames: 3, Type: av.EBU25}
	h.HandleFrame("ltc", f)

	for _, w := range []*testWriter{a, b} {
		if len(w.got) != 1 || w.got[0].Frame != f || w.got[0].Source != "ltc" {
			t.Errorf("writer %s got %v", w.info.UID, w.got)
		}
	}
	if len(other.got) != 0 {
		t.Errorf("mtc writer got ltc frames: %v", other.got)
	}
	store.waitStored(t, "ltc", f)

	p, ok := h.Latest("ltc")
	if !ok || p.Frame != f {
		t.Errorf("Latest() = %v %v", p, ok)
	}
	if h.Writers("ltc") != 2 || h.Writers("nope") != 0 {
		t.Errorf("Writers() = %d", h.Writers("ltc"))
	}
	if _, ok := h.Latest("nope"); ok {
		t.Error("Latest() found unknown source")
	}
	if got := h.Sources(); len(got) != 2 || got[0] != "ltc" || got[1] != "mtc" {
		t.Errorf("Sources() = %v", got)
	}
}

func TestHubSendsLatestToNewWriter(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	f := av.Frame{Minutes: 4, Frames: 7, Type: av.SMPTE30}
	h.HandleFrame("mtc", f)

	w := newTestWriter("mtc", "late")
	h.HandleWriter(w)
	if len(w.got) != 1 || w.got[0].Frame != f {
		t.Errorf("late writer got %v", w.got)
	}
}

func TestHubRemovesFailedWriter(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	w := newTestWriter("ltc", "bad")
	w.writeErr = errors.New("broken pipe")
	h.HandleWriter(w)
	h.HandleFrame("ltc", av.Frame{Frames: 1})

	v, _ := h.GetStreams().Load("ltc")
	if _, ok := v.(*Stream).GetWs().Load("bad"); ok {
		t.Error("failed writer still subscribed")
	}
	if w.closed == nil {
		t.Error("failed writer not closed")
	}
}

func TestCheckAlive(t *testing.T) {
	old := idleTimeout
	idleTimeout = 200 * time.Millisecond
	defer func() { idleTimeout = old }()

	h := NewHub(nil)
	defer h.Close()

	dead := newTestWriter("mtc", "dead")
	h.HandleWriter(dead)
	h.HandleFrame("ltc", av.Frame{Frames: 2})

	dead.alive = false
	h.sweep()
	if dead.closed == nil {
		t.Error("dead writer not closed")
	}
	if _, ok := h.GetStreams().Load("mtc"); ok {
		t.Error("stream without writers or frames kept")
	}
	if _, ok := h.GetStreams().Load("ltc"); !ok {
		t.Error("active stream removed")
	}

	time.Sleep(300 * time.Millisecond)
	h.sweep()
	if _, ok := h.GetStreams().Load("ltc"); ok {
		t.Error("idle stream kept")
	}
}

func TestHubSlowStoreDoesNotBlock(t *testing.T) {
	store := newTestStore()
	store.block = make(chan struct{})
	h := NewHub(store)
	defer h.Close()

	w := newTestWriter("mtc", "a")
	h.HandleWriter(w)

	done := make(chan struct{})
	go func() {
		for i := 0; i < storeQueueNum*2; i++ {
			h.HandleFrame("mtc", av.Frame{Frames: i % 30, Type: av.SMPTE30})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HandleFrame blocked on the store")
	}
	if len(w.got) != storeQueueNum*2 {
		t.Errorf("writer got %d frames", len(w.got))
	}

	// 막혀 있던 쓰기가 풀리면 대기열에 남은 프레임이 저장된다.
	close(store.block)
	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := store.get("mtc"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("queued frames never stored")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHandleWriterDuringSweep(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	stop := make(chan struct{})
	swept := make(chan struct{})
	go func() {
		defer close(swept)
		for {
			select {
			case <-stop:
				return
			default:
				h.sweep()
			}
		}
	}()

	var writers []*testWriter
	for i := 0; i < 200; i++ {
		w := newTestWriter(fmt.Sprintf("src%d", i), "w")
		writers = append(writers, w)
		h.HandleWriter(w)
	}
	close(stop)
	<-swept

	// 구독자가 있는 스트림은 지워지지 않으므로 모든 writer 가 허브에 남아 있어야 한다.
	for _, w := range writers {
		v, ok := h.GetStreams().Load(w.info.Key)
		if !ok {
			t.Fatalf("stream %s lost", w.info.Key)
		}
		if _, ok := v.(*Stream).GetWs().Load("w"); !ok {
			t.Fatalf("writer of %s left on an orphaned stream", w.info.Key)
		}
	}
}
