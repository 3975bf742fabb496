package ltc

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/gwuhaolin/livetc/av"
)

type handlerFunc func(source string, f av.Frame)

func (h handlerFunc) HandleFrame(source string, f av.Frame) { h(source, f) }

// biphase renders LTC frames as s16le PCM with spb samples per bit.
func biphase(frames []av.LTCFrame, spb int) []byte {
	var bits []byte
	put := func(v, n int) {
		for j := 0; j < n; j++ {
			bits = append(bits, byte(v>>j)&1)
		}
	}
	for i := 0; i < 16; i++ {
		bits = append(bits, 0)
	}
	for _, f := range frames {
		put(f.Frames%10, 4)
		put(0, 4)
		put(f.Frames/10, 2)
		if f.DropFrame {
			put(1, 1)
		} else {
			put(0, 1)
		}
		put(0, 5)
		put(f.Seconds%10, 4)
		put(0, 4)
		put(f.Seconds/10, 3)
		put(0, 5)
		put(f.Minutes%10, 4)
		put(0, 4)
		put(f.Minutes/10, 3)
		put(0, 5)
		put(f.Hours%10, 4)
		put(0, 4)
		put(f.Hours/10, 2)
		put(0, 6)
		put(0xBFFC, 16)
	}
	bits = append(bits, 0, 0, 0, 0)

	var out bytes.Buffer
	level := int16(-10000)
	write := func(n int) {
		for i := 0; i < n; i++ {
			binary.Write(&out, binary.LittleEndian, level)
		}
	}
	for _, b := range bits {
		level = -level
		write(spb / 2)
		if b == 1 {
			level = -level
		}
		write(spb - spb/2)
	}
	return out.Bytes()
}

func TestReceiverRun(t *testing.T) {
	var in []av.LTCFrame
	for s := 0; s < 2; s++ {
		for f := 0; f < 25; f++ {
			in = append(in, av.LTCFrame{Hours: 10, Seconds: s, Frames: f})
		}
	}
	in = append(in, av.LTCFrame{Hours: 10, Seconds: 2, Frames: 0})

	var got []av.Frame
	h := handlerFunc(func(source string, f av.Frame) {
		if source != "ltc" {
			t.Errorf("source = %q", source)
		}
		got = append(got, f)
	})

	src := NewPCMSource(bytes.NewReader(biphase(in, 24)), 48000)
	r := NewReceiver("ltc", src, 25, h)
	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(got) != len(in) {
		t.Fatalf("got %d frames, want %d", len(got), len(in))
	}
	if got[24].Type != av.SMPTE30 {
		t.Errorf("frame before first boundary typed %v", got[24].Type)
	}
	want := av.Frame{Hours: 10, Seconds: 2, Frames: 0, Type: av.EBU25}
	if got[len(got)-1] != want {
		t.Errorf("last frame = %+v, want %+v", got[len(got)-1], want)
	}
	if r.Rate() != 25 {
		t.Errorf("rate = %d, want 25", r.Rate())
	}

	r.Reset()
	if r.Rate() != 0 {
		t.Errorf("rate after reset = %d", r.Rate())
	}
}

func TestReceiverCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := NewPCMSource(bytes.NewReader(make([]byte, 1024)), 48000)
	r := NewReceiver("ltc", src, 0, nil)
	if err := r.Run(ctx); err != context.Canceled {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}

func TestPCMSourceOddTail(t *testing.T) {
	src := NewPCMSource(bytes.NewReader([]byte{0x01, 0x00, 0xFF, 0xFF, 0x7F}), 8000)
	buf := make([]int, 8)
	n, err := src.ReadSamples(buf)
	if err != nil || n != 2 || buf[0] != 1 || buf[1] != -1 {
		t.Fatalf("ReadSamples = %d %v %v", n, buf[:n], err)
	}
	if _, err := src.ReadSamples(buf); err == nil {
		t.Error("expected EOF")
	}
}

func TestOpenSourceMissing(t *testing.T) {
	if _, _, err := OpenSource("/nonexistent/ltc.wav", 48000); err == nil {
		t.Error("expected error for missing file")
	}
}
