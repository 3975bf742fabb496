package ltc

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gwuhaolin/livetc/av"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeWav stores the s16le biphase signal as a WAV file. Only the first
// channel carries the signal; the others are silent.
func writeWav(t *testing.T, pcm []byte, sampleRate, depth, chans int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ltc.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	n := len(pcm) / 2
	data := make([]int, n*chans)
	for i := 0; i < n; i++ {
		v := int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		switch depth {
		case 8:
			// 8비트 WAV 는 128 을 중심으로 하는 부호 없는 값이다.
			data[i*chans] = v/100 + 128
			for c := 1; c < chans; c++ {
				data[i*chans+c] = 128
			}
		case 24:
			data[i*chans] = v * 256
		case 32:
			data[i*chans] = v * 65536
		default:
			data[i*chans] = v
		}
	}

	enc := wav.NewEncoder(f, sampleRate, depth, chans, 1)
	buf := &audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{NumChannels: chans, SampleRate: sampleRate},
		SourceBitDepth: depth,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWavSource(t *testing.T) {
	var in []av.LTCFrame
	for s := 0; s < 2; s++ {
		for f := 0; f < 25; f++ {
			in = append(in, av.LTCFrame{Hours: 10, Seconds: s, Frames: f})
		}
	}
	in = append(in, av.LTCFrame{Hours: 10, Seconds: 2, Frames: 0})
	pcm := biphase(in, 24)

	tests := []struct {
		name  string
		depth int
		chans int
	}{
		{"16-bit mono", 16, 1},
		{"16-bit stereo", 16, 2},
		{"8-bit mono", 8, 1},
		{"8-bit stereo", 8, 2},
		{"24-bit stereo", 24, 2},
		{"32-bit mono", 32, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeWav(t, pcm, 48000, tt.depth, tt.chans)

			// 확장자가 .wav 이면 sampleRate 인자 대신 헤더 값을 쓴다.
			src, closer, err := OpenSource(path, 8000)
			if err != nil {
				t.Fatal(err)
			}
			defer closer.Close()
			if _, ok := src.(*WavSource); !ok {
				t.Fatalf("OpenSource returned %T", src)
			}
			if src.SampleRate() != 48000 {
				t.Errorf("SampleRate() = %d", src.SampleRate())
			}

			var got []av.Frame
			r := NewReceiver("ltc", src, 25, handlerFunc(func(source string, f av.Frame) {
				got = append(got, f)
			}))
			if err := r.Run(context.Background()); err != nil {
				t.Fatal(err)
			}

			if len(got) != len(in) {
				t.Fatalf("got %d frames, want %d", len(got), len(in))
			}
			want := av.Frame{Hours: 10, Seconds: 2, Frames: 0, Type: av.EBU25}
			if got[len(got)-1] != want {
				t.Errorf("last frame = %+v, want %+v", got[len(got)-1], want)
			}
			if r.Rate() != 25 {
				t.Errorf("rate = %d, want 25", r.Rate())
			}
		})
	}
}

func TestWavSourceRejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("not a riff file at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := OpenSource(path, 48000); !errors.Is(err, ErrNotWav) {
		t.Errorf("OpenSource(bad.wav) = %v, want ErrNotWav", err)
	}
}
