package ltc

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gwuhaolin/livetc/utils/pool"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	ErrNotWav           = fmt.Errorf("not a valid wav file")
	ErrUnsupportedDepth = fmt.Errorf("unsupported bit depth")
)

// LTC 오디오 샘플 공급원. 한 채널의 부호있는 PCM 샘플을 돌려준다.
type Source interface {
	SampleRate() int
	ReadSamples(buf []int) (int, error)
}

// WAV 파일에서 첫번째 채널만 읽는다.
type WavSource struct {
	dec  *wav.Decoder
	ibuf *audio.IntBuffer
}

func NewWavSource(r io.ReadSeeker) (*WavSource, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrNotWav
	}
	dec.ReadInfo()
	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDepth, dec.BitDepth)
	}
	return &WavSource{dec: dec}, nil
}

func (s *WavSource) SampleRate() int {
	return int(s.dec.SampleRate)
}

func (s *WavSource) ReadSamples(buf []int) (int, error) {
	chans := int(s.dec.NumChans)
	if chans < 1 {
		chans = 1
	}
	size := len(buf) * chans
	if s.ibuf == nil || len(s.ibuf.Data) != size {
		s.ibuf = &audio.IntBuffer{Data: make([]int, size), Format: &audio.Format{}}
	}

	n, err := s.dec.PCMBuffer(s.ibuf)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}

	out := 0
	for i := 0; i < n; i += chans {
		v := s.ibuf.Data[i]
		if s.dec.BitDepth == 8 {
			// 8비트 WAV 는 부호 없는 값이다.
			v -= 128
		}
		buf[out] = v
		out++
	}
	return out, nil
}

// 헤더 없는 signed 16-bit little-endian 모노 PCM.
type PCMSource struct {
	r          io.Reader
	sampleRate int
	pool       *pool.Pool
	eof        bool
}

func NewPCMSource(r io.Reader, sampleRate int) *PCMSource {
	return &PCMSource{
		r:          r,
		sampleRate: sampleRate,
		pool:       pool.NewPool(),
	}
}

func (s *PCMSource) SampleRate() int {
	return s.sampleRate
}

func (s *PCMSource) ReadSamples(buf []int) (int, error) {
	if s.eof {
		return 0, io.EOF
	}
	b := s.pool.Get(len(buf) * 2)
	n, err := io.ReadFull(s.r, b)
	switch err {
	case nil:
	case io.ErrUnexpectedEOF:
		s.eof = true
	case io.EOF:
		return 0, io.EOF
	default:
		return 0, err
	}

	cnt := n / 2
	for i := 0; i < cnt; i++ {
		buf[i] = int(int16(binary.LittleEndian.Uint16(b[i*2:])))
	}
	if cnt == 0 {
		return 0, io.EOF
	}
	return cnt, nil
}

// OpenSource opens input as a sample source: "-" is raw PCM on stdin, a
// .wav path is decoded as WAV, anything else is read as raw PCM.
func OpenSource(input string, sampleRate int) (Source, io.Closer, error) {
	if input == "-" {
		return NewPCMSource(os.Stdin, sampleRate), io.NopCloser(os.Stdin), nil
	}

	f, err := os.Open(input)
	if err != nil {
		return nil, nil, err
	}
	if strings.EqualFold(filepath.Ext(input), ".wav") {
		src, err := NewWavSource(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("%s: %w", input, err)
		}
		return src, f, nil
	}
	return NewPCMSource(f, sampleRate), f, nil
}
