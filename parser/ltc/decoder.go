package ltc

import (
	"github.com/gwuhaolin/livetc/av"
)

const (
	frameBits = 80
	queueSize = 32

	syncForward = 0x3FFD // bit 64..79 을 순서대로 받았을 때
	syncReverse = 0xBFFC // 역방향 재생시 bit 79..64

	defaultFps = 25
	minFps     = 18
	maxFps     = 40
)

// LTC 바이페이즈 마크 신호를 샘플 단위로 받아 80비트 프레임을 복원하는 디코더.
// 모든 비트 셀은 경계에서 극성이 바뀌고, 1 비트는 셀 중간에서 한번 더 바뀐다.
// 극성 변화 간격이 길면(한 셀) 0, 짧은 간격 두개면 1 이다.
type Decoder struct {
	sampleRate int
	minPeriod  float64
	maxPeriod  float64
	initial    float64
	period     float64 // 비트 셀 길이(샘플), 수신 신호에 맞춰 계속 보정된다.

	started bool
	level   bool
	since   int
	pos     int64

	halfPending bool
	halfLen     int

	window [frameBits]byte
	nbits  int
	sync   uint16

	queue []av.LTCFrame
}

// NewDecoder creates a decoder for mono samples at sampleRate. fpsHint seeds
// the bit period estimate; 0 uses 25.
func NewDecoder(sampleRate, fpsHint int) *Decoder {
	if fpsHint <= 0 {
		fpsHint = defaultFps
	}
	d := &Decoder{
		sampleRate: sampleRate,
		minPeriod:  float64(sampleRate) / float64(maxFps*frameBits),
		maxPeriod:  float64(sampleRate) / float64(minFps*frameBits),
	}
	d.initial = d.clamp(float64(sampleRate) / float64(fpsHint*frameBits))
	d.period = d.initial
	return d
}

func (d *Decoder) Reset() {
	*d = Decoder{
		sampleRate: d.sampleRate,
		minPeriod:  d.minPeriod,
		maxPeriod:  d.maxPeriod,
		initial:    d.initial,
		period:     d.initial,
	}
}

// Write feeds signed PCM samples of one channel.
func (d *Decoder) Write(samples []int) {
	for _, s := range samples {
		h := s >= 0
		if !d.started {
			d.started = true
			d.level = h
		} else if h != d.level {
			d.level = h
			d.transition(d.since)
			d.since = 0
		}
		d.since++
		d.pos++
	}
}

// Read pops the oldest decoded frame.
func (d *Decoder) Read() (av.LTCFrame, bool) {
	if len(d.queue) == 0 {
		return av.LTCFrame{}, false
	}
	f := d.queue[0]
	d.queue = d.queue[1:]
	return f, true
}

func (d *Decoder) clamp(p float64) float64 {
	if p < d.minPeriod {
		return d.minPeriod
	}
	if p > d.maxPeriod {
		return d.maxPeriod
	}
	return p
}

func (d *Decoder) transition(interval int) {
	iv := float64(interval)
	switch {
	case iv > 1.5*d.period:
		// 무음이나 끊김. 모아둔 비트는 버린다.
		d.desync()
	case iv > 0.75*d.period:
		if d.halfPending {
			d.desync()
			return
		}
		d.period = d.clamp(0.75*d.period + 0.25*iv)
		d.push(0)
	default:
		if !d.halfPending {
			d.halfPending = true
			d.halfLen = interval
			return
		}
		d.halfPending = false
		d.period = d.clamp(0.75*d.period + 0.25*float64(d.halfLen+interval))
		d.push(1)
	}
}

func (d *Decoder) desync() {
	d.halfPending = false
	d.nbits = 0
	d.sync = 0
}

func (d *Decoder) push(b byte) {
	copy(d.window[:], d.window[1:])
	d.window[frameBits-1] = b
	d.sync = d.sync<<1 | uint16(b)
	d.nbits++
	if d.nbits < frameBits {
		return
	}
	switch d.sync {
	case syncForward:
		d.emit(false)
	case syncReverse:
		d.emit(true)
	}
}

func (d *Decoder) emit(reverse bool) {
	bit := func(i int) uint32 {
		if reverse {
			return uint32(d.window[63-i])
		}
		return uint32(d.window[i])
	}
	field := func(start, n int) int {
		v := 0
		for j := 0; j < n; j++ {
			v |= int(bit(start+j)) << j
		}
		return v
	}

	var user uint32
	for g := 0; g < 8; g++ {
		user |= uint32(field(4+g*8, 4)) << (g * 4)
	}

	f := av.LTCFrame{
		Frames:     field(0, 4) + 10*field(8, 2),
		DropFrame:  bit(10) == 1,
		ColorFrame: bit(11) == 1,
		Seconds:    field(16, 4) + 10*field(24, 3),
		Minutes:    field(32, 4) + 10*field(40, 3),
		Hours:      field(48, 4) + 10*field(56, 2),
		UserBits:   user,
		Reverse:    reverse,
		Offset:     d.pos,
	}

	if len(d.queue) == queueSize {
		d.queue = d.queue[1:]
	}
	d.queue = append(d.queue, f)
}
