package mtc

import (
	"github.com/gwuhaolin/livetc/av"
)

// 마지막 0번 이후 경과 시간(ms) 허용 범위. 4번까지는 한 프레임(24~30fps 에서 33~42ms),
// 다음 사이클의 0번까지는 두 프레임이 걸린다.
const (
	frameMsMin = 30
	frameMsMax = 45
)

// 8개의 쿼터 프레임 메시지로부터 전체 프레임을 조립한다.
// 조립된 값은 7번을 받은 시점에 이미 7/8 프레임 늦었으므로,
// 다음 사이클의 0번에서 +2, 4번에서 +3 프레임을 더해 내보낸다.
// 0 -> 7 순서로 연속해서 온 메시지만 버퍼에 쌓고, 나머지는 다음 0번이 올 때까지 버린다.
type Assembler struct {
	lastIndex  int   // -1 이면 대기 상태
	lastTimeMs int64 // 마지막 0번 메시지의 시각
	bits       [8]uint8
	lastFrame  av.Frame
	onFrame    func(av.Frame)
}

func NewAssembler(onFrame func(av.Frame)) *Assembler {
	a := &Assembler{onFrame: onFrame}
	a.Reset()
	return a
}

// Reset must be called when the stream starts and stops.
func (a *Assembler) Reset() {
	a.lastIndex = -1
	a.lastTimeMs = 0
	for i := range a.bits {
		a.bits[i] = 0
	}
	a.lastFrame = av.Reset()
}

// LastFrame returns the most recently assembled frame without compensation.
func (a *Assembler) LastFrame() av.Frame {
	return a.lastFrame
}

// Write handles one MIDI message; anything but a quarter frame is ignored.
func (a *Assembler) Write(msg av.MIDIMessage) {
	index, data, ok := msg.QuarterFrame()
	if !ok {
		return
	}
	a.QuarterFrame(msg.TimeMs, index, data)
}

func (a *Assembler) QuarterFrame(timeMs int64, index, data uint8) {
	if index > 7 {
		return
	}
	qf := int(index)
	dt := timeMs - a.lastTimeMs
	if dt < 0 {
		dt = 0
	}

	if qf == 7 && a.lastIndex == 6 {
		a.lastFrame = bitsToFrame(a.bits)
	}

	if qf == 0 && a.lastIndex == 7 &&
		dt >= frameMsMin*2 && dt <= frameMsMax*2 {
		a.emit(av.Add(a.lastFrame, 2))
	}

	if qf == 4 && a.lastIndex == 3 &&
		dt >= frameMsMin && dt <= frameMsMax {
		a.emit(av.Add(a.lastFrame, 3))
	}

	if qf == 0 {
		a.lastTimeMs = timeMs
	}

	if qf == 0 || qf == a.lastIndex+1 {
		a.lastIndex = qf
		a.bits[qf] = data & 0xF
	}
}

func (a *Assembler) emit(f av.Frame) {
	if a.onFrame != nil {
		a.onFrame(f)
	}
}

func bitsToFrame(bits [8]uint8) av.Frame {
	return av.Frame{
		Frames:  int(bits[0]) + int(bits[1])<<4,
		Seconds: int(bits[2]) + int(bits[3])<<4,
		Minutes: int(bits[4]) + int(bits[5])<<4,
		Hours:   int(bits[6]) + int(bits[7]&1)<<4,
		Type:    av.Type((bits[7] >> 1) & 3),
	}
}
