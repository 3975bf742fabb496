package ltc

import (
	"github.com/gwuhaolin/livetc/av"
)

// 디코딩된 LTC 프레임 열로부터 프레임 레이트를 추정하고 확정한다.
// 초 경계(프레임 0)에서 직전 프레임 번호+1 을 레이트 후보로 본다.
// 레이트가 올라가는 관측은 바로 받아들이고, 내려가는 관측은 두번 연속 같아야 확정한다.
type Classifier struct {
	lastFrameNumber int
	confirmedRate   int // 0 이면 아직 모름
	candidateRate   int // 확인을 기다리는 후보, 0 이면 없음
	onFrame         func(av.Frame)
}

func NewClassifier(onFrame func(av.Frame)) *Classifier {
	return &Classifier{onFrame: onFrame}
}

// Rate returns the confirmed rate, 0 while unknown.
func (c *Classifier) Rate() int {
	return c.confirmedRate
}

func (c *Classifier) Reset() {
	c.lastFrameNumber = 0
	c.confirmedRate = 0
	c.candidateRate = 0
}

// Write classifies one decoded frame and emits it. Reversed frames are
// dropped without touching state.
func (c *Classifier) Write(rec av.LTCFrame) {
	if rec.Reverse {
		return
	}

	if rec.Frames == 0 &&
		(c.lastFrameNumber == 29 || c.lastFrameNumber == 24 || c.lastFrameNumber == 23) {
		c.observe(c.lastFrameNumber + 1)
	}
	c.lastFrameNumber = rec.Frames

	f := av.Frame{
		Hours:   rec.Hours,
		Minutes: rec.Minutes,
		Seconds: rec.Seconds,
		Frames:  rec.Frames,
		Type:    av.SMPTE30,
	}
	switch {
	case rec.DropFrame:
		f.Type = av.DropFrame30
	case c.confirmedRate == 25:
		f.Type = av.EBU25
	case c.confirmedRate == 24:
		f.Type = av.Film24
	}

	if c.onFrame != nil {
		c.onFrame(f)
	}
}

func (c *Classifier) observe(r int) {
	switch {
	case r == c.candidateRate:
		c.confirmedRate = r
		c.candidateRate = 0
	case r != c.confirmedRate:
		if c.confirmedRate == 0 || r > c.confirmedRate {
			c.confirmedRate = r
			c.candidateRate = 0
		} else {
			c.candidateRate = r
		}
	default:
		c.candidateRate = 0
	}
}
